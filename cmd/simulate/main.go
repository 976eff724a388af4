package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/whatsapp-hospital-bot/internal/config"
	"github.com/hackgods/whatsapp-hospital-bot/internal/db"
)

type SimConfig struct {
	APIBaseURL  string
	Phones      int
	StepPause   time.Duration
	Timeout     time.Duration
	PostgresDSN string
	Location    *time.Location
}

// Target is the slot every simulated patient asks for.
type Target struct {
	DoctorName string
	SlotID     uuid.UUID
	Start      time.Time
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Busy      int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		atomic.AddInt64(&om.Error, 1)
	case status == http.StatusTooManyRequests:
		atomic.AddInt64(&om.Busy, 1)
	default:
		atomic.AddInt64(&om.Success, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Simulator struct {
	config  SimConfig
	target  Target
	client  *http.Client
	phones  []string
	metrics OperationMetrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	target, err := loadTarget(ctx, pgPool, cfg.Location)
	if err != nil {
		log.Fatalf("load target slot: %v", err)
	}
	log.Printf("target: %s at %s (slot %s), %d phones racing",
		target.DoctorName, target.Start.In(cfg.Location).Format("Mon, Jan 2 3:04 PM"), target.SlotID, cfg.Phones)

	sim := &Simulator{
		config: cfg,
		target: target,
		client: &http.Client{Timeout: cfg.Timeout},
		phones: makePhones(cfg.Phones),
	}

	sim.Run()

	report, err := countBookings(context.Background(), pgPool, sim.phones)
	if err != nil {
		log.Fatalf("count bookings: %v", err)
	}
	sim.PrintReport(report)
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	return SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Phones:      getInt("SIM_PHONES", 20),
		StepPause:   getDuration("SIM_STEP_PAUSE", 50*time.Millisecond),
		Timeout:     getDuration("SIM_TIMEOUT", 30*time.Second),
		PostgresDSN: baseCfg.PostgresDSN,
		Location:    baseCfg.Location(),
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Phones <= 1 {
		return fmt.Errorf("SIM_PHONES must be > 1 to race anything")
	}
	return nil
}

// loadTarget picks tomorrow's earliest open slot so every patient can ask
// for it with the same "tomorrow at <time>" phrase.
func loadTarget(ctx context.Context, pool *pgxpool.Pool, loc *time.Location) (Target, error) {
	now := time.Now().In(loc)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)

	var t Target
	err := pool.QueryRow(ctx, `
		SELECT d.name, a.id, a.start_time
		FROM availability a
		JOIN doctors d ON d.id = a.doctor_id
		WHERE d.active AND a.is_booked = FALSE AND a.start_time >= $1 AND a.start_time < $2
		ORDER BY a.start_time, d.name
		LIMIT 1
	`, from, from.AddDate(0, 0, 1)).Scan(&t.DoctorName, &t.SlotID, &t.Start)
	if errors.Is(err, pgx.ErrNoRows) {
		return Target{}, fmt.Errorf("no open slot tomorrow, run cmd/seed first")
	}
	return t, err
}

func makePhones(n int) []string {
	phones := make([]string, 0, n)
	base := gofakeit.Number(10000000, 89999999)
	for i := 0; i < n; i++ {
		phones = append(phones, "9199"+strconv.Itoa(base+i))
	}
	return phones
}

func (s *Simulator) Run() {
	log.Printf("starting simulation with %d phones", len(s.phones))

	var wg sync.WaitGroup
	for _, phone := range s.phones {
		wg.Add(1)
		go func(phone string) {
			defer wg.Done()
			s.patient(context.Background(), phone)
		}(phone)
	}

	wg.Wait()
	log.Println("simulation complete")
}

// patient walks one phone through the booking shortcut and confirms.
func (s *Simulator) patient(ctx context.Context, phone string) {
	request := fmt.Sprintf("book appointment with %s tomorrow at %s",
		s.target.DoctorName, strings.ToLower(s.target.Start.In(s.config.Location).Format("3:04pm")))

	steps := []inbound{
		text("hi"),
		button("btn_0", "English"),
		text(request),
		text(gofakeit.FirstName() + " " + gofakeit.LastName()),
		text(strconv.Itoa(gofakeit.Number(18, 80))),
		button("confirm_booking", "Confirm Booking"),
	}
	for _, step := range steps {
		if err := s.send(ctx, phone, step); err != nil {
			log.Printf("phone %s: %v", phone, err)
			return
		}
		time.Sleep(s.config.StepPause)
	}
}

func (s *Simulator) send(ctx context.Context, phone string, msg inbound) error {
	body, err := json.Marshal(webhookPayload(phone, msg))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/webhook", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.metrics.Record(latency, 0, err)
		return err
	}
	defer resp.Body.Close()

	s.metrics.Record(latency, resp.StatusCode, nil)
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("webhook answered %d", resp.StatusCode)
	}
	return nil
}

type inbound struct {
	kind    string
	body    string
	replyID string
}

func text(body string) inbound { return inbound{kind: "text", body: body} }

func button(id, title string) inbound { return inbound{kind: "interactive", body: title, replyID: id} }

func webhookPayload(phone string, msg inbound) map[string]any {
	m := map[string]any{
		"id":        "wamid.sim." + uuid.NewString(),
		"from":      phone,
		"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
		"type":      msg.kind,
	}
	if msg.kind == "text" {
		m["text"] = map[string]string{"body": msg.body}
	} else {
		m["interactive"] = map[string]any{
			"type":         "button_reply",
			"button_reply": map[string]string{"id": msg.replyID, "title": msg.body},
		}
	}
	return map[string]any{
		"object": "whatsapp_business_account",
		"entry": []any{map[string]any{
			"id": "sim",
			"changes": []any{map[string]any{
				"field": "messages",
				"value": map[string]any{
					"messaging_product": "whatsapp",
					"messages":          []any{m},
				},
			}},
		}},
	}
}

type BookingReport struct {
	Booked       int
	PerSlot      map[uuid.UUID]int
	DoubleBooked []uuid.UUID
}

func countBookings(ctx context.Context, pool *pgxpool.Pool, phones []string) (BookingReport, error) {
	report := BookingReport{PerSlot: make(map[uuid.UUID]int)}

	rows, err := pool.Query(ctx, `
		SELECT availability_id, count(*)
		FROM appointments
		WHERE status = 'BOOKED' AND patient_phone = ANY($1)
		GROUP BY availability_id
	`, phones)
	if err != nil {
		return report, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			slotID uuid.UUID
			n      int
		)
		if err := rows.Scan(&slotID, &n); err != nil {
			return report, err
		}
		report.PerSlot[slotID] = n
		report.Booked += n
		if n > 1 {
			report.DoubleBooked = append(report.DoubleBooked, slotID)
		}
	}
	return report, rows.Err()
}

func (s *Simulator) PrintReport(report BookingReport) {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Phones: %d\n", len(s.phones))
	fmt.Printf("Target: %s, slot %s\n", s.target.DoctorName, s.target.SlotID)
	fmt.Println()

	om := &s.metrics
	total := atomic.LoadInt64(&om.Total)
	if total > 0 {
		avg, min, max, p50, p95 := om.Stats()
		fmt.Println("Webhook deliveries:")
		fmt.Printf("  Total: %d\n", total)
		fmt.Printf("  OK: %d\n", atomic.LoadInt64(&om.Success))
		if busy := atomic.LoadInt64(&om.Busy); busy > 0 {
			fmt.Printf("  Rate limited: %d\n", busy)
		}
		if errs := atomic.LoadInt64(&om.Error); errs > 0 {
			fmt.Printf("  Errors: %d\n", errs)
		}
		fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
			avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
			p50.Round(time.Millisecond), p95.Round(time.Millisecond))
		fmt.Println()
	}

	fmt.Println("Bookings:")
	fmt.Printf("  Live appointments: %d across %d slots\n", report.Booked, len(report.PerSlot))
	fmt.Printf("  Target slot holders: %d\n", report.PerSlot[s.target.SlotID])
	if len(report.DoubleBooked) == 0 {
		fmt.Println("  Double bookings: none")
		return
	}
	fmt.Printf("  DOUBLE BOOKINGS: %d slots\n", len(report.DoubleBooked))
	for _, id := range report.DoubleBooked {
		fmt.Printf("    %s: %d appointments\n", id, report.PerSlot[id])
	}
	os.Exit(1)
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
