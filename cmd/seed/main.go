package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/hackgods/whatsapp-hospital-bot/internal/db"
)

type department struct {
	name        string
	description string
	icon        string
}

var departments = []department{
	{"General Medicine", "Fever, infections and routine check-ups", "🩺"},
	{"Cardiology", "Heart and blood pressure care", "❤️"},
	{"Orthopedics", "Bones, joints and fractures", "🦴"},
	{"Pediatrics", "Care for infants and children", "👶"},
	{"Dermatology", "Skin, hair and nail conditions", "🧴"},
	{"ENT", "Ear, nose and throat", "👂"},
	{"Gynecology", "Women's health and pregnancy", "🤰"},
	{"Ophthalmology", "Eye care and vision", "👁️"},
}

var knowledgeEntries = [][2]string{
	{"What are the visiting hours?", "Visiting hours are 4 PM to 7 PM every day."},
	{"Is there parking?", "Yes, free parking is available in the hospital basement."},
	{"Do you accept insurance?", "We accept all major insurance providers. Please bring your insurance card at registration."},
	{"Is the pharmacy open 24 hours?", "Yes, the in-house pharmacy is open 24x7."},
	{"What are OP timings?", "Outpatient consultations run 9 AM to 12 PM and 2 PM to 5 PM, Monday to Saturday."},
	{"Do you have an emergency department?", "Yes, the emergency department is open 24x7."},
}

// slot windows per day, local time
var windows = [][2]int{{9, 12}, {14, 17}}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")
	_ = godotenv.Load()

	doctorsPerDept := flag.Int("doctors", 2, "doctors per department")
	days := flag.Int("days", 7, "days of availability to create, starting tomorrow")
	tz := flag.String("tz", "", "timezone for slot times (defaults to TIMEZONE or Asia/Kolkata)")
	flag.Parse()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	zone := *tz
	if zone == "" {
		zone = os.Getenv("TIMEZONE")
	}
	if zone == "" {
		zone = "Asia/Kolkata"
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		log.Fatalf("load timezone %q: %v", zone, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	if err := seedDepartments(context.Background(), pool); err != nil {
		log.Fatalf("seed departments: %v", err)
	}
	doctorIDs, err := seedDoctors(context.Background(), pool, faker, *doctorsPerDept)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedAvailability(context.Background(), pool, doctorIDs, *days, loc); err != nil {
		log.Fatalf("seed availability: %v", err)
	}
	if err := seedKnowledge(context.Background(), pool); err != nil {
		log.Fatalf("seed knowledge: %v", err)
	}

	log.Println("seed complete")
}

func seedDepartments(ctx context.Context, pool *pgxpool.Pool) error {
	log.Printf("seeding %d departments", len(departments))

	return db.InTx(ctx, pool, func(tx pgx.Tx) error {
		for i, d := range departments {
			_, err := tx.Exec(ctx, `
				INSERT INTO departments (id, name, description, icon, display_order, active, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, TRUE, now(), now())
				ON CONFLICT (name) DO UPDATE
				SET description = EXCLUDED.description,
				    icon = EXCLUDED.icon,
				    display_order = EXCLUDED.display_order,
				    updated_at = now()
			`, uuid.New(), d.name, d.description, d.icon, i+1)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, perDept int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors per department", perDept)

	var ids []uuid.UUID
	err := db.InTx(ctx, pool, func(tx pgx.Tx) error {
		for _, d := range departments {
			for i := 0; i < perDept; i++ {
				id := uuid.New()
				name := "Dr. " + faker.FirstName() + " " + faker.LastName()
				_, err := tx.Exec(ctx, `
					INSERT INTO doctors (id, name, department, specialization, consultation_hours, active, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, TRUE, now(), now())
				`, id, name, d.name, d.description, "9 AM - 12 PM, 2 PM - 5 PM")
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("doctors seeded: %d", len(ids))
	return ids, nil
}

func seedAvailability(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID, days int, loc *time.Location) error {
	log.Printf("seeding %d days of 30-minute slots for %d doctors", days, len(doctorIDs))

	now := time.Now().In(loc)
	first := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)

	total := 0
	for _, doctorID := range doctorIDs {
		batch := &pgx.Batch{}
		for d := 0; d < days; d++ {
			day := first.AddDate(0, 0, d)
			if day.Weekday() == time.Sunday {
				continue
			}
			for _, w := range windows {
				start := time.Date(day.Year(), day.Month(), day.Day(), w[0], 0, 0, 0, loc)
				end := time.Date(day.Year(), day.Month(), day.Day(), w[1], 0, 0, 0, loc)
				for s := start; s.Before(end); s = s.Add(30 * time.Minute) {
					batch.Queue(`
						INSERT INTO availability (id, doctor_id, start_time, end_time, is_booked, created_at, updated_at)
						VALUES ($1, $2, $3, $4, FALSE, now(), now())
						ON CONFLICT (doctor_id, start_time) DO NOTHING
					`, uuid.New(), doctorID, s, s.Add(30*time.Minute))
					total++
				}
			}
		}
		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}

	log.Printf("availability seeded: %d slots", total)
	return nil
}

func seedKnowledge(ctx context.Context, pool *pgxpool.Pool) error {
	log.Printf("seeding %d knowledge entries", len(knowledgeEntries))

	return db.InTx(ctx, pool, func(tx pgx.Tx) error {
		for _, e := range knowledgeEntries {
			_, err := tx.Exec(ctx, `
				INSERT INTO knowledge_base (id, question, answer, created_at)
				SELECT $1::uuid, $2::text, $3::text, now()
				WHERE NOT EXISTS (SELECT 1 FROM knowledge_base WHERE question = $2::text)
			`, uuid.New(), e[0], e[1])
			if err != nil {
				return err
			}
		}
		return nil
	})
}
