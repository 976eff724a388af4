package dialogue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/whatsapp-hospital-bot/internal/appointment"
	"github.com/hackgods/whatsapp-hospital-bot/internal/messaging"
	redisclient "github.com/hackgods/whatsapp-hospital-bot/internal/redis"
	"github.com/hackgods/whatsapp-hospital-bot/internal/session"
	"github.com/hackgods/whatsapp-hospital-bot/internal/support"
)

// Tuesday 09:00 UTC
var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func at(day, hour, min int) time.Time {
	return time.Date(2026, 3, day, hour, min, 0, 0, time.UTC)
}

type bookingStore struct {
	mu           sync.Mutex
	doctors      []appointment.Doctor
	slots        map[uuid.UUID]*appointment.Slot
	appointments map[uuid.UUID]*appointment.Appointment
}

func newBookingStore() *bookingStore {
	return &bookingStore{
		slots:        make(map[uuid.UUID]*appointment.Slot),
		appointments: make(map[uuid.UUID]*appointment.Appointment),
	}
}

func (b *bookingStore) addSlot(doctorID uuid.UUID, start time.Time) uuid.UUID {
	id := uuid.New()
	b.slots[id] = &appointment.Slot{ID: id, DoctorID: doctorID, StartTime: start, EndTime: start.Add(30 * time.Minute)}
	return id
}

func (b *bookingStore) Book(_ context.Context, req appointment.BookingRequest) (*appointment.Appointment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.slots[req.AvailabilityID]
	if !ok || s.IsBooked || s.DoctorID != req.DoctorID {
		return nil, appointment.ErrSlotAlreadyBooked
	}
	s.IsBooked = true
	a := &appointment.Appointment{
		ID:             uuid.New(),
		DoctorID:       req.DoctorID,
		AvailabilityID: req.AvailabilityID,
		PatientName:    req.PatientName,
		PatientAge:     req.PatientAge,
		PatientPhone:   req.PatientPhone,
		Status:         appointment.StatusBooked,
	}
	b.appointments[a.ID] = a
	return a, nil
}

func (b *bookingStore) Cancel(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	if a.Status != appointment.StatusBooked {
		return nil, appointment.ErrInvalidStatusTransition
	}
	a.Status = appointment.StatusCancelled
	b.slots[a.AvailabilityID].IsBooked = false
	return a, nil
}

func (b *bookingStore) GetSlot(_ context.Context, id uuid.UUID) (*appointment.Slot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.slots[id]
	if !ok {
		return nil, appointment.ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (b *bookingStore) ListOpenSlots(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]appointment.Slot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []appointment.Slot
	for _, s := range b.slots {
		if s.DoctorID != doctorID || s.IsBooked || s.StartTime.Before(from) {
			continue
		}
		if !to.IsZero() && !s.StartTime.Before(to) {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (b *bookingStore) ListDoctorsWithOpenSlots(ctx context.Context, from, to time.Time) ([]appointment.Doctor, error) {
	var out []appointment.Doctor
	for _, d := range b.doctors {
		open, _ := b.ListOpenSlots(ctx, d.ID, from, to)
		if len(open) > 0 {
			out = append(out, d)
		}
	}
	return out, nil
}

func (b *bookingStore) booked() []appointment.Appointment {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []appointment.Appointment
	for _, a := range b.appointments {
		if a.Status == appointment.StatusBooked {
			out = append(out, *a)
		}
	}
	return out
}

type staticCatalog struct {
	doctors     []appointment.Doctor
	departments []appointment.Department
}

func (c staticCatalog) Doctors(context.Context) ([]appointment.Doctor, error) { return c.doctors, nil }

func (c staticCatalog) Departments(context.Context) ([]appointment.Department, error) {
	return c.departments, nil
}

func (c staticCatalog) DoctorsInDepartment(_ context.Context, dept string) ([]appointment.Doctor, error) {
	var out []appointment.Doctor
	for _, d := range c.doctors {
		if d.InDepartment(dept) {
			out = append(out, d)
		}
	}
	return out, nil
}

type answerFunc func(query, lang string) (string, error)

func (f answerFunc) Answer(_ context.Context, query, lang string) (string, error) { return f(query, lang) }

type sent struct {
	kind    string
	to      string
	body    string
	buttons []messaging.Button
	list    messaging.List
}

type recordingSender struct {
	mu  sync.Mutex
	out []sent
}

func (r *recordingSender) SendText(_ context.Context, to, body string) error {
	r.record(sent{kind: "text", to: to, body: body})
	return nil
}

func (r *recordingSender) SendButtons(_ context.Context, to, body string, buttons []messaging.Button) error {
	r.record(sent{kind: "buttons", to: to, body: body, buttons: buttons})
	return nil
}

func (r *recordingSender) SendList(_ context.Context, to string, l messaging.List) error {
	r.record(sent{kind: "list", to: to, body: l.Body, list: l})
	return nil
}

func (r *recordingSender) record(s sent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, s)
}

func (r *recordingSender) last() sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.out) == 0 {
		return sent{}
	}
	return r.out[len(r.out)-1]
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.out)
}

type fixture struct {
	engine   *Engine
	store    *bookingStore
	sessions *session.MemoryStore
	tickets  *support.Service
	sender   *recordingSender
	redis    *miniredis.Miniredis
	answer   answerFunc

	anil, kevin, meera                     appointment.Doctor
	cardiology, general, ent               appointment.Department
	anil4pm, anil430pm, anil10am, anil12th uuid.UUID
	kevin11am, kevin5pm                    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	f := &fixture{
		store:    newBookingStore(),
		sessions: session.NewMemoryStore(),
		sender:   &recordingSender{},
		redis:    mr,
	}
	f.answer = func(string, string) (string, error) { return "We are open 24x7.", nil }

	f.anil = appointment.Doctor{ID: uuid.New(), Name: "Dr. Anil Menon", Department: "General Medicine", Active: true}
	f.kevin = appointment.Doctor{ID: uuid.New(), Name: "Dr. Kevin Taylor", Department: "Cardiology", Active: true}
	f.meera = appointment.Doctor{ID: uuid.New(), Name: "Dr. Meera Nair", Department: "Cardiology", Active: true}
	f.cardiology = appointment.Department{ID: uuid.New(), Name: "Cardiology", Icon: "❤️", DisplayOrder: 1, Active: true}
	f.general = appointment.Department{ID: uuid.New(), Name: "General Medicine", DisplayOrder: 2, Active: true}
	f.ent = appointment.Department{ID: uuid.New(), Name: "ENT", DisplayOrder: 3, Active: true}

	f.store.doctors = []appointment.Doctor{f.anil, f.kevin, f.meera}
	f.anil4pm = f.store.addSlot(f.anil.ID, at(11, 16, 0))
	f.anil430pm = f.store.addSlot(f.anil.ID, at(11, 16, 30))
	f.anil10am = f.store.addSlot(f.anil.ID, at(11, 10, 0))
	f.anil12th = f.store.addSlot(f.anil.ID, at(12, 9, 0))
	f.kevin11am = f.store.addSlot(f.kevin.ID, at(11, 11, 0))
	f.kevin5pm = f.store.addSlot(f.kevin.ID, at(11, 17, 0))

	f.tickets = support.NewService(support.NewMemoryRepository(), f.sender, nil)

	f.engine = New(Deps{
		Appointments: f.store,
		Catalog: staticCatalog{
			doctors:     f.store.doctors,
			departments: []appointment.Department{f.cardiology, f.general, f.ent},
		},
		Tickets:  f.tickets,
		Answerer: answerFunc(func(q, l string) (string, error) { return f.answer(q, l) }),
		Sessions: f.sessions,
		Sender:   f.sender,
		Locker:   redisclient.NewRedisLocker(client, 5*time.Second),
	}, Options{
		HospitalName:     "ABC Hospital",
		HospitalContact:  "+91 484 000 0000",
		HospitalLocation: "MG Road, Kochi",
		PhoneLockWait:    100 * time.Millisecond,
		Now:              func() time.Time { return testNow },
	})
	return f
}

const phone = "919800000001"

func textMsg(body string) messaging.Inbound {
	return messaging.Inbound{MessageID: uuid.NewString(), From: phone, Kind: messaging.KindText, Text: body}
}

func reply(id, title string) messaging.Inbound {
	return messaging.Inbound{MessageID: uuid.NewString(), From: phone, Kind: messaging.KindInteractive, ReplyID: id, ReplyTitle: title}
}

func (f *fixture) send(t *testing.T, in messaging.Inbound) {
	t.Helper()
	require.NoError(t, f.engine.Handle(context.Background(), in))
}

func (f *fixture) step(t *testing.T) session.Step {
	t.Helper()
	s, err := f.sessions.Get(context.Background(), phone)
	require.NoError(t, err)
	return s.Step
}

func (f *fixture) put(t *testing.T, step session.Step) {
	t.Helper()
	require.NoError(t, f.sessions.Put(context.Background(), &session.Session{Phone: phone, Step: step}))
}

func rowIDs(l messaging.List) []string {
	var ids []string
	for _, sec := range l.Sections {
		for _, r := range sec.Rows {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

func hasPrefixAll(ids []string, prefix string) bool {
	for _, id := range ids {
		if !strings.HasPrefix(id, prefix) {
			return false
		}
	}
	return len(ids) > 0
}

var errUpstream = errors.New("upstream unavailable")
