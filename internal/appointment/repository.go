package appointment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	ListActiveDoctors(ctx context.Context) ([]Doctor, error)
	ListActiveDepartments(ctx context.Context) ([]Department, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)

	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	// ListOpenSlots returns unbooked slots starting in [from, to) ordered by start time.
	// A zero to means no upper bound.
	ListOpenSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Slot, error)
	// ListDoctorsWithOpenSlots returns active doctors having at least one open slot in [from, to).
	ListDoctorsWithOpenSlots(ctx context.Context, from, to time.Time) ([]Doctor, error)

	// BookSlot flips the slot to booked and inserts the appointment in one transaction.
	BookSlot(ctx context.Context, req BookingRequest) (*Appointment, error)
	// CancelAppointment marks a booked appointment cancelled and releases its slot in one transaction.
	CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// ListUnremindedBetween returns booked appointments whose slot starts in [from, to) and that were never reminded.
	ListUnremindedBetween(ctx context.Context, from, to time.Time) ([]AppointmentDetail, error)
	MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error

	InsertEvent(ctx context.Context, ev EventLog) error
}

func equalFoldTrim(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
