package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	redisclient "github.com/hackgods/whatsapp-hospital-bot/internal/redis"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
)

var (
	ErrSlotAlreadyBooked       = errors.New("slot already has a booked appointment")
	ErrSlotBeingBooked         = errors.New("slot is currently being booked, please retry")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrInvalidBooking          = errors.New("invalid booking request")
)

var bookingTracer = otel.Tracer("hospital-bot/booking")

type Service struct {
	repo   Repository
	locker redisclient.Locker
	logger *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		locker: locker,
		logger: logger,
		now:    time.Now,
	}
}

// Book commits a booking: the slot flips to booked and the appointment is
// created in one transaction, guarded by a per-slot lock so concurrent
// confirmations for the same slot fail fast instead of queueing.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.commit")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.doctor_id", req.DoctorID.String()),
		attribute.String("booking.availability_id", req.AvailabilityID.String()),
	)

	if req.DoctorID == uuid.Nil || req.AvailabilityID == uuid.Nil || req.PatientName == "" || req.PatientPhone == "" {
		return nil, ErrInvalidBooking
	}

	var created *Appointment

	err := s.locker.WithLock(ctx, redisclient.SlotKey(req.AvailabilityID), func(lockCtx context.Context) error {
		appt, err := s.repo.BookSlot(lockCtx, req)
		if err != nil {
			return err
		}
		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentBooked, map[string]any{
			"doctor_id":       req.DoctorID.String(),
			"availability_id": req.AvailabilityID.String(),
			"patient_phone":   req.PatientPhone,
		})
		return nil
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "booking failed")
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		if errors.Is(err, ErrSlotAlreadyBooked) {
			return nil, err
		}
		return nil, fmt.Errorf("book slot: %w", err)
	}

	s.logger.Info("appointment booked",
		zap.String("appointment_id", created.ID.String()),
		zap.String("availability_id", created.AvailabilityID.String()),
		zap.String("phone", created.PatientPhone),
	)

	return created, nil
}

// Cancel marks a booked appointment cancelled and releases its slot.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("booking.appointment_id", id.String()))

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.Status != StatusBooked {
		return nil, ErrInvalidStatusTransition
	}

	cancelled, err := s.repo.CancelAppointment(ctx, id)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrAppointmentNotFound) {
			// lost a race with another cancellation
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.logEvent(ctx, cancelled.ID, EventAppointmentCancelled, map[string]any{
		"availability_id": cancelled.AvailabilityID.String(),
	})

	return cancelled, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error("insert event log",
			zap.String("event", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
	}
}

// Directory reads

func (s *Service) ListActiveDoctors(ctx context.Context) ([]Doctor, error) {
	return s.repo.ListActiveDoctors(ctx)
}

func (s *Service) ListActiveDepartments(ctx context.Context) ([]Department, error) {
	return s.repo.ListActiveDepartments(ctx)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.repo.GetDoctorByID(ctx, id)
}

func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return s.repo.GetSlotByID(ctx, id)
}

// ListOpenSlots returns the doctor's unbooked slots starting in [from, to) that
// are still in the future. A zero to means no upper bound.
func (s *Service) ListOpenSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Slot, error) {
	if now := s.now(); from.Before(now) {
		from = now
	}
	slots, err := s.repo.ListOpenSlots(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list open slots: %w", err)
	}
	return slots, nil
}

func (s *Service) ListDoctorsWithOpenSlots(ctx context.Context, from, to time.Time) ([]Doctor, error) {
	if now := s.now(); from.Before(now) {
		from = now
	}
	doctors, err := s.repo.ListDoctorsWithOpenSlots(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list doctors with open slots: %w", err)
	}
	return doctors, nil
}

// ListUnremindedBetween and MarkReminded back the day-before reminder run.
func (s *Service) ListUnremindedBetween(ctx context.Context, from, to time.Time) ([]AppointmentDetail, error) {
	return s.repo.ListUnremindedBetween(ctx, from, to)
}

func (s *Service) MarkReminded(ctx context.Context, id uuid.UUID) error {
	return s.repo.MarkReminded(ctx, id, s.now())
}
