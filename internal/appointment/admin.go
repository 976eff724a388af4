package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DoctorAvailability pairs an active doctor with the earliest slot still open.
type DoctorAvailability struct {
	Doctor   Doctor
	NextSlot *Slot
}

// Admin serves the staff dashboard. Cancellations go through the booking
// Service, everything else straight to the repository.
type Admin struct {
	repo     AdminRepository
	bookings *Service
	logger   *zap.Logger
}

func NewAdmin(repo AdminRepository, bookings *Service, logger *zap.Logger) *Admin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Admin{repo: repo, bookings: bookings, logger: logger}
}

func (a *Admin) ListDoctors(ctx context.Context) ([]Doctor, error) {
	return a.repo.ListDoctors(ctx, DoctorFilter{})
}

func (a *Admin) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return a.bookings.GetDoctor(ctx, id)
}

// DoctorsByDepartment lists the department's active doctors with their next open slot.
func (a *Admin) DoctorsByDepartment(ctx context.Context, dept string) ([]DoctorAvailability, error) {
	doctors, err := a.repo.ListDoctors(ctx, DoctorFilter{Department: strings.TrimSpace(dept), ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	out := make([]DoctorAvailability, 0, len(doctors))
	for _, d := range doctors {
		slots, err := a.bookings.ListOpenSlots(ctx, d.ID, time.Time{}, time.Time{})
		if err != nil {
			return nil, err
		}
		entry := DoctorAvailability{Doctor: d}
		if len(slots) > 0 {
			entry.NextSlot = &slots[0]
		}
		out = append(out, entry)
	}
	return out, nil
}

func (a *Admin) CreateDoctor(ctx context.Context, in NewDoctor) (*Doctor, error) {
	d, err := a.repo.CreateDoctor(ctx, in)
	if err != nil {
		return nil, err
	}
	a.logger.Info("doctor created", zap.String("doctor_id", d.ID.String()), zap.String("department", d.Department))
	return d, nil
}

func (a *Admin) UpdateDoctor(ctx context.Context, id uuid.UUID, patch DoctorPatch) (*Doctor, error) {
	return a.repo.UpdateDoctor(ctx, id, patch)
}

func (a *Admin) ListDepartments(ctx context.Context) ([]Department, error) {
	return a.repo.ListDepartments(ctx)
}

func (a *Admin) CreateDepartment(ctx context.Context, in NewDepartment) (*Department, error) {
	return a.repo.CreateDepartment(ctx, in)
}

func (a *Admin) UpdateDepartment(ctx context.Context, id uuid.UUID, patch DepartmentPatch) (*Department, error) {
	return a.repo.UpdateDepartment(ctx, id, patch)
}

func (a *Admin) ListSlots(ctx context.Context, filter SlotFilter) ([]Slot, error) {
	return a.repo.ListSlots(ctx, filter)
}

func (a *Admin) CreateSlot(ctx context.Context, in NewSlot) (*Slot, error) {
	if !in.EndTime.After(in.StartTime) {
		return nil, ErrInvalidSlot
	}
	return a.repo.CreateSlot(ctx, in)
}

func (a *Admin) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	if err := a.repo.DeleteSlot(ctx, id); err != nil {
		return err
	}
	a.logger.Info("slot deleted", zap.String("availability_id", id.String()))
	return nil
}

func (a *Admin) ListAppointments(ctx context.Context, filter AppointmentFilter) ([]AppointmentDetail, error) {
	return a.repo.ListAppointments(ctx, filter)
}

func (a *Admin) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := a.bookings.Cancel(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("admin cancel: %w", err)
	}
	return appt, nil
}
