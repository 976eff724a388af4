package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const adminListLimit = 500

var (
	ErrDepartmentNotFound = errors.New("department not found")
	ErrDepartmentExists   = errors.New("department name already exists")
	ErrSlotExists         = errors.New("doctor already has a slot at that start time")
	ErrSlotInUse          = errors.New("slot is booked or referenced by an appointment")
	ErrInvalidSlot        = errors.New("slot must end after it starts")
)

// AdminRepository is the staff-facing side of the directory: full listings,
// including inactive rows, and the writes behind them.
type AdminRepository interface {
	ListDoctors(ctx context.Context, filter DoctorFilter) ([]Doctor, error)
	CreateDoctor(ctx context.Context, in NewDoctor) (*Doctor, error)
	UpdateDoctor(ctx context.Context, id uuid.UUID, patch DoctorPatch) (*Doctor, error)

	ListDepartments(ctx context.Context) ([]Department, error)
	CreateDepartment(ctx context.Context, in NewDepartment) (*Department, error)
	UpdateDepartment(ctx context.Context, id uuid.UUID, patch DepartmentPatch) (*Department, error)

	ListSlots(ctx context.Context, filter SlotFilter) ([]Slot, error)
	CreateSlot(ctx context.Context, in NewSlot) (*Slot, error)
	// DeleteSlot removes an unbooked slot that no appointment ever referenced.
	DeleteSlot(ctx context.Context, id uuid.UUID) error

	// ListAppointments returns the newest appointments first.
	ListAppointments(ctx context.Context, filter AppointmentFilter) ([]AppointmentDetail, error)
}

type DoctorFilter struct {
	// Department matches case-insensitively anywhere in the doctor's label.
	Department string
	ActiveOnly bool
}

type NewDoctor struct {
	Name              string
	Department        string
	Specialization    *string
	ConsultationHours *string
}

// DoctorPatch leaves nil fields untouched.
type DoctorPatch struct {
	Name              *string
	Department        *string
	Specialization    *string
	ConsultationHours *string
	Active            *bool
}

type NewDepartment struct {
	Name         string
	Description  string
	Icon         string
	DisplayOrder int
}

type DepartmentPatch struct {
	Name         *string
	Description  *string
	Icon         *string
	DisplayOrder *int
	Active       *bool
}

// SlotFilter bounds are optional; zero values mean unbounded.
type SlotFilter struct {
	DoctorID *uuid.UUID
	From     time.Time
	To       time.Time
}

type NewSlot struct {
	DoctorID  uuid.UUID
	StartTime time.Time
	EndTime   time.Time
}

type AppointmentFilter struct {
	Status   AppointmentStatus
	DoctorID *uuid.UUID
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func (r *PgRepository) ListDoctors(ctx context.Context, filter DoctorFilter) ([]Doctor, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE ($1 = '' OR department ILIKE '%' || $1 || '%')
		  AND (NOT $2 OR active = TRUE)
		ORDER BY created_at, name
	`, filter.Department, filter.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return collectDoctors(rows)
}

func (r *PgRepository) CreateDoctor(ctx context.Context, in NewDoctor) (*Doctor, error) {
	row := r.conn.QueryRow(ctx, `
		INSERT INTO doctors (id, name, department, specialization, consultation_hours, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, now(), now())
		RETURNING `+doctorColumns,
		uuid.New(), in.Name, in.Department, in.Specialization, in.ConsultationHours)

	d, err := scanDoctor(row)
	if err != nil {
		return nil, fmt.Errorf("insert doctor: %w", err)
	}
	return d, nil
}

func (r *PgRepository) UpdateDoctor(ctx context.Context, id uuid.UUID, patch DoctorPatch) (*Doctor, error) {
	row := r.conn.QueryRow(ctx, `
		UPDATE doctors
		SET name = COALESCE($2, name),
		    department = COALESCE($3, department),
		    specialization = COALESCE($4, specialization),
		    consultation_hours = COALESCE($5, consultation_hours),
		    active = COALESCE($6, active),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+doctorColumns,
		id, patch.Name, patch.Department, patch.Specialization, patch.ConsultationHours, patch.Active)

	d, err := scanDoctor(row)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update doctor: %w", err)
	}
	return d, nil
}

func (r *PgRepository) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+departmentColumns+`
		FROM departments
		ORDER BY display_order, name
	`)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return collectDepartments(rows)
}

func (r *PgRepository) CreateDepartment(ctx context.Context, in NewDepartment) (*Department, error) {
	row := r.conn.QueryRow(ctx, `
		INSERT INTO departments (id, name, description, icon, display_order, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, now(), now())
		RETURNING `+departmentColumns,
		uuid.New(), in.Name, in.Description, in.Icon, in.DisplayOrder)

	d, err := scanDepartment(row)
	if err != nil {
		if pgCode(err) == uniqueViolation {
			return nil, ErrDepartmentExists
		}
		return nil, fmt.Errorf("insert department: %w", err)
	}
	return d, nil
}

func (r *PgRepository) UpdateDepartment(ctx context.Context, id uuid.UUID, patch DepartmentPatch) (*Department, error) {
	row := r.conn.QueryRow(ctx, `
		UPDATE departments
		SET name = COALESCE($2, name),
		    description = COALESCE($3, description),
		    icon = COALESCE($4, icon),
		    display_order = COALESCE($5, display_order),
		    active = COALESCE($6, active),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+departmentColumns,
		id, patch.Name, patch.Description, patch.Icon, patch.DisplayOrder, patch.Active)

	d, err := scanDepartment(row)
	switch {
	case err == nil:
		return d, nil
	case errors.Is(err, ErrDepartmentNotFound):
		return nil, err
	case pgCode(err) == uniqueViolation:
		return nil, ErrDepartmentExists
	default:
		return nil, fmt.Errorf("update department: %w", err)
	}
}

func (r *PgRepository) ListSlots(ctx context.Context, filter SlotFilter) ([]Slot, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+slotColumns+`
		FROM availability
		WHERE ($1::uuid IS NULL OR doctor_id = $1)
		  AND ($2::timestamptz IS NULL OR start_time >= $2)
		  AND ($3::timestamptz IS NULL OR start_time < $3)
		ORDER BY start_time
		LIMIT $4
	`, filter.DoctorID, nullableTime(filter.From), nullableTime(filter.To), adminListLimit)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return collectSlots(rows)
}

func (r *PgRepository) CreateSlot(ctx context.Context, in NewSlot) (*Slot, error) {
	row := r.conn.QueryRow(ctx, `
		INSERT INTO availability (id, doctor_id, start_time, end_time, is_booked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, now(), now())
		RETURNING `+slotColumns,
		uuid.New(), in.DoctorID, in.StartTime, in.EndTime)

	s, err := scanSlot(row)
	if err != nil {
		switch pgCode(err) {
		case uniqueViolation:
			return nil, ErrSlotExists
		case foreignKeyViolation:
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("insert slot: %w", err)
	}
	return s, nil
}

func (r *PgRepository) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn.Exec(ctx, `
		DELETE FROM availability
		WHERE id = $1
		  AND is_booked = FALSE
	`, id)
	if err != nil {
		if pgCode(err) == foreignKeyViolation {
			return ErrSlotInUse
		}
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := r.GetSlotByID(ctx, id); err != nil {
		return err
	}
	return ErrSlotInUse
}

func (r *PgRepository) ListAppointments(ctx context.Context, filter AppointmentFilter) ([]AppointmentDetail, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+detailColumns+`
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		JOIN availability s ON s.id = a.availability_id
		WHERE ($1 = '' OR a.status = $1)
		  AND ($2::uuid IS NULL OR a.doctor_id = $2)
		ORDER BY a.created_at DESC
		LIMIT $3
	`, string(filter.Status), filter.DoctorID, adminListLimit)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collectDetails(rows)
}
