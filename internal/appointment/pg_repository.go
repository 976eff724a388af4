package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/whatsapp-hospital-bot/internal/db"
)

const (
	doctorColumns      = `id, name, department, specialization, consultation_hours, active`
	departmentColumns  = `id, name, description, icon, display_order, active`
	slotColumns        = `id, doctor_id, start_time, end_time, is_booked`
	appointmentColumns = `id, doctor_id, availability_id, patient_name, patient_age, patient_phone, status, reminded_at, created_at, updated_at`
	detailColumns      = `a.id, a.doctor_id, a.availability_id, a.patient_name, a.patient_age, a.patient_phone,
		       a.status, a.reminded_at, a.created_at, a.updated_at,
		       d.id, d.name, d.department, d.specialization, d.consultation_hours, d.active,
		       s.id, s.doctor_id, s.start_time, s.end_time, s.is_booked`

	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type PgRepository struct {
	conn db.Conn
}

func NewPgRepository(conn db.Conn) *PgRepository {
	return &PgRepository{conn: conn}
}

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Department,
		&d.Specialization,
		&d.ConsultationHours,
		&d.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanDepartment(row pgx.Row) (*Department, error) {
	var d Department
	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Description,
		&d.Icon,
		&d.DisplayOrder,
		&d.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDepartmentNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.StartTime,
		&s.EndTime,
		&s.IsBooked,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.AvailabilityID,
		&a.PatientName,
		&a.PatientAge,
		&a.PatientPhone,
		&a.Status,
		&a.RemindedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func collectDoctors(rows pgx.Rows) ([]Doctor, error) {
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func collectDepartments(rows pgx.Rows) ([]Department, error) {
	defer rows.Close()

	var result []Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func collectSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func collectDetails(rows pgx.Rows) ([]AppointmentDetail, error) {
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		var d AppointmentDetail
		err := rows.Scan(
			&d.ID, &d.DoctorID, &d.AvailabilityID, &d.PatientName, &d.PatientAge, &d.PatientPhone,
			&d.Status, &d.RemindedAt, &d.CreatedAt, &d.UpdatedAt,
			&d.Doctor.ID, &d.Doctor.Name, &d.Doctor.Department, &d.Doctor.Specialization, &d.Doctor.ConsultationHours, &d.Doctor.Active,
			&d.Slot.ID, &d.Slot.DoctorID, &d.Slot.StartTime, &d.Slot.EndTime, &d.Slot.IsBooked,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Interface methods

func (r *PgRepository) ListActiveDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE active = TRUE
		ORDER BY created_at, name
	`)
	if err != nil {
		return nil, fmt.Errorf("list active doctors: %w", err)
	}
	return collectDoctors(rows)
}

func (r *PgRepository) ListActiveDepartments(ctx context.Context) ([]Department, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+departmentColumns+`
		FROM departments
		WHERE active = TRUE
		ORDER BY display_order, name
	`)
	if err != nil {
		return nil, fmt.Errorf("list active departments: %w", err)
	}
	return collectDepartments(rows)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM availability
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListOpenSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Slot, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+slotColumns+`
		FROM availability
		WHERE doctor_id = $1
		  AND is_booked = FALSE
		  AND start_time >= $2
		  AND ($3::timestamptz IS NULL OR start_time < $3)
		ORDER BY start_time
	`, doctorID, from, nullableTime(to))
	if err != nil {
		return nil, fmt.Errorf("list open slots: %w", err)
	}
	return collectSlots(rows)
}

func (r *PgRepository) ListDoctorsWithOpenSlots(ctx context.Context, from, to time.Time) ([]Doctor, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors d
		WHERE d.active = TRUE
		  AND EXISTS (
			SELECT 1 FROM availability a
			WHERE a.doctor_id = d.id
			  AND a.is_booked = FALSE
			  AND a.start_time >= $1
			  AND a.start_time < $2
		  )
		ORDER BY d.created_at, d.name
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list doctors with open slots: %w", err)
	}
	return collectDoctors(rows)
}

func (r *PgRepository) BookSlot(ctx context.Context, req BookingRequest) (*Appointment, error) {
	var created *Appointment

	err := db.InTx(ctx, r.conn, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE availability
			SET is_booked = TRUE,
			    updated_at = now()
			WHERE id = $1
			  AND doctor_id = $2
			  AND is_booked = FALSE
			  AND start_time > now()
		`, req.AvailabilityID, req.DoctorID)
		if err != nil {
			return fmt.Errorf("claim slot: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrSlotAlreadyBooked
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO appointments (id, doctor_id, availability_id, patient_name, patient_age, patient_phone, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, 'BOOKED', now(), now())
			RETURNING `+appointmentColumns,
			uuid.New(), req.DoctorID, req.AvailabilityID, req.PatientName, req.PatientAge, req.PatientPhone)

		appt, err := scanAppointment(row)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return ErrSlotAlreadyBooked
			}
			return fmt.Errorf("insert appointment: %w", err)
		}
		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (r *PgRepository) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var cancelled *Appointment

	err := db.InTx(ctx, r.conn, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = 'CANCELLED',
			    updated_at = now()
			WHERE id = $1
			  AND status = 'BOOKED'
			RETURNING `+appointmentColumns, id)

		appt, err := scanAppointment(row)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE availability
			SET is_booked = FALSE,
			    updated_at = now()
			WHERE id = $1
		`, appt.AvailabilityID); err != nil {
			return fmt.Errorf("release slot: %w", err)
		}

		cancelled = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	return cancelled, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListUnremindedBetween(ctx context.Context, from, to time.Time) ([]AppointmentDetail, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+detailColumns+`
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		JOIN availability s ON s.id = a.availability_id
		WHERE a.status = 'BOOKED'
		  AND a.reminded_at IS NULL
		  AND s.start_time >= $1
		  AND s.start_time < $2
		ORDER BY s.start_time
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list unreminded appointments: %w", err)
	}
	return collectDetails(rows)
}

func (r *PgRepository) MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.conn.Exec(ctx, `
		UPDATE appointments
		SET reminded_at = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark reminded: %w", err)
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
