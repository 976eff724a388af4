package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/whatsapp-hospital-bot/internal/db"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
)

var ErrReminderNotFound = errors.New("scheduled reminder not found")

// Scheduled is a one-off reminder queued for a phone, e.g. a demo booking.
type Scheduled struct {
	ID        uuid.UUID
	Phone     string
	SendAt    time.Time
	Type      string
	Status    Status
	CreatedAt time.Time
}

type Repository interface {
	Schedule(ctx context.Context, phone string, sendAt time.Time, kind string) (*Scheduled, error)
	Due(ctx context.Context, now time.Time, limit int) ([]Scheduled, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
}

type PgRepository struct {
	conn db.Conn
}

func NewPgRepository(conn db.Conn) *PgRepository {
	return &PgRepository{conn: conn}
}

func (r *PgRepository) Schedule(ctx context.Context, phone string, sendAt time.Time, kind string) (*Scheduled, error) {
	var s Scheduled
	err := r.conn.QueryRow(ctx, `
		INSERT INTO scheduled_reminders (id, phone, send_at, type, status, created_at)
		VALUES ($1, $2, $3, $4, 'PENDING', now())
		RETURNING id, phone, send_at, type, status, created_at
	`, uuid.New(), phone, sendAt, kind).Scan(&s.ID, &s.Phone, &s.SendAt, &s.Type, &s.Status, &s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("schedule reminder: %w", err)
	}
	return &s, nil
}

// Due returns pending reminders whose send time has passed, oldest first.
func (r *PgRepository) Due(ctx context.Context, now time.Time, limit int) ([]Scheduled, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, phone, send_at, type, status, created_at
		FROM scheduled_reminders
		WHERE status = 'PENDING'
		  AND send_at <= $1
		ORDER BY send_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	defer rows.Close()

	var out []Scheduled
	for rows.Next() {
		var s Scheduled
		if err := rows.Scan(&s.ID, &s.Phone, &s.SendAt, &s.Type, &s.Status, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PgRepository) MarkSent(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE scheduled_reminders
		SET status = 'SENT'
		WHERE id = $1 AND status = 'PENDING'
	`, id)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReminderNotFound
	}
	return nil
}
