package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/whatsapp-hospital-bot/internal/db"
)

var ErrEntryNotFound = errors.New("knowledge entry not found")

// Entry is one question/answer fact the assistant may draw on.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

type Repository interface {
	List(ctx context.Context) ([]Entry, error)
	Create(ctx context.Context, question, answer string) (*Entry, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type PgRepository struct {
	conn db.Conn
}

func NewPgRepository(conn db.Conn) *PgRepository {
	return &PgRepository{conn: conn}
}

func (r *PgRepository) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, question, answer, created_at
		FROM knowledge_base
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list knowledge entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PgRepository) Create(ctx context.Context, question, answer string) (*Entry, error) {
	var e Entry
	err := r.conn.QueryRow(ctx, `
		INSERT INTO knowledge_base (id, question, answer, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id, question, answer, created_at
	`, uuid.New(), question, answer).Scan(&e.ID, &e.Question, &e.Answer, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create knowledge entry: %w", err)
	}
	return &e, nil
}

func (r *PgRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn.Exec(ctx, `DELETE FROM knowledge_base WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete knowledge entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}
