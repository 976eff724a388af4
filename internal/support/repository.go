package support

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

type TicketStatus string

const (
	StatusOpen     TicketStatus = "OPEN"
	StatusResolved TicketStatus = "RESOLVED"
)

type Sender string

const (
	SenderUser  Sender = "USER"
	SenderAdmin Sender = "ADMIN"
)

var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrTicketExists   = errors.New("phone already has an open ticket")
)

type Ticket struct {
	ID        uuid.UUID    `json:"id"`
	Phone     string       `json:"phone"`
	Query     string       `json:"query"`
	Status    TicketStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Messages  []Message    `json:"messages,omitempty"`
}

type Message struct {
	ID        uuid.UUID `json:"id"`
	TicketID  uuid.UUID `json:"ticket_id"`
	Sender    Sender    `json:"sender"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type Repository interface {
	ActiveTicket(ctx context.Context, phone string) (*Ticket, error)
	GetTicket(ctx context.Context, id uuid.UUID) (*Ticket, error)
	CreateTicket(ctx context.Context, phone, query string) (*Ticket, error)
	AppendMessage(ctx context.Context, ticketID uuid.UUID, sender Sender, body string) (*Message, error)
	Resolve(ctx context.Context, id uuid.UUID) error
	ListOpen(ctx context.Context) ([]Ticket, error)
}

const ticketColumns = `id, phone, query, status, created_at, updated_at`

type PgRepository struct {
	conn db.Conn
}

func NewPgRepository(conn db.Conn) *PgRepository {
	return &PgRepository{conn: conn}
}

func scanTicket(row pgx.Row) (*Ticket, error) {
	var t Ticket
	if err := row.Scan(&t.ID, &t.Phone, &t.Query, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *PgRepository) ActiveTicket(ctx context.Context, phone string) (*Ticket, error) {
	return scanTicket(r.conn.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM support_tickets
		WHERE phone = $1 AND status = 'OPEN'
	`, phone))
}

func (r *PgRepository) GetTicket(ctx context.Context, id uuid.UUID) (*Ticket, error) {
	return scanTicket(r.conn.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM support_tickets
		WHERE id = $1
	`, id))
}

func (r *PgRepository) CreateTicket(ctx context.Context, phone, query string) (*Ticket, error) {
	t, err := scanTicket(r.conn.QueryRow(ctx, `
		INSERT INTO support_tickets (id, phone, query, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'OPEN', now(), now())
		RETURNING `+ticketColumns,
		uuid.New(), phone, query))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrTicketExists
		}
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	return t, nil
}

func (r *PgRepository) AppendMessage(ctx context.Context, ticketID uuid.UUID, sender Sender, body string) (*Message, error) {
	var m Message
	err := r.conn.QueryRow(ctx, `
		INSERT INTO ticket_messages (id, ticket_id, sender, body, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, ticket_id, sender, body, created_at
	`, uuid.New(), ticketID, string(sender), body).Scan(&m.ID, &m.TicketID, &m.Sender, &m.Body, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("append ticket message: %w", err)
	}

	if _, err := r.conn.Exec(ctx, `UPDATE support_tickets SET updated_at = now() WHERE id = $1`, ticketID); err != nil {
		return nil, fmt.Errorf("touch ticket: %w", err)
	}
	return &m, nil
}

func (r *PgRepository) Resolve(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE support_tickets
		SET status = 'RESOLVED', updated_at = now()
		WHERE id = $1 AND status = 'OPEN'
	`, id)
	if err != nil {
		return fmt.Errorf("resolve ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTicketNotFound
	}
	return nil
}

// ListOpen returns open tickets, newest first, each with its messages in order.
func (r *PgRepository) ListOpen(ctx context.Context) ([]Ticket, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM support_tickets
		WHERE status = 'OPEN'
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list open tickets: %w", err)
	}

	var tickets []Ticket
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[t.ID] = len(tickets)
		tickets = append(tickets, *t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return tickets, nil
	}

	ids := make([]uuid.UUID, 0, len(tickets))
	for _, t := range tickets {
		ids = append(ids, t.ID)
	}

	msgRows, err := r.conn.Query(ctx, `
		SELECT id, ticket_id, sender, body, created_at
		FROM ticket_messages
		WHERE ticket_id = ANY($1)
		ORDER BY created_at
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("list ticket messages: %w", err)
	}
	defer msgRows.Close()

	for msgRows.Next() {
		var m Message
		if err := msgRows.Scan(&m.ID, &m.TicketID, &m.Sender, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		if i, ok := index[m.TicketID]; ok {
			tickets[i].Messages = append(tickets[i].Messages, m)
		}
	}
	return tickets, msgRows.Err()
}
