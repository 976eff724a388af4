package support

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository used by tests and the
// simulator.
type MemoryRepository struct {
	mu       sync.Mutex
	tickets  map[uuid.UUID]*Ticket
	messages map[uuid.UUID][]Message
	now      func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		tickets:  make(map[uuid.UUID]*Ticket),
		messages: make(map[uuid.UUID][]Message),
		now:      time.Now,
	}
}

func (m *MemoryRepository) ActiveTicket(_ context.Context, phone string) (*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tickets {
		if t.Phone == phone && t.Status == StatusOpen {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrTicketNotFound
}

func (m *MemoryRepository) GetTicket(_ context.Context, id uuid.UUID) (*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, ErrTicketNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryRepository) CreateTicket(_ context.Context, phone, query string) (*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tickets {
		if t.Phone == phone && t.Status == StatusOpen {
			return nil, ErrTicketExists
		}
	}
	now := m.now()
	t := &Ticket{ID: uuid.New(), Phone: phone, Query: query, Status: StatusOpen, CreatedAt: now, UpdatedAt: now}
	m.tickets[t.ID] = t
	cp := *t
	return &cp, nil
}

func (m *MemoryRepository) AppendMessage(_ context.Context, ticketID uuid.UUID, sender Sender, body string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[ticketID]
	if !ok {
		return nil, ErrTicketNotFound
	}
	msg := Message{ID: uuid.New(), TicketID: ticketID, Sender: sender, Body: body, CreatedAt: m.now()}
	m.messages[ticketID] = append(m.messages[ticketID], msg)
	t.UpdatedAt = msg.CreatedAt
	return &msg, nil
}

func (m *MemoryRepository) Resolve(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok || t.Status != StatusOpen {
		return ErrTicketNotFound
	}
	t.Status = StatusResolved
	t.UpdatedAt = m.now()
	return nil
}

func (m *MemoryRepository) ListOpen(context.Context) ([]Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Ticket, 0, len(m.tickets))
	for _, t := range m.tickets {
		if t.Status != StatusOpen {
			continue
		}
		cp := *t
		cp.Messages = append([]Message(nil), m.messages[t.ID]...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
