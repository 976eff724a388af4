// Package support manages escalation tickets. While a phone has an open
// ticket, its inbound messages go to the ticket instead of the bot.
package support

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/hackgods/whatsapp-hospital-bot/internal/messaging"
)

var ErrEmptyReply = errors.New("reply body is required")

var ticketTracer = otel.Tracer("hospital-bot/support")

type Service struct {
	repo   Repository
	sender messaging.Sender
	logger *zap.Logger
}

func NewService(repo Repository, sender messaging.Sender, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, sender: sender, logger: logger}
}

// ActiveTicket returns the phone's open ticket or ErrTicketNotFound.
func (s *Service) ActiveTicket(ctx context.Context, phone string) (*Ticket, error) {
	return s.repo.ActiveTicket(ctx, phone)
}

// Open creates a ticket for phone with query as its first USER message. If
// the phone already has an open ticket, that ticket is returned instead.
func (s *Service) Open(ctx context.Context, phone, query string) (*Ticket, error) {
	ctx, span := ticketTracer.Start(ctx, "ticket.open")
	defer span.End()
	span.SetAttributes(attribute.String("ticket.phone", phone))

	t, err := s.repo.CreateTicket(ctx, phone, query)
	if errors.Is(err, ErrTicketExists) {
		return s.repo.ActiveTicket(ctx, phone)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if _, err := s.repo.AppendMessage(ctx, t.ID, SenderUser, query); err != nil {
		return nil, err
	}

	s.logger.Info("support ticket opened", zap.String("ticket_id", t.ID.String()), zap.String("phone", phone))
	return t, nil
}

// AppendUser records an inbound patient message on the ticket.
func (s *Service) AppendUser(ctx context.Context, ticketID uuid.UUID, body string) error {
	_, err := s.repo.AppendMessage(ctx, ticketID, SenderUser, body)
	return err
}

func (s *Service) Resolve(ctx context.Context, ticketID uuid.UUID) error {
	if err := s.repo.Resolve(ctx, ticketID); err != nil {
		return err
	}
	s.logger.Info("support ticket resolved", zap.String("ticket_id", ticketID.String()))
	return nil
}

func (s *Service) ListOpen(ctx context.Context) ([]Ticket, error) {
	return s.repo.ListOpen(ctx)
}

// Reply sends an operator's answer to the patient over WhatsApp, records it
// as an ADMIN message and optionally resolves the ticket.
func (s *Service) Reply(ctx context.Context, ticketID uuid.UUID, body string, resolve bool) (*Ticket, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyReply
	}

	t, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	if err := s.sender.SendText(ctx, t.Phone, body); err != nil {
		return nil, fmt.Errorf("send reply: %w", err)
	}

	if _, err := s.repo.AppendMessage(ctx, t.ID, SenderAdmin, body); err != nil {
		return nil, err
	}

	if resolve && t.Status == StatusOpen {
		if err := s.repo.Resolve(ctx, t.ID); err != nil && !errors.Is(err, ErrTicketNotFound) {
			return nil, err
		}
		t.Status = StatusResolved
	}

	return t, nil
}
