package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/whatsapp-hospital-bot/internal/knowledge"
	"github.com/hackgods/whatsapp-hospital-bot/internal/reminder"
	"github.com/hackgods/whatsapp-hospital-bot/internal/support"
)

// TicketAdmin is what hospital staff use to work the escalation queue.
type TicketAdmin interface {
	ListOpen(ctx context.Context) ([]support.Ticket, error)
	Reply(ctx context.Context, ticketID uuid.UUID, body string, resolve bool) (*support.Ticket, error)
}

type ReminderScheduler interface {
	Schedule(ctx context.Context, phone string, sendAt time.Time, kind string) (*reminder.Scheduled, error)
}

func listTicketsHandler(tickets TicketAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		open, err := tickets.ListOpen(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		if open == nil {
			open = []support.Ticket{}
		}
		writeJSON(w, http.StatusOK, open)
	}
}

func replyTicketHandler(tickets TicketAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_ticket_id", "id must be a valid UUID")
			return
		}

		var req TicketReplyRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		ticket, err := tickets.Reply(r.Context(), id, req.Body, req.Resolve)
		switch {
		case errors.Is(err, support.ErrTicketNotFound):
			writeError(w, http.StatusNotFound, "ticket_not_found", err.Error())
		case errors.Is(err, support.ErrEmptyReply):
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		case err != nil:
			writeError(w, http.StatusBadGateway, "reply_failed", err.Error())
		default:
			writeJSON(w, http.StatusOK, ticket)
		}
	}
}

func listKnowledgeHandler(repo knowledge.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := repo.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		if entries == nil {
			entries = []knowledge.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func createKnowledgeHandler(repo knowledge.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req KnowledgeEntryRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		entry, err := repo.Create(r.Context(), req.Question, req.Answer)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	}
}

func deleteKnowledgeHandler(repo knowledge.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_entry_id", "id must be a valid UUID")
			return
		}
		switch err := repo.Delete(r.Context(), id); {
		case errors.Is(err, knowledge.ErrEntryNotFound):
			writeError(w, http.StatusNotFound, "entry_not_found", err.Error())
		case err != nil:
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

func scheduleReminderHandler(reminders ReminderScheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScheduleReminderRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		phone := reminder.NormalizePhone(req.Phone)
		if len(phone) < 8 {
			writeError(w, http.StatusBadRequest, "invalid_phone", "phone must contain at least 8 digits")
			return
		}
		kind := req.Type
		if kind == "" {
			kind = "DEMO"
		}

		scheduled, err := reminders.Schedule(r.Context(), phone, req.SendAt, kind)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, newReminderResponse(scheduled))
	}
}
