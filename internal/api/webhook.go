package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/whatsapp-hospital-bot/internal/dialogue"
	"github.com/hackgods/whatsapp-hospital-bot/internal/messaging"
	"github.com/hackgods/whatsapp-hospital-bot/internal/observability/metrics"
)

// MessageHandler runs one inbound message through the conversation.
type MessageHandler interface {
	Handle(ctx context.Context, in messaging.Inbound) error
}

// verifyWebhookHandler answers the WhatsApp subscription handshake.
func verifyWebhookHandler(verifyToken string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if verifyToken == "" || q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != verifyToken {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, q.Get("hub.challenge"))
	}
}

// receiveWebhookHandler handles every message in the delivery in order. A
// message dropped because its phone is busy still gets a 200 so WhatsApp
// does not redeliver it.
func receiveWebhookHandler(h MessageHandler, logger *zap.Logger, m *metrics.BotMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not read body")
			return
		}

		inbound, err := messaging.ParseWebhook(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_payload", err.Error())
			return
		}

		// a turn is committed before replies go out; finish it even if the caller hangs up
		ctx := context.WithoutCancel(r.Context())
		requestID := GetRequestID(r.Context())

		for _, in := range inbound {
			log := logger.With(
				zap.String("phone", in.From),
				zap.String("message_id", in.MessageID),
				zap.String("request_id", requestID),
			)

			err := h.Handle(ctx, in)
			switch {
			case errors.Is(err, dialogue.ErrBusy):
				m.ObserveInbound(string(in.Kind), "busy")
				log.Warn("dropping message, phone busy")
			case err != nil:
				m.ObserveInbound(string(in.Kind), "error")
				log.Error("handle inbound message", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "internal_error", "")
				return
			default:
				m.ObserveInbound(string(in.Kind), "ok")
			}
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
