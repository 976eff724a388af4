package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hackgods/whatsapp-hospital-bot/internal/knowledge"
	"github.com/hackgods/whatsapp-hospital-bot/internal/observability/metrics"
)

type RouterConfig struct {
	Messages  MessageHandler
	Tickets   TicketAdmin
	Knowledge knowledge.Repository
	Reminders ReminderScheduler
	Admin     AppointmentAdmin
	Catalog   CatalogInvalidator // invalidated after doctor and department writes
	Health    *HealthHandler

	VerifyToken      string
	WebhookRateLimit int // per minute per IP, 0 disables
	AllowedOrigins   []string

	Logger   *zap.Logger
	Metrics  *metrics.BotMetrics
	Gatherer prometheus.Gatherer
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = noopInvalidator{}
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/webhook", func(r chi.Router) {
		if cfg.WebhookRateLimit > 0 {
			r.Use(httprate.LimitByIP(cfg.WebhookRateLimit, time.Minute))
		}
		r.Get("/", verifyWebhookHandler(cfg.VerifyToken))
		r.Post("/", receiveWebhookHandler(cfg.Messages, logger, cfg.Metrics))
	})

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Route("/admin", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))

		r.Get("/tickets", listTicketsHandler(cfg.Tickets))
		r.Post("/tickets/{id}/reply", replyTicketHandler(cfg.Tickets))

		r.Get("/knowledge", listKnowledgeHandler(cfg.Knowledge))
		r.Post("/knowledge", createKnowledgeHandler(cfg.Knowledge))
		r.Delete("/knowledge/{id}", deleteKnowledgeHandler(cfg.Knowledge))

		r.Post("/reminders", scheduleReminderHandler(cfg.Reminders))

		if cfg.Admin == nil {
			return
		}
		r.Route("/doctors", func(r chi.Router) {
			r.Get("/", listDoctorsHandler(cfg.Admin))
			r.Post("/", createDoctorHandler(cfg.Admin, catalog))
			r.Get("/by-department", doctorsByDepartmentHandler(cfg.Admin))
			r.Get("/{id}", getDoctorHandler(cfg.Admin))
			r.Patch("/{id}", updateDoctorHandler(cfg.Admin, catalog))
		})
		r.Route("/departments", func(r chi.Router) {
			r.Get("/", listDepartmentsHandler(cfg.Admin))
			r.Post("/", createDepartmentHandler(cfg.Admin, catalog))
			r.Patch("/{id}", updateDepartmentHandler(cfg.Admin, catalog))
		})
		r.Route("/availability", func(r chi.Router) {
			r.Get("/", listSlotsHandler(cfg.Admin))
			r.Post("/", createSlotHandler(cfg.Admin))
			r.Delete("/{id}", deleteSlotHandler(cfg.Admin))
		})
		r.Get("/appointments", listAppointmentsHandler(cfg.Admin))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Admin))
	})

	return r
}
