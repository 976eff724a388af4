package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hackgods/whatsapp-hospital-bot/internal/api"
	"github.com/hackgods/whatsapp-hospital-bot/internal/appointment"
	"github.com/hackgods/whatsapp-hospital-bot/internal/catalog"
	"github.com/hackgods/whatsapp-hospital-bot/internal/config"
	"github.com/hackgods/whatsapp-hospital-bot/internal/db"
	"github.com/hackgods/whatsapp-hospital-bot/internal/dialogue"
	"github.com/hackgods/whatsapp-hospital-bot/internal/knowledge"
	"github.com/hackgods/whatsapp-hospital-bot/internal/messaging"
	"github.com/hackgods/whatsapp-hospital-bot/internal/observability/metrics"
	redisclient "github.com/hackgods/whatsapp-hospital-bot/internal/redis"
	"github.com/hackgods/whatsapp-hospital-bot/internal/reminder"
	"github.com/hackgods/whatsapp-hospital-bot/internal/session"
	"github.com/hackgods/whatsapp-hospital-bot/internal/support"
	"github.com/hackgods/whatsapp-hospital-bot/pkg/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := logging.Must(cfg.LogLevel, cfg.Env)
	defer func() { _ = logger.Sync() }()
	logger.Info("api-server starting up", zap.String("env", cfg.Env), zap.String("http_port", cfg.HTTPPort))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	botMetrics := metrics.NewBotMetrics(registry)

	sender := newSender(cfg, logger)

	appointmentRepo := appointment.NewPgRepository(pgPool)
	appointments := appointment.NewService(
		appointmentRepo,
		redisclient.NewRedisLocker(rdb, cfg.LockTTL),
		logger.Named("appointment"),
	)
	doctors := catalog.New(appointments, cfg.CatalogTTL)
	knowledgeRepo := knowledge.NewPgRepository(pgPool)
	tickets := support.NewService(support.NewPgRepository(pgPool), sender, logger.Named("support"))

	answerer := knowledge.NewLLMAnswerer(knowledge.Config{
		APIKey:       cfg.LLMAPIKey,
		BaseURL:      cfg.LLMBaseURL,
		Model:        cfg.LLMModel,
		Timeout:      cfg.LLMTimeout,
		HospitalName: cfg.HospitalName,
		Logger:       logger.Named("knowledge"),
	}, knowledgeRepo)

	engine := dialogue.New(dialogue.Deps{
		Appointments: appointments,
		Catalog:      doctors,
		Tickets:      tickets,
		Answerer:     answerer,
		Sessions:     session.NewPgStore(pgPool),
		Sender:       sender,
		Locker:       redisclient.NewRedisLocker(rdb, cfg.PhoneLockTTL),
	}, dialogue.Options{
		Location:         cfg.Location(),
		HospitalName:     cfg.HospitalName,
		HospitalContact:  cfg.HospitalContact,
		HospitalLocation: cfg.HospitalLocation,
		PhoneLockWait:    cfg.PhoneLockWait,
		Logger:           logger.Named("dialogue"),
		Metrics:          botMetrics,
	})

	router := api.NewRouter(api.RouterConfig{
		Messages:         engine,
		Tickets:          tickets,
		Knowledge:        knowledgeRepo,
		Reminders:        reminder.NewPgRepository(pgPool),
		Admin:            appointment.NewAdmin(appointmentRepo, appointments, logger.Named("admin")),
		Catalog:          doctors,
		Health:           api.NewHealthHandler(pgPool, api.RedisPinger(rdb), cfg.Env, version),
		VerifyToken:      cfg.WhatsAppVerifyToken,
		WebhookRateLimit: cfg.WebhookRateLimit,
		Logger:           logger.Named("http"),
		Metrics:          botMetrics,
		Gatherer:         registry,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		// webhook turns may wait on the phone lock and the LLM
		WriteTimeout: cfg.PhoneLockWait + cfg.PhoneLockTTL + 5*time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newSender talks to the Cloud API when credentials are configured and
// otherwise only logs outbound messages, which is enough for local runs.
func newSender(cfg config.Config, logger *zap.Logger) messaging.Sender {
	client, err := messaging.NewWhatsAppClient(messaging.WhatsAppConfig{
		BaseURL:       cfg.WhatsAppAPIBaseURL,
		AccessToken:   cfg.WhatsAppAccessToken,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		Logger:        logger.Named("whatsapp"),
	})
	if err != nil {
		logger.Warn("whatsapp client disabled, logging outbound messages instead", zap.Error(err))
		return messaging.NewLogSender(logger.Named("outbound"))
	}
	return client
}
