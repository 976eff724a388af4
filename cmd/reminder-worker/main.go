package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/whatsapp-hospital-bot/internal/appointment"
	"github.com/hackgods/whatsapp-hospital-bot/internal/config"
	"github.com/hackgods/whatsapp-hospital-bot/internal/db"
	"github.com/hackgods/whatsapp-hospital-bot/internal/messaging"
	redisclient "github.com/hackgods/whatsapp-hospital-bot/internal/redis"
	"github.com/hackgods/whatsapp-hospital-bot/internal/reminder"
	"github.com/hackgods/whatsapp-hospital-bot/internal/session"
	"github.com/hackgods/whatsapp-hospital-bot/pkg/logging"
)

// runLockKey keeps two worker replicas from sending the same batch.
const runLockKey = "lock:worker:reminders"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := logging.Must(cfg.LogLevel, cfg.Env)
	defer func() { _ = logger.Sync() }()
	logger.Info("reminder-worker starting up", zap.String("env", cfg.Env), zap.Duration("interval", cfg.WorkerInterval))

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

	repo := appointment.NewPgRepository(pgPool)
	svc := appointment.NewService(repo, redisclient.NewRedisLocker(rdb, cfg.LockTTL), logger.Named("appointment"))

	dispatcher := reminder.NewDispatcher(
		svc,
		reminder.NewPgRepository(pgPool),
		session.NewPgStore(pgPool),
		newSender(cfg, logger),
		reminder.Options{
			Location:      cfg.Location(),
			Locker:        redisclient.NewRedisLocker(rdb, cfg.PhoneLockTTL),
			PhoneLockWait: cfg.PhoneLockWait,
			Logger:        logger.Named("reminder"),
		},
	)
	runLock := redisclient.NewRedisLocker(rdb, cfg.WorkerInterval)

	// Run once at startup
	runOnce(rootCtx, logger, runLock, dispatcher)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, logger, runLock, dispatcher)
		}
	}
}

func runOnce(ctx context.Context, logger *zap.Logger, lock redisclient.Locker, d *reminder.Dispatcher) {
	runCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
	defer cancel()

	start := time.Now()
	var res reminder.Result
	err := lock.WithLock(runCtx, runLockKey, func(ctx context.Context) error {
		var err error
		res, err = d.RunOnce(ctx)
		return err
	})
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		logger.Debug("another worker is dispatching, skipping run")
	case err != nil:
		logger.Error("reminder run error", zap.Error(err), zap.Int("sent", res.Sent), zap.Int("failed", res.Failed))
	default:
		logger.Info("reminder run complete",
			zap.Int("sent", res.Sent),
			zap.Int("failed", res.Failed),
			zap.Int("deferred", res.Deferred),
			zap.Duration("took", time.Since(start)),
		)
	}
}

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
