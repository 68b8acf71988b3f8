package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bistrohq/bistro-backend/internal/cron"
	"github.com/bistrohq/bistro-backend/internal/inventory"
	"github.com/bistrohq/bistro-backend/internal/ledger"
	"github.com/bistrohq/bistro-backend/internal/repo"
	"github.com/bistrohq/bistro-backend/pkg/config"
	"github.com/bistrohq/bistro-backend/pkg/db"
	"github.com/bistrohq/bistro-backend/pkg/logger"
	"github.com/bistrohq/bistro-backend/pkg/metrics"
	"github.com/bistrohq/bistro-backend/pkg/migrate"
	"github.com/bistrohq/bistro-backend/pkg/outbox"
	"github.com/bistrohq/bistro-backend/pkg/redis"
)

const lockName = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	lock, closeLock, err := buildLock(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		os.Exit(1)
	}
	defer closeLock()

	jobs, err := buildJobs(cfg, logg, dbClient)
	if err != nil {
		logg.Error(ctx, "failed to build cron jobs", err)
		os.Exit(1)
	}
	registry, err := cron.NewRegistry(jobs...)
	if err != nil {
		logg.Error(ctx, "failed to register cron jobs", err)
		os.Exit(1)
	}

	// JobTimeout leaves headroom so the lock never expires under a running job.
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.LockTTL / 2,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	logg.Info(logg.WithField(ctx, "interval", cfg.Cron.Interval.String()), "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildLock prefers a Redis lock so replicas never overlap. Outside prod a
// missing Redis falls back to an in-process lock.
func buildLock(ctx context.Context, cfg *config.Config, logg *logger.Logger) (cron.Lock, func(), error) {
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		if cfg.App.IsProd() {
			return nil, nil, err
		}
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "redis unavailable, using local cron lock")
		return cron.NewLocalLock(), func() {}, nil
	}

	closeFn := func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName), cfg.Cron.LockTTL)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return lock, closeFn, nil
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) ([]cron.Job, error) {
	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxSvc := outbox.NewService(outboxRepo, logg)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), dbClient, logg)
	if err != nil {
		return nil, err
	}
	inventorySvc, err := inventory.NewService(
		inventory.NewRepository(dbClient.DB()),
		ledgerSvc,
		dbClient,
		outboxSvc,
		logg,
		inventory.Options{
			Retry:    repo.RetryPolicy{MaxRetries: cfg.Inventory.MaxRetries, BaseDelay: cfg.Inventory.RetryBaseDelay},
			PageSize: cfg.Inventory.ReorderPageSize,
		},
	)
	if err != nil {
		return nil, err
	}

	reconcile, err := cron.NewLedgerReconcileJob(cron.LedgerReconcileJobParams{
		Logger: logg,
		Ledger: ledgerSvc,
		Repair: cfg.Cron.ReconcileRepair,
	})
	if err != nil {
		return nil, err
	}
	reorder, err := cron.NewReorderScanJob(cron.ReorderScanJobParams{
		Logger:      logg,
		DB:          dbClient,
		Inventory:   inventorySvc,
		Outbox:      outboxSvc,
		OutboxRepo:  outboxRepo,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  cfg.Cron.OutboxRetentionDays,
	})
	if err != nil {
		return nil, err
	}
	return []cron.Job{reconcile, reorder, retention}, nil
}
