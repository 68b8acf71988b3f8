package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/bistrohq/bistro-backend/api/controllers"
	"github.com/bistrohq/bistro-backend/api/routes"
	"github.com/bistrohq/bistro-backend/internal/inventory"
	"github.com/bistrohq/bistro-backend/internal/ledger"
	"github.com/bistrohq/bistro-backend/internal/repo"
	"github.com/bistrohq/bistro-backend/internal/scheduling"
	"github.com/bistrohq/bistro-backend/internal/tables"
	"github.com/bistrohq/bistro-backend/pkg/config"
	"github.com/bistrohq/bistro-backend/pkg/db"
	"github.com/bistrohq/bistro-backend/pkg/enums"
	"github.com/bistrohq/bistro-backend/pkg/logger"
	"github.com/bistrohq/bistro-backend/pkg/migrate"
	"github.com/bistrohq/bistro-backend/pkg/outbox"
	"github.com/bistrohq/bistro-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	deps, err := buildDependencies(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(ctx, "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":             cfg.App.Env,
		"addr":            addr,
		"approval_policy": cfg.Scheduling.ApprovalPolicy,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(deps),
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(logCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(logCtx, "graceful shutdown failed", err)
		}
	}
}

func buildDependencies(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.Dependencies, error) {
	retry := repo.RetryPolicy{
		MaxRetries: cfg.Inventory.MaxRetries,
		BaseDelay:  cfg.Inventory.RetryBaseDelay,
	}
	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), dbClient, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	inventorySvc, err := inventory.NewService(
		inventory.NewRepository(dbClient.DB()),
		ledgerSvc,
		dbClient,
		outboxSvc,
		logg,
		inventory.Options{Retry: retry, PageSize: cfg.Inventory.ReorderPageSize},
	)
	if err != nil {
		return routes.Dependencies{}, err
	}

	tablesSvc, err := tables.NewService(
		tables.NewRepository(dbClient.DB()),
		dbClient,
		outboxSvc,
		inventorySvc,
		logg,
		tables.Options{
			AllowEmptyClose:   cfg.Orders.AllowEmptyClose,
			RecordConsumption: cfg.Orders.RecordConsumption,
			Retry:             retry,
		},
	)
	if err != nil {
		return routes.Dependencies{}, err
	}

	policy, err := enums.ParseApprovalPolicy(cfg.Scheduling.ApprovalPolicy)
	if err != nil {
		return routes.Dependencies{}, err
	}
	schedulingSvc, err := scheduling.NewService(scheduling.NewRepository(dbClient.DB()), dbClient, outboxSvc, logg, policy)
	if err != nil {
		return routes.Dependencies{}, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return routes.Dependencies{
		Config:   cfg,
		Logger:   logg,
		Registry: registry,
		ReadinessChecks: map[string]controllers.Pinger{
			"db":    dbClient,
			"redis": redisClient,
		},
		IdempotencyStore: redisClient,
		Tables:           tablesSvc,
		Inventory:        inventorySvc,
		History:          ledgerSvc,
		Scheduling:       schedulingSvc,
	}, nil
}
