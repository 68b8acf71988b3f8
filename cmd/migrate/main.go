package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/bistrohq/bistro-backend/pkg/config"
	"github.com/bistrohq/bistro-backend/pkg/db"
	"github.com/bistrohq/bistro-backend/pkg/logger"
	"github.com/bistrohq/bistro-backend/pkg/migrate"
)

// gooseCommands pass straight through to goose.
var gooseCommands = map[string]bool{"up": true, "down": true, "status": true}

func main() {
	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate only touch the filesystem.
	switch *cmd {
	case "create":
		if *name == "" {
			exitf("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(*dir, *name)
		if err != nil {
			exitf("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			exitf("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	_ = godotenv.Load()
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.App.Env,
		"cmd":    *cmd,
		"dir":    *dir,
		"sqlite": cfg.FeatureFlags.UseSQLite,
	})

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	if cfg.FeatureFlags.UseSQLite {
		if *cmd != "up" {
			exitf("sqlite databases only support -cmd=up")
		}
		if err := migrate.AutoMigrateModels(ctx, dbClient); err != nil {
			exitf("sqlite auto-migrate failed: %v", err)
		}
		logg.Info(ctx, "sqlite schema up to date")
		return
	}

	if err := migrate.ValidateDir(*dir); err != nil {
		exitf("refusing to migrate, invalid migrations: %v", err)
	}

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	switch {
	case gooseCommands[*cmd]:
		err = migrate.Run(ctx, sqlDB, *dir, *cmd)
	case *cmd == "version":
		if *version == "" {
			exitf("missing -version for version command")
		}
		err = migrate.MigrateToVersion(ctx, sqlDB, *dir, *version)
	default:
		exitf("unknown -cmd value: %s", *cmd)
	}
	if err != nil {
		exitf("goose %s failed: %v", *cmd, err)
	}
	logg.Info(ctx, "migrate finished")
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
