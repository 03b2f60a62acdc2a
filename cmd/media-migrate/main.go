package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/tendant/simple-media/pkg/logger"
	"github.com/tendant/simple-media/pkg/simplemedia/config"
	"github.com/tendant/simple-media/pkg/simplemedia/repo/postgres"
)

func main() {
	ctx := context.Background()
	// bootstrap logger early (then re-init after config load)
	logg := logger.New(logger.Options{ServiceName: "media-migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|redo|reset|version|validate")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	createSchema := flag.Bool("create-schema", true, "create DB_SCHEMA before migrating")
	flag.Parse()

	// validate needs neither config nor database
	if *cmd == "validate" {
		if err := postgres.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "migration validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load(config.WithEnv())
	requireResource(ctx, logg, "config", err)
	if cfg.DatabaseType != "postgres" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL must point at postgres to run migrations")
		os.Exit(1)
	}

	logg = cfg.Logger("media-migrate")
	ctx = logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.Environment,
		"cmd":    *cmd,
		"schema": cfg.DBSchema,
	})

	pool, err := config.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema)
	requireResource(ctx, logg, "database", err)
	defer pool.Close()
	requireResource(ctx, logg, "database", pool.Ping(ctx))

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	if *createSchema {
		requireResource(ctx, logg, "schema", postgres.EnsureSchema(ctx, sqlDB, cfg.DBSchema))
	}

	logg.Info(ctx, "migrate ready")

	switch *cmd {
	case "up", "down", "status", "redo", "reset":
		if err := postgres.Run(ctx, sqlDB, *cmd); err != nil {
			fmt.Fprintf(os.Stderr, "goose %s failed: %v\n", *cmd, err)
			os.Exit(1)
		}

	case "version":
		if *version == "" {
			fmt.Fprintln(os.Stderr, "missing -version for version command")
			os.Exit(1)
		}
		if err := postgres.MigrateToVersion(ctx, sqlDB, *version); err != nil {
			fmt.Fprintf(os.Stderr, "goose version migrate failed: %v\n", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmd)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
