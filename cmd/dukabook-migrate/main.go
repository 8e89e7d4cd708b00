package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/mnzioki/dukabook/pkg/config"
	"github.com/mnzioki/dukabook/pkg/observability"
	"github.com/mnzioki/dukabook/pkg/storage/postgres"
)

var timeout = flag.Duration("timeout", 5*time.Minute, "Abort if migrations take longer than this")

func main() {
	flag.Parse()

	logger := observability.NewLogger(
		observability.ParseLevel(os.Getenv("DUKABOOK_LOG_LEVEL")), os.Stdout)

	cfg := config.LoadStorageConfig()
	if cfg.PostgresURL == "" {
		logger.Error("DUKABOOK_POSTGRES_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		logger.WithError(err).Error("Failed to open database")
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		logger.WithError(err).Error("Failed to reach database")
		os.Exit(1)
	}

	if err := postgres.RunMigrations(ctx, db, logger); err != nil {
		logger.WithError(err).Error("Migrations failed")
		os.Exit(1)
	}
	logger.Info("Migrations complete")
}
