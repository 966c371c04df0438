package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"shop-ingest/config"
	"shop-ingest/internal/app"
	"shop-ingest/pkg/logger"

	"github.com/joho/godotenv"
)

// The worker runs the backfill poller on its own, for deployments that set
// backfill.in_process=false on the API.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("INGEST_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("ingest-worker", cfg.Log.Level, cfg.Log.Pretty)

	if cfg.Backfill.Notify == app.NotifyMemory {
		// An in-memory channel cannot reach another process.
		log.Warn().Msg("backfill.notify=memory has no effect in the standalone worker; polling on interval")
		cfg.Backfill.Notify = app.NotifyNone
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	log.Info().
		Dur("poll_interval", cfg.Backfill.PollInterval).
		Str("notify", cfg.Backfill.Notify).
		Msg("Starting backfill worker")

	if err := a.NewPoller().Run(ctx); err != nil {
		log.Error().Err(err).Msg("Backfill poller stopped")
	}
	log.Info().Msg("Worker exited")
}
