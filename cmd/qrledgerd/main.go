package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/printory/qrledger/internal/export"
	"github.com/printory/qrledger/internal/ingest"
	"github.com/printory/qrledger/internal/platform/config"
	"github.com/printory/qrledger/internal/platform/observability"
	"github.com/printory/qrledger/internal/server"
	db "github.com/printory/qrledger/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolOpts := db.PoolOptions{
		MaxConns:          cfg.DBMaxConnections,
		MinConns:          cfg.DBMinConnections,
		MaxConnIdleTime:   cfg.DBMaxConnIdleTime,
		MaxConnLifetime:   cfg.DBMaxConnLifetime,
		HealthCheckPeriod: cfg.DBHealthCheckPeriod,
	}

	database, err := db.NewWithOptions(ctx, cfg.PostgresDSN, poolOpts, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	writer := export.NewWriter(cfg.UploadDir)

	pipeline := ingest.NewPipeline(database, writer, ingest.Options{
		CheckChunkSize:  cfg.CheckChunkSize,
		InsertChunkSize: cfg.InsertChunkSize,
		StoreTimeout:    cfg.StoreTimeout,
	}, &logger)

	api := server.New(cfg, database, pipeline, &logger)

	// Health and metrics in the background
	go func() {
		health := observability.NewServer(database, cfg.HealthPort, &logger)
		if err := health.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("health server error")
		}
	}()

	if err := api.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("application stopped")
			return
		}

		logger.Fatal().Err(err).Msg("application error")
	}
}

func newLogger(appEnv string) zerolog.Logger {
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
