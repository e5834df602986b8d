package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"paylog/internal/analytics"
	"paylog/internal/backend"
	"paylog/internal/config"
	"paylog/internal/events"
	"paylog/internal/log"
	"paylog/internal/sheets/google"
	"paylog/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.Config{Level: slog.LevelInfo})
	log.SetDefault(logger)

	logger.Info("Starting paylog-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer func() {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", log.FieldError, err)
			}
		}()
	}

	// The spreadsheet mirror is optional; without it the worker still
	// runs digests.
	var sheetsClient *google.Client
	if cfg.GoogleSpreadsheetID != "" {
		sheetsClient, err = google.NewFromEnv(ctx)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets mirror disabled, no GOOGLE_SPREADSHEET_ID provided")
	}

	g, gctx := errgroup.WithContext(ctx)

	if sheetsClient != nil {
		client, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()

		mirrorWorker := worker.NewMirrorWorker(result.Store, sheetsClient, logger)
		g.Go(func() error {
			logger.Info("Consuming ledger events", "queue", cfg.AMQPQueue)
			return client.Consume(gctx, func(event *events.LedgerEvent) error {
				return mirrorWorker.HandleEvent(gctx, event)
			})
		})
	} else {
		logger.Info("Skipping event consumption, no mirror configured")
	}

	if len(cfg.DigestUsers) > 0 {
		digestWorker := worker.NewDigestWorker(
			analytics.New(result.Store),
			cfg.DigestUsers,
			cfg.DigestInterval,
			logger,
		)
		g.Go(func() error {
			logger.Info("Digest worker started",
				"users", len(cfg.DigestUsers),
				"interval", cfg.DigestInterval)
			return digestWorker.Run(gctx)
		})
	} else {
		logger.Info("Digest worker disabled, no DIGEST_USERS configured")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
