package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"paylog/internal/backend"
	"paylog/internal/config"
	"paylog/internal/events"
	"paylog/internal/httpapi"
	"paylog/internal/ledger"
	"paylog/internal/log"
	"paylog/internal/parser"
	"paylog/internal/resolver"
	"paylog/internal/services"
	"paylog/internal/store"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.Config{Level: slog.LevelInfo})
	log.SetDefault(logger)

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

	// Event publishing is optional: a missing broker degrades to a
	// no-op publisher, never a startup failure.
	var publisher events.Publisher
	if cfg.AMQPURL != "" {
		client, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		} else {
			publisher = client
			logger.Info("Initialized AMQP publisher",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
		}
	}

	submitService := services.NewSubmitService(
		parser.New(buildProviders(ctx, cfg, logger), parser.Config{
			Timeout:            cfg.ProviderTimeout,
			MinRequestInterval: cfg.MinRequestInterval,
		}),
		resolver.New(result.Store, resolverConfig(cfg), logger),
		ledger.New(result.Store, ledger.Config{
			CommitRetries: cfg.CommitRetries,
			RetryBackoff:  cfg.CommitRetryBackoff,
		}, logger),
		publisher,
		lowWalletThreshold(cfg, logger),
		logger,
	)
	defer func() {
		if err := submitService.Close(); err != nil {
			logger.Error("Submit service close failed", log.FieldError, err)
		}
	}()

	srv := httpapi.NewServer(":"+cfg.Port, submitService, logger)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting paylog server",
			"port", cfg.Port,
			"backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		logger.Info("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

// buildProviders assembles the provider ladder in configured priority
// order. A provider whose key is missing is skipped, not an error: the
// ladder degrades toward the deterministic fallback.
func buildProviders(ctx context.Context, cfg *config.Config, logger *log.Logger) []parser.Provider {
	var providers []parser.Provider
	for _, name := range cfg.Providers {
		switch name {
		case "gemini":
			if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
				logger.Info("Gemini provider disabled, no API key configured")
				continue
			}
			gemini, err := parser.NewGemini(ctx, cfg.GeminiModel)
			if err != nil {
				logger.Warn("Failed to initialize Gemini provider", log.FieldError, err)
				continue
			}
			providers = append(providers, gemini)
		case "groq":
			if cfg.GroqAPIKey == "" {
				logger.Info("Groq provider disabled, no API key configured")
				continue
			}
			providers = append(providers, parser.NewGroq(cfg.GroqAPIKey))
		case "openrouter":
			if cfg.OpenRouterAPIKey == "" {
				logger.Info("OpenRouter provider disabled, no API key configured")
				continue
			}
			providers = append(providers, parser.NewOpenRouter(cfg.OpenRouterAPIKey, cfg.OpenRouterModel))
		}
	}

	if len(providers) == 0 {
		logger.Info("No model providers configured, relying on fallback parser")
	}
	return providers
}

func resolverConfig(cfg *config.Config) resolver.Config {
	return resolver.Config{
		UsualAmountWindow: store.Window{MaxCount: cfg.UsualAmountMaxCount, MaxAge: cfg.UsualAmountMaxAge},
		SamePlaceWindow:   store.Window{MaxCount: cfg.SamePlaceMaxCount, MaxAge: cfg.SamePlaceMaxAge},
	}
}

func lowWalletThreshold(cfg *config.Config, logger *log.Logger) decimal.Decimal {
	threshold, err := decimal.NewFromString(cfg.LowWalletThreshold)
	if err != nil {
		logger.Warn("Invalid low-wallet threshold, hint disabled",
			"value", cfg.LowWalletThreshold,
			log.FieldError, err)
		return decimal.Zero
	}
	return threshold
}
