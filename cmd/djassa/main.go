package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"djassa/internal/amqp"
	"djassa/internal/assistant"
	"djassa/internal/auth"
	"djassa/internal/cache"
	"djassa/internal/cli"
	"djassa/internal/config"
	apphttp "djassa/internal/http"
	applog "djassa/internal/log"
	"djassa/internal/middleware/ratelimit"
	"djassa/internal/services"
)

func main() {
	cfg, logger := cli.LoadConfig(applog.ComponentApp, (*config.Config).Validate)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	responses := cache.NewLRUCache[any](cfg.CacheSize, cfg.CacheTTL)
	caches := cache.NewManager()
	caches.Register(responses)
	caches.StartCleanup(time.Minute)

	// Events are optional: without a broker nothing is exported or reminded over AMQP.
	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			publisher = client
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled - ledger entries will not be exported")
	}

	issuer := auth.NewIssuer(cfg.SessionSecret, cfg.TokenTTL)
	authService := services.NewAuthService(repo, issuer, responses, services.AuthConfig{
		MaxAttempts:  cfg.LoginMaxAttempts,
		LockDuration: cfg.LoginLockDuration,
	})
	ledger := services.NewLedgerService(repo, publisher, responses)
	reports := services.NewReportService(repo, responses)

	var model assistant.Model
	gemini, err := assistant.NewGemini(context.Background(), assistant.GeminiConfig{
		APIKey:     cfg.GoogleAPIKey,
		Model:      cfg.GeminiModel,
		Timeout:    cfg.AssistantTimeout,
		MaxRetries: cfg.AssistantMaxRetries,
	})
	switch {
	case errors.Is(err, assistant.ErrNotConfigured):
		logger.Warn("GOOGLE_API_KEY not set, assistant runs in fallback mode")
	case err != nil:
		logger.Error("Failed to initialize Gemini, assistant runs in fallback mode", "error", err)
	default:
		model = gemini
	}

	detector, err := assistant.NewIntentDetector(model)
	if err != nil {
		logger.Error("Failed to initialize intent detector", "error", err)
		os.Exit(1)
	}
	recordLimiter := ratelimit.NewLimiter(ratelimit.Config{Limit: cfg.AutoRecordLimit, Window: cfg.AutoRecordWindow})
	recorder := assistant.NewAutoRecorder(ledger, repo, recordLimiter, cfg.IntentConfidence)

	srv := apphttp.NewServer(apphttp.Config{
		Addr:          ":" + cfg.Port,
		StaticDir:     cfg.StaticDir,
		AuthRateLimit: cfg.AuthRateLimit,
		APIRateLimit:  cfg.APIRateLimit,
		Logger:        logger,
	}, apphttp.Services{
		Auth:      authService,
		Ledger:    ledger,
		Reports:   reports,
		Assistant: assistant.New(model, repo, reports, detector, recorder),
		Ready:     repo.Ping,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		recordLimiter.Stop()
		caches.Stop()
		if err := ledger.Close(); err != nil {
			logger.Error("Failed to close ledger service", "error", err)
		}
	})

	logger.Info("Starting djassa server",
		"port", cfg.Port,
		"assistant", model != nil,
		"events", publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
