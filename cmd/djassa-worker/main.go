package main

import (
	"context"
	"errors"
	"os"
	"time"

	"djassa/internal/amqp"
	"djassa/internal/backend"
	"djassa/internal/cli"
	"djassa/internal/config"
	applog "djassa/internal/log"
	"djassa/internal/worker"
)

func main() {
	cfg, logger := cli.LoadConfig(applog.ComponentWorker, (*config.Config).ValidateWorker)
	logger.Info("Starting djassa-worker", "backend", cfg.ExportBackend)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	exporterConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid export configuration", "error", err)
		os.Exit(1)
	}
	exporter, err := backend.NewExporter(context.Background(), exporterConfig)
	if err != nil {
		logger.Error("Failed to initialize exporter", "error", err, "backend", cfg.ExportBackend)
		os.Exit(1)
	}
	if exporter.Cleanup != nil {
		defer func() {
			if err := exporter.Cleanup(); err != nil {
				logger.Error("Exporter cleanup failed", "error", err)
			}
		}()
	}

	exportWorker := worker.NewExportWorker(repo, exporter.Exporter, cfg.ExportBatchSize)
	poller := worker.NewPoller(worker.PollerConfig{
		Name:            "export",
		PollInterval:    cfg.ExportInterval,
		CleanupInterval: 6 * time.Hour,
	}, exportWorker.ProcessPending, func(ctx context.Context) error {
		purged, err := repo.PurgeSessions(ctx, time.Now().Add(-24*time.Hour))
		if err != nil {
			return err
		}
		if purged > 0 {
			logger.Info("Expired sessions purged", "count", purged)
		}
		return nil
	})

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, exporting by polling only", "error", err)
			amqpClient = nil
		}
	} else {
		logger.Info("AMQP disabled - exporting by polling only", "interval", cfg.ExportInterval)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := poller.Stop(ctx); err != nil {
			logger.Error("Failed to stop poller", "error", err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("Failed to close AMQP client", "error", err)
			}
		}
	})

	// Entries written while the worker was down are exported before new messages.
	logger.Info("Performing startup export check...")
	if err := exportWorker.StartupCheck(ctx); err != nil {
		logger.Error("Startup export check failed", "error", err)
	}

	if err := poller.Start(ctx); err != nil {
		logger.Error("Failed to start poller", "error", err)
		os.Exit(1)
	}

	if amqpClient != nil {
		go func() {
			err := amqpClient.Consume(ctx, amqp.Handlers{
				Ledger:   exportWorker.HandleLedgerEvent,
				Reminder: exportWorker.HandleDebtReminder,
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption stopped, falling back to polling", "error", err)
			}
		}()
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
