package main

import (
	"context"
	"os"
	"time"

	"djassa/internal/amqp"
	"djassa/internal/cli"
	"djassa/internal/config"
	applog "djassa/internal/log"
	"djassa/internal/services"
	"djassa/internal/worker"
)

func main() {
	cfg, logger := cli.LoadConfig(applog.ComponentReminder, (*config.Config).ValidateWorker)
	logger.Info("Starting reminder-worker")

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// Without a broker reminders are only counted on the debt.
	var (
		publisher  services.EventPublisher
		amqpClient *amqp.Client
	)
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, reminders will only be recorded", "error", err)
		} else {
			amqpClient = client
			publisher = client
		}
	} else {
		logger.Info("AMQP disabled - reminders will only be recorded")
	}

	policy := services.NewReminderPolicy(cfg.ReminderAfterDays, cfg.ReminderEveryDays, cfg.ReminderMax)
	processor := services.NewReminderProcessor(repo, publisher, policy)
	logger.Info("Debt reminder processor configured",
		"interval", cfg.ReminderInterval,
		"after_days", cfg.ReminderAfterDays,
		"every_days", cfg.ReminderEveryDays,
		"max", cfg.ReminderMax)

	poller := worker.NewPoller(worker.PollerConfig{
		Name:         "reminders",
		PollInterval: cfg.ReminderInterval,
	}, func(ctx context.Context) error {
		count, err := processor.ProcessDueReminders(ctx, time.Now())
		if err != nil {
			return err
		}
		logger.Info("Reminder run complete",
			"reminders_sent", count,
			"next_check", time.Now().Add(cfg.ReminderInterval).Format("15:04:05"))
		return nil
	}, nil)

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

	if err := poller.Start(ctx); err != nil {
		logger.Error("Failed to start poller", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Reminder-worker shutdown complete")
}
