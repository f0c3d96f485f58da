package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"djassa/internal/amqp"
	"djassa/internal/core"
	"djassa/internal/storage"
)

const reminderBatchSize = 100

// ReminderProcessor flags overdue customer debts and publishes reminder events.
type ReminderProcessor struct {
	storage   *storage.SQLiteRepository
	publisher EventPublisher
	policy    ReminderPolicy
}

func NewReminderProcessor(storage *storage.SQLiteRepository, publisher EventPublisher, policy ReminderPolicy) *ReminderProcessor {
	return &ReminderProcessor{
		storage:   storage,
		publisher: publisher,
		policy:    policy,
	}
}

// ProcessDueReminders reminds every debt the policy considers due and returns how many were reminded.
func (p *ReminderProcessor) ProcessDueReminders(ctx context.Context, now time.Time) (int, error) {
	if p.storage == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	createdBefore, remindedBefore := p.policy.Cutoffs(now)
	debts, err := p.storage.DebtsDueForReminder(ctx, createdBefore, remindedBefore, p.policy.Max, reminderBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get debts due for reminder: %w", err)
	}

	slog.InfoContext(ctx, "Processing debt reminders",
		"candidates", len(debts),
		"processing_date", now.Format("2006-01-02"))

	processed := 0
	for _, d := range debts {
		if !p.policy.IsDue(d, now) {
			continue
		}

		if err := p.publish(ctx, d); err != nil {
			slog.ErrorContext(ctx, "Failed to publish debt reminder",
				"debt_id", d.ID,
				"shop_id", d.ShopID,
				"error", err)
			continue
		}

		if err := p.storage.MarkReminderSent(ctx, d.ID, now); err != nil {
			slog.ErrorContext(ctx, "Failed to mark reminder sent",
				"debt_id", d.ID,
				"error", err)
			continue
		}

		processed++
		slog.InfoContext(ctx, "Debt reminder sent",
			"debt_id", d.ID,
			"shop_id", d.ShopID,
			"remaining", d.RemainingAmount,
			"age_days", d.AgeDays(now),
			"reminder", d.RemindersSent+1)
	}

	slog.InfoContext(ctx, "Debt reminder processing complete",
		"processed", processed,
		"total_checked", len(debts))

	return processed, nil
}

func (p *ReminderProcessor) publish(ctx context.Context, d core.Debt) error {
	if p.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, reminder only recorded", "debt_id", d.ID)
		return nil
	}
	return p.publisher.PublishDebtReminder(ctx, &amqp.DebtReminderMessage{
		Kind:          amqp.TypeDebtReminder,
		ShopID:        d.ShopID,
		DebtID:        d.ID,
		Customer:      d.CustomerName,
		CustomerPhone: d.CustomerPhone,
		Remaining:     d.RemainingAmount,
		RemindersSent: d.RemindersSent + 1,
		Timestamp:     time.Now().UTC(),
	})
}
