package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"djassa/internal/amqp"
	"djassa/internal/core"
	"djassa/internal/sheets"
	"djassa/internal/storage"
)

// ExportWorker mirrors ledger entries of export-enabled shops into a spreadsheet.
type ExportWorker struct {
	storage   *storage.SQLiteRepository
	exporter  sheets.Exporter
	batchSize int
	now       func() time.Time
}

func NewExportWorker(storage *storage.SQLiteRepository, exporter sheets.Exporter, batchSize int) *ExportWorker {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &ExportWorker{
		storage:   storage,
		exporter:  exporter,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandleLedgerEvent processes a single ledger event from AMQP.
// Delete events and non-ledger entities are acknowledged without work.
func (w *ExportWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	if msg.Action == amqp.ActionDelete {
		slog.DebugContext(ctx, "Ignoring delete event", "entity", msg.Entity, "id", msg.EntityID)
		return nil
	}
	if !isLedgerKind(msg.Entity) {
		return nil
	}
	// Payments change a debt already exported on creation.
	if msg.Action == amqp.ActionPay {
		return nil
	}

	slog.InfoContext(ctx, "Processing ledger event",
		"entity", msg.Entity,
		"id", msg.EntityID,
		"source", msg.Source)

	entry, shop, err := w.loadEntry(ctx, msg.Entity, msg.EntityID)
	if errors.Is(err, core.ErrNotFound) {
		// Deleted before we got to it.
		slog.InfoContext(ctx, "Ledger entity no longer exists, skipping", "entity", msg.Entity, "id", msg.EntityID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s %s: %w", msg.Entity, msg.EntityID, err)
	}
	if !shop.Features.ExcelExport {
		slog.DebugContext(ctx, "Export not enabled for shop", "shop_id", shop.ID, "plan", shop.Plan)
		return nil
	}

	return w.export(ctx, entry)
}

// HandleDebtReminder acknowledges a reminder. Shops with SMS reminders get a delivery log line;
// sending the SMS itself belongs to the messaging provider integration.
func (w *ExportWorker) HandleDebtReminder(ctx context.Context, msg *amqp.DebtReminderMessage) error {
	shop, err := w.storage.GetShop(ctx, msg.ShopID)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load shop %s: %w", msg.ShopID, err)
	}

	slog.InfoContext(ctx, "Debt reminder due",
		"shop_id", msg.ShopID,
		"debt_id", msg.DebtID,
		"customer", msg.Customer,
		"remaining", core.FormatFCFA(msg.Remaining),
		"reminders_sent", msg.RemindersSent,
		"sms_enabled", shop.Features.SMSReminders)
	return nil
}

// ProcessPending exports rows that were never mirrored.
// This is a backup mechanism in case AMQP messages are lost.
func (w *ExportWorker) ProcessPending(ctx context.Context) error {
	_, _, err := w.processPending(ctx, w.batchSize, nil)
	return err
}

// StartupCheck exports a larger backlog at worker startup. Rows whose reference
// already appears in this year's sheet are only marked, not appended twice.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	existing, err := w.exporter.ListEntries(ctx, w.now().Year())
	if err != nil {
		slog.WarnContext(ctx, "Could not read exported entries, duplicates are not filtered", "error", err)
	}

	synced, failed, err := w.processPending(ctx, w.batchSize*5, sheets.RefSet(existing))
	if err != nil {
		return fmt.Errorf("startup export check: %w", err)
	}
	slog.InfoContext(ctx, "Startup export completed", "exported", synced, "errors", failed)
	return nil
}

func (w *ExportWorker) processPending(ctx context.Context, limit int, seen map[string]struct{}) (int, int, error) {
	pending, err := w.storage.PendingExports(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending exports: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	slog.InfoContext(ctx, "Processing pending exports", "count", len(pending))

	var synced, failed int
	for _, p := range pending {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		if _, ok := seen[entryRef(p.Kind, p.ID)]; ok {
			if _, err := w.storage.ClaimExport(ctx, p.Kind, p.ID, w.now()); err != nil {
				slog.ErrorContext(ctx, "Failed to mark as exported", "kind", p.Kind, "id", p.ID, "error", err)
			}
			continue
		}

		entry, _, err := w.loadEntry(ctx, p.Kind, p.ID)
		if err == nil {
			err = w.export(ctx, entry)
		}
		if err != nil {
			slog.ErrorContext(ctx, "Failed to export entry", "kind", p.Kind, "id", p.ID, "error", err)
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}

// export claims the row before appending it, so an entry reached by both the
// consumer and the poller, or delivered twice, lands in the sheet once.
// A failed append releases the claim for the next poll.
func (w *ExportWorker) export(ctx context.Context, entry core.LedgerEntry) error {
	kind, id := splitRef(entry.Ref)
	claimedAt := w.now()
	claimed, err := w.storage.ClaimExport(ctx, kind, id, claimedAt)
	if err != nil {
		return err
	}
	if !claimed {
		slog.DebugContext(ctx, "Entry already exported, skipping", "ref", entry.Ref)
		return nil
	}

	ref, err := w.exporter.Append(ctx, entry)
	if err != nil {
		if relErr := w.storage.ReleaseExport(context.WithoutCancel(ctx), kind, id, claimedAt); relErr != nil {
			slog.ErrorContext(ctx, "Failed to release export claim", "ref", entry.Ref, "error", relErr)
		}
		return fmt.Errorf("append entry: %w", err)
	}

	slog.InfoContext(ctx, "Exported ledger entry",
		"ref", entry.Ref,
		"row", ref,
		"amount", entry.Amount)
	return nil
}

// loadEntry flattens a sale, expense or debt into an export row.
func (w *ExportWorker) loadEntry(ctx context.Context, kind, id string) (core.LedgerEntry, core.Shop, error) {
	entry := core.LedgerEntry{Kind: kind, Ref: entryRef(kind, id)}

	switch kind {
	case storage.KindSale:
		s, err := w.storage.GetSale(ctx, id)
		if err != nil {
			return entry, core.Shop{}, err
		}
		entry.ShopID, entry.Label, entry.Quantity, entry.Amount, entry.Date = s.ShopID, s.ProductName, s.Quantity, s.Total, s.SoldAt
	case storage.KindExpense:
		e, err := w.storage.GetExpense(ctx, id)
		if err != nil {
			return entry, core.Shop{}, err
		}
		label := e.Category
		if d := strings.TrimSpace(e.Description); d != "" {
			label += " - " + d
		}
		entry.ShopID, entry.Label, entry.Amount, entry.Date = e.ShopID, label, e.Amount, e.SpentAt
	case storage.KindDebt:
		d, err := w.storage.GetDebt(ctx, id)
		if err != nil {
			return entry, core.Shop{}, err
		}
		entry.ShopID, entry.Label, entry.Amount, entry.Date = d.ShopID, d.CustomerName, d.InitialAmount, d.CreatedAt
	default:
		return entry, core.Shop{}, fmt.Errorf("unknown ledger kind %q", kind)
	}

	shop, err := w.storage.GetShop(ctx, entry.ShopID)
	if err != nil {
		return entry, core.Shop{}, fmt.Errorf("load shop: %w", err)
	}
	entry.ShopName = shop.Name
	return entry, shop, nil
}

func isLedgerKind(entity string) bool {
	switch entity {
	case storage.KindSale, storage.KindExpense, storage.KindDebt:
		return true
	}
	return false
}

func entryRef(kind, id string) string {
	return kind + ":" + id
}

func splitRef(ref string) (kind, id string) {
	kind, id, _ = strings.Cut(ref, ":")
	return kind, id
}
