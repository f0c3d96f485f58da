package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"djassa/internal/core"
)

const debtColumns = `id, shop_id, customer_name, customer_phone, initial_amount, remaining_amount, status,
	reminders_sent, last_reminder_at, created_at`

func scanDebt(row interface{ Scan(...any) error }) (core.Debt, error) {
	var (
		d              core.Debt
		status         string
		lastReminderAt sql.NullInt64
		createdAt      int64
	)
	if err := row.Scan(&d.ID, &d.ShopID, &d.CustomerName, &d.CustomerPhone, &d.InitialAmount,
		&d.RemainingAmount, &status, &d.RemindersSent, &lastReminderAt, &createdAt); err != nil {
		return core.Debt{}, err
	}
	d.Status = core.DebtStatus(status)
	d.LastReminderAt = fromNullUnix(lastReminderAt)
	d.CreatedAt = fromUnix(createdAt)
	return d, nil
}

func (r *SQLiteRepository) queryDebts(ctx context.Context, query string, args ...any) ([]core.Debt, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CreateDebt records a customer debt with its full amount outstanding.
func (r *SQLiteRepository) CreateDebt(ctx context.Context, d core.Debt, meta AuditMeta) (core.Debt, error) {
	now := time.Now().UTC()
	d.ID = NewID()
	d.RemainingAmount = d.InitialAmount
	d.Status = core.DebtOpen
	d.CreatedAt = now

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO debts (id, shop_id, customer_name, customer_phone, initial_amount, remaining_amount, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.ShopID, d.CustomerName, d.CustomerPhone, d.InitialAmount, d.RemainingAmount,
			string(d.Status), unix(now), unix(now)); err != nil {
			return fmt.Errorf("insert debt: %w", err)
		}
		return insertAudit(ctx, tx, d.ShopID, meta.action("create"), "debts", d.ID, meta.IP, nil,
			merge(meta.Extra, map[string]any{"customer": d.CustomerName, "amount": d.InitialAmount}), now)
	})
	if err != nil {
		return core.Debt{}, err
	}
	slog.InfoContext(ctx, "Debt saved", "shop_id", d.ShopID, "debt_id", d.ID, "amount", d.InitialAmount)
	return d, nil
}

// ListDebts returns debts with the given status, oldest first.
func (r *SQLiteRepository) ListDebts(ctx context.Context, shopID string, status core.DebtStatus) ([]core.Debt, error) {
	out, err := r.queryDebts(ctx, `SELECT `+debtColumns+` FROM debts
		WHERE shop_id = ? AND status = ? AND deleted_at IS NULL ORDER BY created_at ASC`, shopID, string(status))
	if err != nil {
		return nil, fmt.Errorf("list debts: %w", err)
	}
	return out, nil
}

// OldestOpenDebts returns up to limit open debts, oldest first.
func (r *SQLiteRepository) OldestOpenDebts(ctx context.Context, shopID string, limit int) ([]core.Debt, error) {
	out, err := r.queryDebts(ctx, `SELECT `+debtColumns+` FROM debts
		WHERE shop_id = ? AND status = 'open' AND deleted_at IS NULL ORDER BY created_at ASC LIMIT ?`, shopID, limit)
	if err != nil {
		return nil, fmt.Errorf("list oldest debts: %w", err)
	}
	return out, nil
}

// GetDebt returns a non-deleted debt by ID regardless of shop, for background workers.
func (r *SQLiteRepository) GetDebt(ctx context.Context, id string) (core.Debt, error) {
	d, err := scanDebt(r.db.QueryRowContext(ctx,
		`SELECT `+debtColumns+` FROM debts WHERE id = ? AND deleted_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Debt{}, core.ErrNotFound
	}
	if err != nil {
		return core.Debt{}, fmt.Errorf("get debt: %w", err)
	}
	return d, nil
}

// OpenDebtSummary returns the total outstanding and how many open debts were created at or before criticalBefore.
func (r *SQLiteRepository) OpenDebtSummary(ctx context.Context, shopID string, criticalBefore time.Time) (int64, int, error) {
	var (
		total    int64
		critical int
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(remaining_amount), 0), COALESCE(SUM(CASE WHEN created_at <= ? THEN 1 ELSE 0 END), 0)
		FROM debts WHERE shop_id = ? AND status = 'open' AND deleted_at IS NULL`,
		unix(criticalBefore), shopID).Scan(&total, &critical)
	if err != nil {
		return 0, 0, fmt.Errorf("open debt summary: %w", err)
	}
	return total, critical, nil
}

// DeleteDebt soft-deletes a debt.
func (r *SQLiteRepository) DeleteDebt(ctx context.Context, shopID, id string, meta AuditMeta) error {
	now := time.Now().UTC()
	return r.withTx(ctx, func(tx *sql.Tx) error {
		d, err := scanDebt(tx.QueryRowContext(ctx,
			`SELECT `+debtColumns+` FROM debts WHERE id = ? AND shop_id = ? AND deleted_at IS NULL`, id, shopID))
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load debt: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE debts SET deleted_at = ?, updated_at = ? WHERE id = ?`,
			unix(now), unix(now), id); err != nil {
			return fmt.Errorf("delete debt: %w", err)
		}
		return insertAudit(ctx, tx, shopID, meta.action("delete"), "debts", id, meta.IP,
			map[string]any{"customer": d.CustomerName, "remaining": d.RemainingAmount}, meta.Extra, now)
	})
}

// PayDebt records a partial or full payment and returns the payment and the updated debt.
func (r *SQLiteRepository) PayDebt(ctx context.Context, shopID, debtID string, amount int64, meta AuditMeta) (core.DebtPayment, core.Debt, error) {
	now := time.Now().UTC()
	payment := core.DebtPayment{ID: NewID(), DebtID: debtID, Amount: amount, PaidAt: now}
	var updated core.Debt

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanDebt(tx.QueryRowContext(ctx,
			`SELECT `+debtColumns+` FROM debts WHERE id = ? AND shop_id = ? AND deleted_at IS NULL`, debtID, shopID))
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load debt: %w", err)
		}
		updated, err = current.ApplyPayment(amount)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE debts SET remaining_amount = ?, status = ?, updated_at = ?
			WHERE id = ? AND remaining_amount = ?`,
			updated.RemainingAmount, string(updated.Status), unix(now), debtID, current.RemainingAmount)
		if err != nil {
			return fmt.Errorf("update debt: %w", err)
		}
		if affected(res) == 0 {
			return fmt.Errorf("debt %s changed concurrently: %w", debtID, core.ErrConflict)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO debt_payments (id, debt_id, amount, paid_at, ip_address) VALUES (?, ?, ?, ?, ?)`,
			payment.ID, debtID, amount, unix(now), nullString(meta.IP)); err != nil {
			return fmt.Errorf("insert debt payment: %w", err)
		}
		return insertAudit(ctx, tx, shopID, meta.action("debt_payment"), "debts", debtID, meta.IP,
			map[string]any{"remaining": current.RemainingAmount},
			merge(meta.Extra, map[string]any{"remaining": updated.RemainingAmount, "paid": amount, "status": string(updated.Status)}), now)
	})
	if err != nil {
		return core.DebtPayment{}, core.Debt{}, err
	}
	return payment, updated, nil
}

// DebtsDueForReminder lists open debts across all shops created before createdBefore
// whose last reminder (if any) is older than remindedBefore and that got fewer than maxReminders.
func (r *SQLiteRepository) DebtsDueForReminder(ctx context.Context, createdBefore, remindedBefore time.Time, maxReminders, limit int) ([]core.Debt, error) {
	out, err := r.queryDebts(ctx, `SELECT `+debtColumns+` FROM debts
		WHERE status = 'open' AND deleted_at IS NULL AND created_at <= ?
		  AND (last_reminder_at IS NULL OR last_reminder_at <= ?)
		  AND reminders_sent < ?
		ORDER BY created_at ASC LIMIT ?`,
		unix(createdBefore), unix(remindedBefore), maxReminders, limit)
	if err != nil {
		return nil, fmt.Errorf("list debts due for reminder: %w", err)
	}
	return out, nil
}

// MarkReminderSent increments the reminder counter of a debt.
func (r *SQLiteRepository) MarkReminderSent(ctx context.Context, debtID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE debts SET reminders_sent = reminders_sent + 1, last_reminder_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`, unix(at), unix(at), debtID)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	if affected(res) == 0 {
		return core.ErrNotFound
	}
	return nil
}
