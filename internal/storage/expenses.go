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

const expenseColumns = `id, shop_id, category, amount, description, spent_at`

func scanExpense(row interface{ Scan(...any) error }) (core.Expense, error) {
	var (
		e       core.Expense
		spentAt int64
	)
	if err := row.Scan(&e.ID, &e.ShopID, &e.Category, &e.Amount, &e.Description, &spentAt); err != nil {
		return core.Expense{}, err
	}
	e.SpentAt = fromUnix(spentAt)
	return e, nil
}

// CreateExpense inserts an expense and bumps its frequent-expense bucket and category usage.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense, meta AuditMeta) (core.Expense, error) {
	now := time.Now().UTC()
	e.ID = NewID()
	if e.SpentAt.IsZero() {
		e.SpentAt = now
	}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO expenses (id, shop_id, category, amount, description, spent_at, ip_address, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.ShopID, e.Category, e.Amount, e.Description, unix(e.SpentAt), nullString(meta.IP), unix(now)); err != nil {
			return fmt.Errorf("insert expense: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO frequent_expenses (shop_id, category, amount_bucket, usage_count, last_used_at)
			VALUES (?, ?, ?, 1, ?)
			ON CONFLICT (shop_id, category, amount_bucket)
			DO UPDATE SET usage_count = usage_count + 1, last_used_at = excluded.last_used_at`,
			e.ShopID, e.Category, core.FrequentBucket(e.Amount), unix(now)); err != nil {
			return fmt.Errorf("update frequent expense: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE expense_categories SET usage_count = usage_count + 1 WHERE shop_id = ? AND name = ?`,
			e.ShopID, e.Category); err != nil {
			return fmt.Errorf("update category usage: %w", err)
		}
		return insertAudit(ctx, tx, e.ShopID, meta.action("create"), "expenses", e.ID, meta.IP, nil,
			merge(meta.Extra, map[string]any{"category": e.Category, "amount": e.Amount}), now)
	})
	if err != nil {
		return core.Expense{}, err
	}

	slog.InfoContext(ctx, "Expense saved",
		"shop_id", e.ShopID,
		"expense_id", e.ID,
		"category", e.Category,
		"amount", e.Amount)
	return e, nil
}

// ListExpenses returns one page of expenses, newest first, and the total count.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, shopID string, limit, offset int) ([]core.Expense, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM expenses WHERE shop_id = ? AND deleted_at IS NULL`, shopID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count expenses: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+expenseColumns+` FROM expenses
		WHERE shop_id = ? AND deleted_at IS NULL ORDER BY spent_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		shopID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// GetExpense returns a non-deleted expense by ID regardless of shop, for background workers.
func (r *SQLiteRepository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	e, err := scanExpense(r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND deleted_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

// DeleteExpense soft-deletes an expense.
func (r *SQLiteRepository) DeleteExpense(ctx context.Context, shopID, id string, meta AuditMeta) error {
	now := time.Now().UTC()
	return r.withTx(ctx, func(tx *sql.Tx) error {
		e, err := scanExpense(tx.QueryRowContext(ctx,
			`SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND shop_id = ? AND deleted_at IS NULL`, id, shopID))
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load expense: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE expenses SET deleted_at = ? WHERE id = ?`, unix(now), id); err != nil {
			return fmt.Errorf("delete expense: %w", err)
		}
		return insertAudit(ctx, tx, shopID, meta.action("delete"), "expenses", id, meta.IP,
			map[string]any{"category": e.Category, "amount": e.Amount}, meta.Extra, now)
	})
}

// SumExpenses totals non-deleted expenses in [from, to).
func (r *SQLiteRepository) SumExpenses(ctx context.Context, shopID string, from, to time.Time) (int64, int, error) {
	var (
		total int64
		count int
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0), COUNT(*) FROM expenses
		WHERE shop_id = ? AND deleted_at IS NULL AND spent_at >= ? AND spent_at < ?`,
		shopID, unix(from), unix(to)).Scan(&total, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("sum expenses: %w", err)
	}
	return total, count, nil
}

// TopFrequentExpenses returns the most used (category, amount bucket) pairs.
func (r *SQLiteRepository) TopFrequentExpenses(ctx context.Context, shopID string, limit int) ([]core.FrequentExpense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT category, amount_bucket, usage_count FROM frequent_expenses
		WHERE shop_id = ? ORDER BY usage_count DESC, last_used_at DESC LIMIT ?`, shopID, limit)
	if err != nil {
		return nil, fmt.Errorf("list frequent expenses: %w", err)
	}
	defer rows.Close()

	var out []core.FrequentExpense
	for rows.Next() {
		var f core.FrequentExpense
		if err := rows.Scan(&f.Category, &f.Amount, &f.UsageCount); err != nil {
			return nil, fmt.Errorf("scan frequent expense: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListExpenseCategories(ctx context.Context, shopID string) ([]core.ExpenseCategory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, icon, usage_count FROM expense_categories
		WHERE shop_id = ? ORDER BY usage_count DESC, name`, shopID)
	if err != nil {
		return nil, fmt.Errorf("list expense categories: %w", err)
	}
	defer rows.Close()

	var out []core.ExpenseCategory
	for rows.Next() {
		var c core.ExpenseCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon, &c.UsageCount); err != nil {
			return nil, fmt.Errorf("scan expense category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateExpenseCategory adds a custom category. Duplicate names return ErrConflict.
func (r *SQLiteRepository) CreateExpenseCategory(ctx context.Context, shopID, name, icon string) (core.ExpenseCategory, error) {
	c := core.ExpenseCategory{ID: NewID(), Name: name, Icon: icon}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO expense_categories (id, shop_id, name, icon, usage_count, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`, c.ID, shopID, name, icon, unix(time.Now()))
	if isUniqueViolation(err) {
		return core.ExpenseCategory{}, fmt.Errorf("category %q: %w", name, core.ErrConflict)
	}
	if err != nil {
		return core.ExpenseCategory{}, fmt.Errorf("insert expense category: %w", err)
	}
	return c, nil
}
