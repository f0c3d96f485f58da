package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"djassa/internal/core"
)

func scanGoal(row interface{ Scan(...any) error }) (core.Goal, error) {
	var (
		g          core.Goal
		typ        string
		start, end int64
	)
	if err := row.Scan(&g.ID, &g.ShopID, &typ, &g.TargetAmount, &start, &end); err != nil {
		return core.Goal{}, err
	}
	g.Type = core.GoalType(typ)
	g.StartDate = fromUnix(start)
	g.EndDate = fromUnix(end)
	return g, nil
}

func (r *SQLiteRepository) CreateGoal(ctx context.Context, g core.Goal, meta AuditMeta) (core.Goal, error) {
	now := time.Now().UTC()
	g.ID = NewID()
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO goals (id, shop_id, type, target_amount, start_date, end_date, active, created_at)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
			g.ID, g.ShopID, string(g.Type), g.TargetAmount, unix(g.StartDate), unix(g.EndDate), unix(now)); err != nil {
			return fmt.Errorf("insert goal: %w", err)
		}
		return insertAudit(ctx, tx, g.ShopID, meta.action("create"), "goals", g.ID, meta.IP, nil,
			map[string]any{"type": string(g.Type), "target": g.TargetAmount}, now)
	})
	if err != nil {
		return core.Goal{}, err
	}
	return g, nil
}

func (r *SQLiteRepository) ListGoals(ctx context.Context, shopID string) ([]core.Goal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, shop_id, type, target_amount, start_date, end_date FROM goals
		WHERE shop_id = ? AND active = 1 AND deleted_at IS NULL ORDER BY start_date DESC`, shopID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var out []core.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ActiveGoal returns the goal whose period contains now. The most recently started one wins.
func (r *SQLiteRepository) ActiveGoal(ctx context.Context, shopID string, now time.Time) (core.Goal, error) {
	g, err := scanGoal(r.db.QueryRowContext(ctx, `
		SELECT id, shop_id, type, target_amount, start_date, end_date FROM goals
		WHERE shop_id = ? AND active = 1 AND deleted_at IS NULL AND start_date <= ? AND end_date >= ?
		ORDER BY start_date DESC LIMIT 1`, shopID, unix(now), unix(now)))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Goal{}, core.ErrNotFound
	}
	if err != nil {
		return core.Goal{}, fmt.Errorf("get active goal: %w", err)
	}
	return g, nil
}
