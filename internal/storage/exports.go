package storage

import (
	"context"
	"fmt"
	"time"
)

// Ledger entity kinds as they appear in events and exports.
const (
	KindSale    = "sale"
	KindExpense = "expense"
	KindDebt    = "debt"
)

var exportTables = map[string]string{
	KindSale:    "sales",
	KindExpense: "expenses",
	KindDebt:    "debts",
}

// PendingExport identifies a ledger row not yet mirrored to the spreadsheet.
type PendingExport struct {
	Kind string
	ID   string
}

// exportableShop restricts a join on shops (aliased sh) to live shops whose plan enables export.
const exportableShop = `sh.active = 1 AND sh.deleted_at IS NULL AND json_extract(sh.features_json, '$.excel_export') = 1`

// PendingExports lists unexported rows of live, export-enabled shops, oldest first.
func (r *SQLiteRepository) PendingExports(ctx context.Context, limit int) ([]PendingExport, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT kind, id FROM (
			SELECT 'sale' AS kind, s.id, s.created_at FROM sales s JOIN shops sh ON sh.id = s.shop_id
			WHERE s.exported_at IS NULL AND s.deleted_at IS NULL AND `+exportableShop+`
			UNION ALL
			SELECT 'expense', e.id, e.created_at FROM expenses e JOIN shops sh ON sh.id = e.shop_id
			WHERE e.exported_at IS NULL AND e.deleted_at IS NULL AND `+exportableShop+`
			UNION ALL
			SELECT 'debt', d.id, d.created_at FROM debts d JOIN shops sh ON sh.id = d.shop_id
			WHERE d.exported_at IS NULL AND d.deleted_at IS NULL AND `+exportableShop+`
		) ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending exports: %w", err)
	}
	defer rows.Close()

	var out []PendingExport
	for rows.Next() {
		var p PendingExport
		if err := rows.Scan(&p.Kind, &p.ID); err != nil {
			return nil, fmt.Errorf("scan pending export: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ClaimExport stamps a ledger row as exported unless it already is.
// Only the caller that gets true may append the row, so concurrent exporters
// and redelivered events write it once.
func (r *SQLiteRepository) ClaimExport(ctx context.Context, kind, id string, at time.Time) (bool, error) {
	table, ok := exportTables[kind]
	if !ok {
		return false, fmt.Errorf("unknown ledger kind %q", kind)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE `+table+` SET exported_at = ? WHERE id = ? AND exported_at IS NULL`, unix(at), id)
	if err != nil {
		return false, fmt.Errorf("claim %s export: %w", kind, err)
	}
	return affected(res) == 1, nil
}

// ReleaseExport undoes a claim made at the given time so the row is retried.
func (r *SQLiteRepository) ReleaseExport(ctx context.Context, kind, id string, claimedAt time.Time) error {
	table, ok := exportTables[kind]
	if !ok {
		return fmt.Errorf("unknown ledger kind %q", kind)
	}
	if _, err := r.db.ExecContext(ctx,
		`UPDATE `+table+` SET exported_at = NULL WHERE id = ? AND exported_at = ?`, id, unix(claimedAt)); err != nil {
		return fmt.Errorf("release %s export: %w", kind, err)
	}
	return nil
}
