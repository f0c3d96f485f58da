package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"djassa/internal/core"
)

const productColumns = `id, shop_id, name, unit_price, stock, alert_threshold, category, barcode, created_at`

const activeProduct = `active = 1 AND deleted_at IS NULL`

func scanProduct(row interface{ Scan(...any) error }) (core.Product, error) {
	var (
		p                 core.Product
		category, barcode sql.NullString
		createdAt         int64
	)
	if err := row.Scan(&p.ID, &p.ShopID, &p.Name, &p.UnitPrice, &p.Stock, &p.AlertThreshold,
		&category, &barcode, &createdAt); err != nil {
		return core.Product{}, err
	}
	p.Category = category.String
	p.Barcode = barcode.String
	p.CreatedAt = fromUnix(createdAt)
	return p, nil
}

func (r *SQLiteRepository) queryProducts(ctx context.Context, query string, args ...any) ([]core.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListProducts returns a shop's active products ordered by name.
func (r *SQLiteRepository) ListProducts(ctx context.Context, shopID string) ([]core.Product, error) {
	out, err := r.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE shop_id = ? AND `+activeProduct+` ORDER BY name COLLATE NOCASE`, shopID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

// ListProductsByStock returns active products ordered by ascending stock, for the stock report.
func (r *SQLiteRepository) ListProductsByStock(ctx context.Context, shopID string) ([]core.Product, error) {
	out, err := r.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE shop_id = ? AND `+activeProduct+` ORDER BY stock ASC, name`, shopID)
	if err != nil {
		return nil, fmt.Errorf("list products by stock: %w", err)
	}
	return out, nil
}

// LowStockProducts returns up to limit products at or under their alert threshold.
func (r *SQLiteRepository) LowStockProducts(ctx context.Context, shopID string, limit int) ([]core.Product, error) {
	out, err := r.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE shop_id = ? AND `+activeProduct+`
		 AND stock <= alert_threshold ORDER BY stock ASC LIMIT ?`, shopID, limit)
	if err != nil {
		return nil, fmt.Errorf("list low stock products: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) CountLowStock(ctx context.Context, shopID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE shop_id = ? AND `+activeProduct+` AND stock <= alert_threshold`,
		shopID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count low stock: %w", err)
	}
	return n, nil
}

// GetProduct returns one active product of the shop.
func (r *SQLiteRepository) GetProduct(ctx context.Context, shopID, id string) (core.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ? AND shop_id = ? AND `+activeProduct, id, shopID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Product{}, core.ErrNotFound
	}
	if err != nil {
		return core.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// FindProductByName returns the first active product whose name contains fragment, case-insensitively.
// Exact matches win over partial ones.
func (r *SQLiteRepository) FindProductByName(ctx context.Context, shopID, fragment string) (core.Product, error) {
	needle := strings.ToLower(strings.TrimSpace(fragment))
	p, err := scanProduct(r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE shop_id = ? AND `+activeProduct+` AND instr(lower(name), ?) > 0
		 ORDER BY (lower(name) = ?) DESC, length(name) ASC LIMIT 1`, shopID, needle, needle))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Product{}, core.ErrNotFound
	}
	if err != nil {
		return core.Product{}, fmt.Errorf("find product by name: %w", err)
	}
	return p, nil
}

// CreateProduct inserts a product. Names are unique per shop among active products.
func (r *SQLiteRepository) CreateProduct(ctx context.Context, p core.Product, meta AuditMeta) (core.Product, error) {
	now := time.Now().UTC()
	p.ID = NewID()
	p.CreatedAt = now
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM products WHERE shop_id = ? AND lower(name) = lower(?) AND `+activeProduct,
			p.ShopID, p.Name).Scan(&exists); err != nil {
			return fmt.Errorf("check product name: %w", err)
		}
		if exists > 0 {
			return fmt.Errorf("product %q already exists: %w", p.Name, core.ErrConflict)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, shop_id, name, unit_price, stock, alert_threshold, category, barcode, active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			p.ID, p.ShopID, p.Name, p.UnitPrice, p.Stock, p.AlertThreshold,
			nullString(p.Category), nullString(p.Barcode), unix(now), unix(now))
		if err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
		return insertAudit(ctx, tx, p.ShopID, meta.action("create"), "products", p.ID, meta.IP, nil,
			merge(meta.Extra, map[string]any{"name": p.Name, "unit_price": p.UnitPrice, "stock": p.Stock}), now)
	})
	if err != nil {
		return core.Product{}, err
	}
	slog.InfoContext(ctx, "Product created", "shop_id", p.ShopID, "product_id", p.ID, "name", p.Name)
	return p, nil
}

// AdjustStock adds delta to the product stock. The result must stay non-negative.
func (r *SQLiteRepository) AdjustStock(ctx context.Context, shopID, productID string, delta int, meta AuditMeta) (core.Product, error) {
	now := time.Now().UTC()
	var updated core.Product
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanProduct(tx.QueryRowContext(ctx,
			`SELECT `+productColumns+` FROM products WHERE id = ? AND shop_id = ? AND `+activeProduct, productID, shopID))
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load product: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE products SET stock = stock + ?, updated_at = ? WHERE id = ? AND stock + ? >= 0`,
			delta, unix(now), productID, delta)
		if err != nil {
			return fmt.Errorf("update stock: %w", err)
		}
		if affected(res) == 0 {
			return core.ErrNegativeStock
		}
		updated = current
		updated.Stock = current.Stock + delta
		return insertAudit(ctx, tx, shopID, meta.action("update_stock"), "products", productID, meta.IP,
			map[string]any{"stock": current.Stock},
			merge(meta.Extra, map[string]any{"stock": updated.Stock, "adjustment": delta}), now)
	})
	if err != nil {
		return core.Product{}, err
	}
	return updated, nil
}

// DeleteProduct soft-deletes a product.
func (r *SQLiteRepository) DeleteProduct(ctx context.Context, shopID, productID string, meta AuditMeta) error {
	now := time.Now().UTC()
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var name string
		err := tx.QueryRowContext(ctx,
			`SELECT name FROM products WHERE id = ? AND shop_id = ? AND `+activeProduct, productID, shopID).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load product: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE products SET deleted_at = ?, active = 0, updated_at = ? WHERE id = ?`,
			unix(now), unix(now), productID); err != nil {
			return fmt.Errorf("delete product: %w", err)
		}
		return insertAudit(ctx, tx, shopID, meta.action("delete"), "products", productID, meta.IP,
			map[string]any{"name": name}, meta.Extra, now)
	})
}

func merge(a, b map[string]any) map[string]any {
	if len(a) == 0 {
		return b
	}
	out := make(map[string]any, len(a)+len(b))
	for k, v := range b {
		out[k] = v
	}
	for k, v := range a {
		out[k] = v
	}
	return out
}
