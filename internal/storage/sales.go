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

const saleSelect = `SELECT s.id, s.shop_id, s.product_id, p.name, s.quantity, s.unit_price, s.total, s.payment_mode, s.sold_at
	FROM sales s JOIN products p ON p.id = s.product_id`

func scanSale(row interface{ Scan(...any) error }) (core.Sale, error) {
	var (
		s      core.Sale
		mode   string
		soldAt int64
	)
	if err := row.Scan(&s.ID, &s.ShopID, &s.ProductID, &s.ProductName, &s.Quantity, &s.UnitPrice,
		&s.Total, &mode, &soldAt); err != nil {
		return core.Sale{}, err
	}
	s.PaymentMode = core.PaymentMode(mode)
	s.SoldAt = fromUnix(soldAt)
	return s, nil
}

func (r *SQLiteRepository) querySales(ctx context.Context, query string, args ...any) ([]core.Sale, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateSale records a sale at the product's current price and decrements its stock.
// It fails with ErrNotFound for an unknown product and ErrInsufficientStock when
// the stock does not cover the quantity.
func (r *SQLiteRepository) CreateSale(ctx context.Context, sale core.Sale, meta AuditMeta) (core.Sale, error) {
	now := time.Now().UTC()
	if sale.SoldAt.IsZero() {
		sale.SoldAt = now
	}
	if sale.PaymentMode == "" {
		sale.PaymentMode = core.PaymentCash
	}
	sale.ID = NewID()

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var stock int
		err := tx.QueryRowContext(ctx,
			`SELECT name, unit_price, stock FROM products WHERE id = ? AND shop_id = ? AND `+activeProduct,
			sale.ProductID, sale.ShopID).Scan(&sale.ProductName, &sale.UnitPrice, &stock)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("product %s: %w", sale.ProductID, core.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load product: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE products SET stock = stock - ?, updated_at = ? WHERE id = ? AND stock >= ?`,
			sale.Quantity, unix(now), sale.ProductID, sale.Quantity)
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
		if affected(res) == 0 {
			return fmt.Errorf("%d requested, %d available: %w", sale.Quantity, stock, core.ErrInsufficientStock)
		}

		sale.Total = sale.UnitPrice * int64(sale.Quantity)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sales (id, shop_id, product_id, quantity, unit_price, total, payment_mode, sold_at, ip_address, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sale.ID, sale.ShopID, sale.ProductID, sale.Quantity, sale.UnitPrice, sale.Total,
			string(sale.PaymentMode), unix(sale.SoldAt), nullString(meta.IP), unix(now)); err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}

		return insertAudit(ctx, tx, sale.ShopID, meta.action("create"), "sales", sale.ID, meta.IP, nil,
			merge(meta.Extra, map[string]any{"product": sale.ProductName, "quantity": sale.Quantity, "total": sale.Total}), now)
	})
	if err != nil {
		return core.Sale{}, err
	}

	slog.InfoContext(ctx, "Sale saved",
		"shop_id", sale.ShopID,
		"sale_id", sale.ID,
		"product", sale.ProductName,
		"quantity", sale.Quantity,
		"total", sale.Total)
	return sale, nil
}

// ListSales returns one page of sales, newest first, and the total count.
func (r *SQLiteRepository) ListSales(ctx context.Context, shopID string, limit, offset int) ([]core.Sale, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sales WHERE shop_id = ? AND deleted_at IS NULL`, shopID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sales: %w", err)
	}
	out, err := r.querySales(ctx,
		saleSelect+` WHERE s.shop_id = ? AND s.deleted_at IS NULL ORDER BY s.sold_at DESC, s.rowid DESC LIMIT ? OFFSET ?`,
		shopID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list sales: %w", err)
	}
	return out, total, nil
}

// RecentSales returns the latest sales of a shop.
func (r *SQLiteRepository) RecentSales(ctx context.Context, shopID string, limit int) ([]core.Sale, error) {
	out, _, err := r.ListSales(ctx, shopID, limit, 0)
	return out, err
}

// GetSale returns a non-deleted sale by ID regardless of shop, for background workers.
func (r *SQLiteRepository) GetSale(ctx context.Context, id string) (core.Sale, error) {
	s, err := scanSale(r.db.QueryRowContext(ctx, saleSelect+` WHERE s.id = ? AND s.deleted_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Sale{}, core.ErrNotFound
	}
	if err != nil {
		return core.Sale{}, fmt.Errorf("get sale: %w", err)
	}
	return s, nil
}

// DeleteSale soft-deletes a sale and puts its quantity back in stock.
func (r *SQLiteRepository) DeleteSale(ctx context.Context, shopID, saleID string, meta AuditMeta) error {
	now := time.Now().UTC()
	return r.withTx(ctx, func(tx *sql.Tx) error {
		s, err := scanSale(tx.QueryRowContext(ctx,
			saleSelect+` WHERE s.id = ? AND s.shop_id = ? AND s.deleted_at IS NULL`, saleID, shopID))
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load sale: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE sales SET deleted_at = ? WHERE id = ?`, unix(now), saleID); err != nil {
			return fmt.Errorf("delete sale: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE products SET stock = stock + ?, updated_at = ? WHERE id = ?`, s.Quantity, unix(now), s.ProductID); err != nil {
			return fmt.Errorf("restore stock: %w", err)
		}
		return insertAudit(ctx, tx, shopID, meta.action("delete"), "sales", saleID, meta.IP,
			map[string]any{"product": s.ProductName, "quantity": s.Quantity, "total": s.Total}, meta.Extra, now)
	})
}

// SumSales totals non-deleted sales in [from, to).
func (r *SQLiteRepository) SumSales(ctx context.Context, shopID string, from, to time.Time) (int64, int, error) {
	var (
		total int64
		count int
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total), 0), COUNT(*) FROM sales
		WHERE shop_id = ? AND deleted_at IS NULL AND sold_at >= ? AND sold_at < ?`,
		shopID, unix(from), unix(to)).Scan(&total, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("sum sales: %w", err)
	}
	return total, count, nil
}
