package storage

import (
	"context"
	"fmt"
	"time"
)

// DayTotal aggregates one calendar day (UTC) of sales or expenses.
type DayTotal struct {
	Date  time.Time
	Total int64
	Count int
}

// DailySales returns one row per day in [from, from+days), including empty days.
func (r *SQLiteRepository) DailySales(ctx context.Context, shopID string, from time.Time, days int) ([]DayTotal, error) {
	return r.dailyTotals(ctx, `SELECT (sold_at - ?) / 86400, SUM(total), COUNT(*) FROM sales
		WHERE shop_id = ? AND deleted_at IS NULL AND sold_at >= ? AND sold_at < ? GROUP BY 1`, shopID, from, days)
}

// DailyExpenses is DailySales for expenses.
func (r *SQLiteRepository) DailyExpenses(ctx context.Context, shopID string, from time.Time, days int) ([]DayTotal, error) {
	return r.dailyTotals(ctx, `SELECT (spent_at - ?) / 86400, SUM(amount), COUNT(*) FROM expenses
		WHERE shop_id = ? AND deleted_at IS NULL AND spent_at >= ? AND spent_at < ? GROUP BY 1`, shopID, from, days)
}

func (r *SQLiteRepository) dailyTotals(ctx context.Context, query, shopID string, from time.Time, days int) ([]DayTotal, error) {
	start := unix(from)
	end := unix(from.AddDate(0, 0, days))
	rows, err := r.db.QueryContext(ctx, query, start, shopID, start, end)
	if err != nil {
		return nil, fmt.Errorf("daily totals: %w", err)
	}
	defer rows.Close()

	out := make([]DayTotal, days)
	for i := range out {
		out[i].Date = from.AddDate(0, 0, i)
	}
	for rows.Next() {
		var (
			idx   int
			total int64
			count int
		)
		if err := rows.Scan(&idx, &total, &count); err != nil {
			return nil, fmt.Errorf("scan daily total: %w", err)
		}
		if idx >= 0 && idx < days {
			out[idx].Total = total
			out[idx].Count = count
		}
	}
	return out, rows.Err()
}
