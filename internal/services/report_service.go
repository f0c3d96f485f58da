package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"djassa/internal/cache"
	"djassa/internal/core"
	"djassa/internal/storage"
)

// Report types accepted by Report.
const (
	ReportSales    = "sales"
	ReportExpenses = "expenses"
	ReportDebts    = "debts"
	ReportStock    = "stock"
)

type DayAmount struct {
	Date    string `json:"date"`
	Weekday string `json:"day"`
	Amount  int64  `json:"amount"`
}

type GoalProgress struct {
	Type     core.GoalType `json:"type"`
	Target   int64         `json:"target"`
	Achieved int64         `json:"achieved"`
	Progress float64       `json:"progress"`
}

type Dashboard struct {
	SalesToday    int64         `json:"sales_today"`
	ExpensesToday int64         `json:"expenses_today"`
	DebtTotal     int64         `json:"debt_total"`
	CriticalDebts int           `json:"critical_debts"`
	StockAlerts   int           `json:"stock_alerts"`
	Last7Days     []DayAmount   `json:"sales_last_7_days"`
	ActiveGoal    *GoalProgress `json:"active_goal"`
}

type NetProfit struct {
	Sales    int64 `json:"sales"`
	Expenses int64 `json:"expenses"`
	Net      int64 `json:"net_profit"`
}

// ReportRow is one line of a report. Sales and expense reports have one row per day,
// debt reports one per open debt and stock reports one per product.
type ReportRow struct {
	Date             string `json:"date,omitempty"`
	Label            string `json:"label,omitempty"`
	AmountTotal      int64  `json:"amount_total"`
	TransactionCount int    `json:"transaction_count"`
	Client           string `json:"client,omitempty"`
	Alert            *bool  `json:"alert,omitempty"`
}

type ReportSummary struct {
	Total   int64 `json:"total"`
	Average int64 `json:"average"`
	Trend   int64 `json:"trend"`
}

type Report struct {
	Data    []ReportRow   `json:"data"`
	Summary ReportSummary `json:"summary"`
}

// Snapshot is the shop state the assistant reasons about.
type Snapshot struct {
	ShopName      string
	Plan          core.Plan
	SalesToday    int64
	ExpensesToday int64
	SalesWeek     int64
	ExpensesWeek  int64
	DebtTotal     int64
	CriticalDebts int
	StockAlerts   int
	OpenDebts     []core.Debt
	RecentSales   []core.Sale
	LowStock      []core.Product
	Now           time.Time
}

// ReportService computes dashboards and reports. Dashboards are cached per shop.
type ReportService struct {
	storage *storage.SQLiteRepository
	cache   cache.Cache[any]
	now     func() time.Time
}

func NewReportService(storage *storage.SQLiteRepository, responses cache.Cache[any]) *ReportService {
	return &ReportService{
		storage: storage,
		cache:   responses,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Dashboard returns today's figures, the last seven days of sales and the active goal.
func (s *ReportService) Dashboard(ctx context.Context, shopID string) (Dashboard, error) {
	key := cache.Key(shopID, "dashboard")
	var gen uint64
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			if d, ok := v.(Dashboard); ok {
				return d, nil
			}
		}
		gen = s.cache.Generation(cache.ShopPrefix(shopID))
	}

	now := s.now()
	today := core.DayStart(now)
	tomorrow := today.AddDate(0, 0, 1)

	var (
		d    Dashboard
		days []storage.DayTotal
		goal *GoalProgress
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		d.SalesToday, _, err = s.storage.SumSales(gctx, shopID, today, tomorrow)
		return err
	})
	g.Go(func() error {
		var err error
		d.ExpensesToday, _, err = s.storage.SumExpenses(gctx, shopID, today, tomorrow)
		return err
	})
	g.Go(func() error {
		var err error
		d.DebtTotal, d.CriticalDebts, err = s.storage.OpenDebtSummary(gctx, shopID, now.AddDate(0, 0, -core.CriticalDebtAge))
		return err
	})
	g.Go(func() error {
		var err error
		d.StockAlerts, err = s.storage.CountLowStock(gctx, shopID)
		return err
	})
	g.Go(func() error {
		var err error
		days, err = s.storage.DailySales(gctx, shopID, today.AddDate(0, 0, -6), 7)
		return err
	})
	g.Go(func() error {
		var err error
		goal, err = s.goalProgress(gctx, shopID, now)
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, fmt.Errorf("compute dashboard: %w", err)
	}

	d.Last7Days = make([]DayAmount, 0, len(days))
	for _, day := range days {
		d.Last7Days = append(d.Last7Days, DayAmount{
			Date:    day.Date.Format("2006-01-02"),
			Weekday: core.FrenchWeekday(day.Date),
			Amount:  day.Total,
		})
	}
	d.ActiveGoal = goal

	// A write that committed while we computed has cleared the shop; do not cache over it.
	if s.cache != nil && !s.cache.SetIfGeneration(key, d, cache.ShopPrefix(shopID), gen) {
		slog.DebugContext(ctx, "Dashboard changed while computing, not cached", "shop_id", shopID)
	}
	return d, nil
}

func (s *ReportService) goalProgress(ctx context.Context, shopID string, now time.Time) (*GoalProgress, error) {
	goal, err := s.storage.ActiveGoal(ctx, shopID, now)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	achieved, _, err := s.storage.SumSales(ctx, shopID, goal.StartDate, goal.EndDate.Add(time.Second))
	if err != nil {
		return nil, err
	}
	return &GoalProgress{
		Type:     goal.Type,
		Target:   goal.TargetAmount,
		Achieved: achieved,
		Progress: core.Progress(achieved, goal.TargetAmount),
	}, nil
}

// NetProfit sums sales and expenses from the start of the period up to now.
func (s *ReportService) NetProfit(ctx context.Context, shopID, period string) (NetProfit, error) {
	now := s.now()
	from := core.DayStart(now).AddDate(0, 0, -core.PeriodDays(period))
	to := core.DayStart(now).AddDate(0, 0, 1)

	var out NetProfit
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.Sales, _, err = s.storage.SumSales(gctx, shopID, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		out.Expenses, _, err = s.storage.SumExpenses(gctx, shopID, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return NetProfit{}, fmt.Errorf("compute net profit: %w", err)
	}
	out.Net = out.Sales - out.Expenses
	return out, nil
}

// Report builds a sales, expenses, debts or stock report. Daily reports cover the
// period ending on start (today when empty or invalid), newest day first, and their
// trend compares with the period of the same length just before.
func (s *ReportService) Report(ctx context.Context, shopID, reportType, period, start string) (Report, error) {
	days := core.PeriodDays(period)
	end := core.DayStart(s.now())
	if start != "" {
		if t, err := core.ParseDay(start); err == nil {
			end = t
		}
	}
	from := end.AddDate(0, 0, -(days - 1))

	var (
		rep         Report
		prevTotal   int64
		err         error
		daily       func(context.Context, string, time.Time, int) ([]storage.DayTotal, error)
		sumPrevious func(context.Context, string, time.Time, time.Time) (int64, int, error)
	)

	switch reportType {
	case ReportSales:
		daily, sumPrevious = s.storage.DailySales, s.storage.SumSales
	case ReportExpenses:
		daily, sumPrevious = s.storage.DailyExpenses, s.storage.SumExpenses
	case ReportDebts:
		rep.Data, rep.Summary.Total, err = s.debtRows(ctx, shopID)
	case ReportStock:
		rep.Data, rep.Summary.Total, err = s.stockRows(ctx, shopID)
	default:
		return Report{}, core.Invalid("type", "type de rapport invalide (sales, expenses, debts, stock)")
	}
	if err != nil {
		return Report{}, err
	}

	if daily != nil {
		var rows []storage.DayTotal
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			rows, err = daily(gctx, shopID, from, days)
			return err
		})
		g.Go(func() error {
			var err error
			prevTotal, _, err = sumPrevious(gctx, shopID, from.AddDate(0, 0, -days), from)
			return err
		})
		if err := g.Wait(); err != nil {
			return Report{}, fmt.Errorf("compute %s report: %w", reportType, err)
		}
		rep.Data = make([]ReportRow, 0, len(rows))
		for i := len(rows) - 1; i >= 0; i-- {
			rep.Data = append(rep.Data, ReportRow{
				Date:             rows[i].Date.Format("2006-01-02"),
				AmountTotal:      rows[i].Total,
				TransactionCount: rows[i].Count,
			})
			rep.Summary.Total += rows[i].Total
		}
		rep.Summary.Trend = core.Trend(rep.Summary.Total, prevTotal)
	}

	if rep.Data == nil {
		rep.Data = []ReportRow{}
	}
	rep.Summary.Average = core.Average(rep.Summary.Total, days)
	return rep, nil
}

func (s *ReportService) debtRows(ctx context.Context, shopID string) ([]ReportRow, int64, error) {
	debts, err := s.storage.ListDebts(ctx, shopID, core.DebtOpen)
	if err != nil {
		return nil, 0, err
	}
	rows := make([]ReportRow, 0, len(debts))
	var total int64
	// newest first
	for i := len(debts) - 1; i >= 0; i-- {
		d := debts[i]
		rows = append(rows, ReportRow{
			Date:             d.CreatedAt.Format("2006-01-02"),
			AmountTotal:      d.RemainingAmount,
			TransactionCount: 1,
			Client:           d.CustomerName,
		})
		total += d.RemainingAmount
	}
	return rows, total, nil
}

func (s *ReportService) stockRows(ctx context.Context, shopID string) ([]ReportRow, int64, error) {
	products, err := s.storage.ListProductsByStock(ctx, shopID)
	if err != nil {
		return nil, 0, err
	}
	rows := make([]ReportRow, 0, len(products))
	var total int64
	for _, p := range products {
		value := p.UnitPrice * int64(p.Stock)
		alert := p.IsLow()
		rows = append(rows, ReportRow{
			Label:            p.Name,
			AmountTotal:      value,
			TransactionCount: p.Stock,
			Alert:            &alert,
		})
		total += value
	}
	return rows, total, nil
}

// Snapshot gathers the figures the assistant puts in its prompt.
func (s *ReportService) Snapshot(ctx context.Context, shop core.Shop) (Snapshot, error) {
	now := s.now()
	today := core.DayStart(now)
	tomorrow := today.AddDate(0, 0, 1)
	weekStart := today.AddDate(0, 0, -7)

	snap := Snapshot{ShopName: shop.Name, Plan: shop.Plan, Now: now}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.SalesToday, _, err = s.storage.SumSales(gctx, shop.ID, today, tomorrow)
		return err
	})
	g.Go(func() error {
		var err error
		snap.ExpensesToday, _, err = s.storage.SumExpenses(gctx, shop.ID, today, tomorrow)
		return err
	})
	g.Go(func() error {
		var err error
		snap.SalesWeek, _, err = s.storage.SumSales(gctx, shop.ID, weekStart, tomorrow)
		return err
	})
	g.Go(func() error {
		var err error
		snap.ExpensesWeek, _, err = s.storage.SumExpenses(gctx, shop.ID, weekStart, tomorrow)
		return err
	})
	g.Go(func() error {
		var err error
		snap.DebtTotal, snap.CriticalDebts, err = s.storage.OpenDebtSummary(gctx, shop.ID, now.AddDate(0, 0, -core.CriticalDebtAge))
		return err
	})
	g.Go(func() error {
		var err error
		snap.StockAlerts, err = s.storage.CountLowStock(gctx, shop.ID)
		return err
	})
	g.Go(func() error {
		var err error
		snap.OpenDebts, err = s.storage.OldestOpenDebts(gctx, shop.ID, 10)
		return err
	})
	g.Go(func() error {
		var err error
		snap.RecentSales, err = s.storage.RecentSales(gctx, shop.ID, 5)
		return err
	})
	g.Go(func() error {
		var err error
		snap.LowStock, err = s.storage.LowStockProducts(gctx, shop.ID, 5)
		return err
	})
	if err := g.Wait(); err != nil {
		slog.ErrorContext(ctx, "Failed to build assistant snapshot", "shop_id", shop.ID, "error", err)
		return Snapshot{}, fmt.Errorf("build snapshot: %w", err)
	}
	return snap, nil
}
