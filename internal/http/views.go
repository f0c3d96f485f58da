package http

import (
	"time"

	"djassa/internal/core"
	"djassa/internal/services"
	"djassa/internal/storage"
)

// JSON shapes returned by the API. Domain types carry no tags, so every
// response goes through one of these.

type sessionView struct {
	ShopID    string        `json:"shop_id"`
	ShopName  string        `json:"shop_name"`
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	Plan      core.Plan     `json:"plan"`
	Features  core.Features `json:"features"`
}

func newSessionView(s services.Session) sessionView {
	return sessionView{
		ShopID:    s.Shop.ID,
		ShopName:  s.Shop.Name,
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
		Plan:      s.Shop.Plan,
		Features:  s.Shop.Features,
	}
}

type productView struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	UnitPrice      int64  `json:"unit_price"`
	Stock          int    `json:"stock"`
	AlertThreshold int    `json:"alert_threshold"`
	Category       string `json:"category,omitempty"`
	Barcode        string `json:"barcode,omitempty"`
	LowStock       bool   `json:"low_stock"`
}

func newProductView(p core.Product) productView {
	return productView{
		ID:             p.ID,
		Name:           p.Name,
		UnitPrice:      p.UnitPrice,
		Stock:          p.Stock,
		AlertThreshold: p.AlertThreshold,
		Category:       p.Category,
		Barcode:        p.Barcode,
		LowStock:       p.IsLow(),
	}
}

type saleProductView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
}

type saleView struct {
	ID          string           `json:"id"`
	Product     saleProductView  `json:"product"`
	Quantity    int              `json:"quantity"`
	Total       int64            `json:"total"`
	PaymentMode core.PaymentMode `json:"payment_mode"`
	SoldAt      time.Time        `json:"sold_at"`
}

func newSaleView(s core.Sale) saleView {
	return saleView{
		ID:          s.ID,
		Product:     saleProductView{ID: s.ProductID, Name: s.ProductName, UnitPrice: s.UnitPrice},
		Quantity:    s.Quantity,
		Total:       s.Total,
		PaymentMode: s.PaymentMode,
		SoldAt:      s.SoldAt,
	}
}

type expenseView struct {
	ID          string    `json:"id"`
	Category    string    `json:"category"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description,omitempty"`
	SpentAt     time.Time `json:"spent_at"`
}

func newExpenseView(e core.Expense) expenseView {
	return expenseView{ID: e.ID, Category: e.Category, Amount: e.Amount, Description: e.Description, SpentAt: e.SpentAt}
}

type frequentExpenseView struct {
	Category   string `json:"category"`
	Amount     int64  `json:"amount"`
	UsageCount int    `json:"usage_count"`
}

type categoryView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Icon       string `json:"icon"`
	UsageCount int    `json:"usage_count"`
}

type debtView struct {
	ID              string          `json:"id"`
	CustomerName    string          `json:"customer_name"`
	CustomerPhone   string          `json:"customer_phone,omitempty"`
	InitialAmount   int64           `json:"initial_amount"`
	RemainingAmount int64           `json:"remaining_amount"`
	Status          core.DebtStatus `json:"status"`
	AgeDays         int             `json:"age_days"`
	Critical        bool            `json:"critical"`
	RemindersSent   int             `json:"reminders_sent"`
	CreatedAt       time.Time       `json:"created_at"`
}

func newDebtView(d core.Debt, now time.Time) debtView {
	return debtView{
		ID:              d.ID,
		CustomerName:    d.CustomerName,
		CustomerPhone:   d.CustomerPhone,
		InitialAmount:   d.InitialAmount,
		RemainingAmount: d.RemainingAmount,
		Status:          d.Status,
		AgeDays:         d.AgeDays(now),
		Critical:        d.IsCritical(now),
		RemindersSent:   d.RemindersSent,
		CreatedAt:       d.CreatedAt,
	}
}

type paymentView struct {
	ID     string    `json:"id"`
	Amount int64     `json:"amount"`
	PaidAt time.Time `json:"paid_at"`
}

type goalView struct {
	ID           string        `json:"id"`
	Type         core.GoalType `json:"type"`
	TargetAmount int64         `json:"target_amount"`
	StartDate    time.Time     `json:"start_date"`
	EndDate      time.Time     `json:"end_date"`
	Active       bool          `json:"active"`
}

func newGoalView(g core.Goal, now time.Time) goalView {
	return goalView{
		ID:           g.ID,
		Type:         g.Type,
		TargetAmount: g.TargetAmount,
		StartDate:    g.StartDate,
		EndDate:      g.EndDate,
		Active:       g.IsActiveAt(now),
	}
}

type chatMessageView struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func newChatMessageView(m storage.ChatMessage) chatMessageView {
	return chatMessageView{Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt}
}

// page wraps a paginated list.
type page[T any] struct {
	Items   []T  `json:"items"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasNext bool `json:"has_next"`
}

func newPage[T any](items []T, total int, p PageParams) page[T] {
	if items == nil {
		items = []T{}
	}
	return page[T]{
		Items:   items,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasNext: p.Offset+len(items) < total,
	}
}

// mapSlice converts domain values to views, never returning nil.
func mapSlice[T, V any](in []T, fn func(T) V) []V {
	out := make([]V, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}
