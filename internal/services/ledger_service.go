package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"djassa/internal/amqp"
	"djassa/internal/cache"
	"djassa/internal/core"
	"djassa/internal/storage"
)

// Entity names used in events for records that are not exported.
const (
	entityProduct = "product"
	entityGoal    = "goal"
)

// EventPublisher is the subset of the AMQP client the services publish through.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error
	PublishDebtReminder(ctx context.Context, msg *amqp.DebtReminderMessage) error
}

// LedgerService orchestrates ledger mutations across SQLite, AMQP and the response cache.
type LedgerService struct {
	storage   *storage.SQLiteRepository
	publisher EventPublisher
	cache     cache.Cache[any]
}

func NewLedgerService(storage *storage.SQLiteRepository, publisher EventPublisher, responses cache.Cache[any]) *LedgerService {
	return &LedgerService{
		storage:   storage,
		publisher: publisher,
		cache:     responses,
	}
}

func (s *LedgerService) ListProducts(ctx context.Context, shopID string) ([]core.Product, error) {
	return s.storage.ListProducts(ctx, shopID)
}

func (s *LedgerService) CreateProduct(ctx context.Context, p core.Product, meta storage.AuditMeta) (core.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := p.Validate(); err != nil {
		return core.Product{}, err
	}
	p, err := s.storage.CreateProduct(ctx, p, meta)
	if err != nil {
		return core.Product{}, err
	}
	s.afterMutation(ctx, p.ShopID, entityProduct, p.ID, amqp.ActionCreate, meta)
	return p, nil
}

// AdjustStock adds delta (possibly negative) to a product's stock.
func (s *LedgerService) AdjustStock(ctx context.Context, shopID, productID string, delta int, meta storage.AuditMeta) (core.Product, error) {
	if delta == 0 {
		return core.Product{}, core.Invalid("adjustment", "l'ajustement ne peut pas être nul")
	}
	p, err := s.storage.AdjustStock(ctx, shopID, productID, delta, meta)
	if err != nil {
		return core.Product{}, err
	}
	s.afterMutation(ctx, shopID, entityProduct, productID, "adjust", meta)
	return p, nil
}

func (s *LedgerService) DeleteProduct(ctx context.Context, shopID, productID string, meta storage.AuditMeta) error {
	if err := s.storage.DeleteProduct(ctx, shopID, productID, meta); err != nil {
		return err
	}
	s.afterMutation(ctx, shopID, entityProduct, productID, amqp.ActionDelete, meta)
	return nil
}

// CreateSale records a sale and decrements stock in one transaction.
func (s *LedgerService) CreateSale(ctx context.Context, sale core.Sale, meta storage.AuditMeta) (core.Sale, error) {
	if err := sale.Validate(); err != nil {
		return core.Sale{}, err
	}
	sale, err := s.storage.CreateSale(ctx, sale, meta)
	if err != nil {
		return core.Sale{}, err
	}
	s.afterMutation(ctx, sale.ShopID, storage.KindSale, sale.ID, amqp.ActionCreate, meta)
	return sale, nil
}

func (s *LedgerService) ListSales(ctx context.Context, shopID string, limit, offset int) ([]core.Sale, int, error) {
	return s.storage.ListSales(ctx, shopID, limit, offset)
}

// DeleteSale soft-deletes a sale and returns its quantity to stock.
func (s *LedgerService) DeleteSale(ctx context.Context, shopID, saleID string, meta storage.AuditMeta) error {
	if err := s.storage.DeleteSale(ctx, shopID, saleID, meta); err != nil {
		return err
	}
	s.afterMutation(ctx, shopID, storage.KindSale, saleID, amqp.ActionDelete, meta)
	return nil
}

func (s *LedgerService) CreateExpense(ctx context.Context, e core.Expense, meta storage.AuditMeta) (core.Expense, error) {
	e.Category = strings.TrimSpace(e.Category)
	if e.Category == "" {
		e.Category = core.DefaultExpenseCat
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	e, err := s.storage.CreateExpense(ctx, e, meta)
	if err != nil {
		return core.Expense{}, err
	}
	s.afterMutation(ctx, e.ShopID, storage.KindExpense, e.ID, amqp.ActionCreate, meta)
	return e, nil
}

func (s *LedgerService) ListExpenses(ctx context.Context, shopID string, limit, offset int) ([]core.Expense, int, error) {
	return s.storage.ListExpenses(ctx, shopID, limit, offset)
}

func (s *LedgerService) DeleteExpense(ctx context.Context, shopID, id string, meta storage.AuditMeta) error {
	if err := s.storage.DeleteExpense(ctx, shopID, id, meta); err != nil {
		return err
	}
	s.afterMutation(ctx, shopID, storage.KindExpense, id, amqp.ActionDelete, meta)
	return nil
}

// FrequentExpenses returns the eight most used category and amount pairs.
func (s *LedgerService) FrequentExpenses(ctx context.Context, shopID string) ([]core.FrequentExpense, error) {
	return s.storage.TopFrequentExpenses(ctx, shopID, 8)
}

func (s *LedgerService) ExpenseCategories(ctx context.Context, shopID string) ([]core.ExpenseCategory, error) {
	return s.storage.ListExpenseCategories(ctx, shopID)
}

func (s *LedgerService) CreateExpenseCategory(ctx context.Context, shopID, name, icon string) (core.ExpenseCategory, error) {
	name = strings.TrimSpace(name)
	if n := len([]rune(name)); n < 2 || n > 50 {
		return core.ExpenseCategory{}, core.Invalid("name", "le nom de la catégorie doit contenir entre 2 et 50 caractères")
	}
	if icon == "" {
		icon = "📦"
	}
	c, err := s.storage.CreateExpenseCategory(ctx, shopID, name, core.Truncate(icon, 10))
	if err != nil {
		return core.ExpenseCategory{}, err
	}
	s.invalidate(shopID)
	return c, nil
}

func (s *LedgerService) CreateDebt(ctx context.Context, d core.Debt, meta storage.AuditMeta) (core.Debt, error) {
	d.CustomerName = strings.TrimSpace(d.CustomerName)
	if err := d.Validate(); err != nil {
		return core.Debt{}, err
	}
	d, err := s.storage.CreateDebt(ctx, d, meta)
	if err != nil {
		return core.Debt{}, err
	}
	s.afterMutation(ctx, d.ShopID, storage.KindDebt, d.ID, amqp.ActionCreate, meta)
	return d, nil
}

// ListDebts lists debts by status, open when status is empty.
func (s *LedgerService) ListDebts(ctx context.Context, shopID string, status core.DebtStatus) ([]core.Debt, error) {
	if status == "" {
		status = core.DebtOpen
	}
	if status != core.DebtOpen && status != core.DebtSettled {
		return nil, core.Invalid("status", "statut invalide (open, settled)")
	}
	return s.storage.ListDebts(ctx, shopID, status)
}

func (s *LedgerService) DeleteDebt(ctx context.Context, shopID, id string, meta storage.AuditMeta) error {
	if err := s.storage.DeleteDebt(ctx, shopID, id, meta); err != nil {
		return err
	}
	s.afterMutation(ctx, shopID, storage.KindDebt, id, amqp.ActionDelete, meta)
	return nil
}

// PayDebt applies a partial or full payment to a debt.
func (s *LedgerService) PayDebt(ctx context.Context, shopID, debtID string, amount int64, meta storage.AuditMeta) (core.DebtPayment, core.Debt, error) {
	if amount < 1 {
		return core.DebtPayment{}, core.Debt{}, core.Invalid("amount", "le montant du paiement doit être positif")
	}
	payment, debt, err := s.storage.PayDebt(ctx, shopID, debtID, amount, meta)
	if err != nil {
		return core.DebtPayment{}, core.Debt{}, err
	}
	s.afterMutation(ctx, shopID, storage.KindDebt, debtID, amqp.ActionPay, meta)
	return payment, debt, nil
}

func (s *LedgerService) CreateGoal(ctx context.Context, shop core.Shop, g core.Goal, meta storage.AuditMeta) (core.Goal, error) {
	if !shop.Features.Objectives {
		return core.Goal{}, fmt.Errorf("goals not enabled for plan %s: %w", shop.Plan, core.ErrQuotaExceeded)
	}
	g.ShopID = shop.ID
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}
	g, err := s.storage.CreateGoal(ctx, g, meta)
	if err != nil {
		return core.Goal{}, err
	}
	s.afterMutation(ctx, shop.ID, entityGoal, g.ID, amqp.ActionCreate, meta)
	return g, nil
}

func (s *LedgerService) ListGoals(ctx context.Context, shopID string) ([]core.Goal, error) {
	return s.storage.ListGoals(ctx, shopID)
}

// afterMutation drops the shop's cached responses and announces the change.
// Publishing is best effort: the record is already committed.
func (s *LedgerService) afterMutation(ctx context.Context, shopID, entity, id, action string, meta storage.AuditMeta) {
	s.invalidate(shopID)

	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping ledger event", "entity", entity, "id", id)
		return
	}
	msg := amqp.NewLedgerEventMessage(shopID, entity, id, action)
	if src, ok := meta.Extra["source"].(string); ok {
		msg.Source = src
	}
	if err := s.publisher.PublishLedgerEvent(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"shop_id", shopID,
			"entity", entity,
			"id", id,
			"action", action,
			"error", err)
	}
}

func (s *LedgerService) invalidate(shopID string) {
	if s.cache != nil {
		s.cache.DeletePrefix(cache.ShopPrefix(shopID))
	}
}

// Close closes both storage and AMQP connections
func (s *LedgerService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if c, ok := s.publisher.(interface{ Close() error }); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}

	return nil
}
