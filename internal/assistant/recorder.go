package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"djassa/internal/core"
	"djassa/internal/middleware/ratelimit"
	"djassa/internal/storage"
)

// Ledger is the subset of ledger operations automatic writes go through.
type Ledger interface {
	CreateSale(ctx context.Context, sale core.Sale, meta storage.AuditMeta) (core.Sale, error)
	CreateExpense(ctx context.Context, e core.Expense, meta storage.AuditMeta) (core.Expense, error)
	CreateDebt(ctx context.Context, d core.Debt, meta storage.AuditMeta) (core.Debt, error)
	AdjustStock(ctx context.Context, shopID, productID string, delta int, meta storage.AuditMeta) (core.Product, error)
}

// ProductFinder resolves a spoken product name to a catalogue entry.
type ProductFinder interface {
	FindProductByName(ctx context.Context, shopID, fragment string) (core.Product, error)
}

// TransactionRecorded describes a write made on the merchant's behalf.
type TransactionRecorded struct {
	Type    IntentType     `json:"type"`
	Details map[string]any `json:"details"`
	Success bool           `json:"success"`
	Message string         `json:"message"`
}

// Outcome is either a recorded transaction or feedback explaining why nothing was written.
// Both are empty when the intent did not qualify.
type Outcome struct {
	Recorded *TransactionRecorded
	Feedback string
}

// AutoRecorder persists confident intents, bounded per shop by a fixed-window limiter.
type AutoRecorder struct {
	ledger    Ledger
	products  ProductFinder
	limiter   *ratelimit.Limiter
	threshold float64
}

func NewAutoRecorder(ledger Ledger, products ProductFinder, limiter *ratelimit.Limiter, threshold float64) *AutoRecorder {
	if threshold <= 0 {
		threshold = 0.8
	}
	return &AutoRecorder{ledger: ledger, products: products, limiter: limiter, threshold: threshold}
}

// HasCapacity reports whether the shop may make another automatic write now.
// It saves a model call when the window is spent; Record still takes the slot itself.
func (r *AutoRecorder) HasCapacity(shopID string) bool {
	return r.limiter == nil || r.limiter.Remaining(shopID) > 0
}

func tooManyFeedback(lang Language) string {
	return lang.pick(
		"Trop de transactions automatiques récentes. Utilisez les formulaires pour continuer.",
		"Too many recent automatic transactions. Please use the forms to continue.")
}

// Record writes the intent when it is confident and complete enough.
// The limiter slot is taken before writing and handed back when nothing was written,
// so concurrent messages cannot overrun the window.
func (r *AutoRecorder) Record(ctx context.Context, shop core.Shop, intent Intent, lang Language, ip string) Outcome {
	if !intent.HasTransaction || intent.Confidence < r.threshold {
		return Outcome{}
	}
	var write func(context.Context, core.Shop, Details, Language, storage.AuditMeta) Outcome
	switch intent.Type {
	case IntentSale:
		write = r.recordSale
	case IntentExpense:
		write = r.recordExpense
	case IntentDebt:
		write = r.recordDebt
	case IntentStock:
		write = r.recordStock
	default:
		return Outcome{}
	}

	release := func() {}
	if r.limiter != nil {
		var ok bool
		if release, ok = r.limiter.Reserve(shop.ID); !ok {
			return Outcome{Feedback: tooManyFeedback(lang)}
		}
	}

	meta := storage.AuditMeta{IP: ip, Action: "create_auto", Extra: map[string]any{"source": "assistant"}}
	out := write(ctx, shop, intent.Details, lang, meta)
	if out.Recorded == nil {
		release()
		return out
	}

	slog.InfoContext(ctx, "Assistant recorded transaction",
		"shop_id", shop.ID,
		"type", out.Recorded.Type,
		"confidence", intent.Confidence)
	return out
}

func (r *AutoRecorder) findProduct(ctx context.Context, shopID, name string, lang Language) (core.Product, string, error) {
	p, err := r.products.FindProductByName(ctx, shopID, name)
	if errors.Is(err, core.ErrNotFound) {
		return core.Product{}, lang.pick(
			fmt.Sprintf("Produit '%s' non trouvé. Ajoutez-le dans le stock d'abord.", name),
			fmt.Sprintf("Product '%s' not found. Add it to stock first.", name)), nil
	}
	return p, "", err
}

func (r *AutoRecorder) recordSale(ctx context.Context, shop core.Shop, d Details, lang Language, meta storage.AuditMeta) Outcome {
	if utf8.RuneCountInString(d.ProductName) < 2 {
		return Outcome{Feedback: lang.pick("Précisez le produit (ex: 'vendu 3 savons').", "Specify the product (e.g., 'sold 3 soaps').")}
	}
	if d.Quantity < 1 {
		return Outcome{Feedback: lang.pick("Précisez la quantité (ex: '2 sacs de riz').", "Specify the quantity (e.g., '2 bags of rice').")}
	}

	p, feedback, err := r.findProduct(ctx, shop.ID, d.ProductName, lang)
	if feedback != "" || err != nil {
		return r.failed(ctx, shop.ID, IntentSale, feedback, err)
	}
	if p.Stock < d.Quantity {
		return Outcome{Feedback: lang.pick(
			fmt.Sprintf("Stock insuffisant pour %s (%d disponible). Ajoutez du stock d'abord.", p.Name, p.Stock),
			fmt.Sprintf("Insufficient stock for %s (%d available). Add stock first.", p.Name, p.Stock))}
	}

	sale, err := r.ledger.CreateSale(ctx, core.Sale{ShopID: shop.ID, ProductID: p.ID, Quantity: d.Quantity}, meta)
	if errors.Is(err, core.ErrInsufficientStock) {
		return Outcome{Feedback: lang.pick(
			fmt.Sprintf("Stock insuffisant pour %s. Ajoutez du stock d'abord.", p.Name),
			fmt.Sprintf("Insufficient stock for %s. Add stock first.", p.Name))}
	}
	if err != nil {
		return r.failed(ctx, shop.ID, IntentSale, "", err)
	}

	msg := lang.pick(
		fmt.Sprintf("Vente enregistrée: %dx %s = %s", sale.Quantity, sale.ProductName, core.FormatFCFA(sale.Total)),
		fmt.Sprintf("Sale recorded: %dx %s = %s", sale.Quantity, sale.ProductName, core.FormatFCFA(sale.Total)))
	return Outcome{Recorded: &TransactionRecorded{
		Type:    IntentSale,
		Details: map[string]any{"product": sale.ProductName, "quantity": sale.Quantity, "amount": sale.Total, "id": sale.ID},
		Success: true,
		Message: msg,
	}}
}

func (r *AutoRecorder) recordExpense(ctx context.Context, shop core.Shop, d Details, lang Language, meta storage.AuditMeta) Outcome {
	if d.TotalAmount < core.MinExpenseAmount {
		return Outcome{Feedback: lang.pick("Précisez le montant de la dépense (minimum 100 FCFA).", "Specify the expense amount (minimum 100 FCFA).")}
	}
	category := d.Category
	if category == "" {
		category = core.DefaultExpenseCat
	}
	if utf8.RuneCountInString(category) < 2 {
		return Outcome{Feedback: lang.pick("Précisez la catégorie de la dépense.", "Specify the expense category.")}
	}

	e, err := r.ledger.CreateExpense(ctx, core.Expense{
		ShopID:      shop.ID,
		Category:    core.Truncate(category, 50),
		Amount:      d.TotalAmount,
		Description: core.Truncate(d.Description, core.MaxDescriptionLength),
	}, meta)
	if err != nil {
		return r.failed(ctx, shop.ID, IntentExpense, "", err)
	}

	msg := lang.pick(
		fmt.Sprintf("Dépense enregistrée: %s (%s)", core.FormatFCFA(e.Amount), e.Category),
		fmt.Sprintf("Expense recorded: %s (%s)", core.FormatFCFA(e.Amount), e.Category))
	return Outcome{Recorded: &TransactionRecorded{
		Type:    IntentExpense,
		Details: map[string]any{"category": e.Category, "amount": e.Amount, "id": e.ID},
		Success: true,
		Message: msg,
	}}
}

func (r *AutoRecorder) recordDebt(ctx context.Context, shop core.Shop, d Details, lang Language, meta storage.AuditMeta) Outcome {
	if utf8.RuneCountInString(d.CustomerName) < 2 {
		return Outcome{Feedback: lang.pick("Précisez le nom du client.", "Specify the client's name.")}
	}
	if d.TotalAmount < core.MinDebtAmount {
		return Outcome{Feedback: lang.pick("Précisez le montant de la dette (minimum 500 FCFA).", "Specify the debt amount (minimum 500 FCFA).")}
	}

	debt, err := r.ledger.CreateDebt(ctx, core.Debt{
		ShopID:        shop.ID,
		CustomerName:  core.Truncate(d.CustomerName, core.MaxCustomerName),
		InitialAmount: d.TotalAmount,
	}, meta)
	if err != nil {
		return r.failed(ctx, shop.ID, IntentDebt, "", err)
	}

	msg := lang.pick(
		fmt.Sprintf("Dette enregistrée: %s doit %s", debt.CustomerName, core.FormatFCFA(debt.InitialAmount)),
		fmt.Sprintf("Debt recorded: %s owes %s", debt.CustomerName, core.FormatFCFA(debt.InitialAmount)))
	return Outcome{Recorded: &TransactionRecorded{
		Type:    IntentDebt,
		Details: map[string]any{"client": debt.CustomerName, "amount": debt.InitialAmount, "id": debt.ID},
		Success: true,
		Message: msg,
	}}
}

func (r *AutoRecorder) recordStock(ctx context.Context, shop core.Shop, d Details, lang Language, meta storage.AuditMeta) Outcome {
	if utf8.RuneCountInString(d.ProductName) < 2 {
		return Outcome{Feedback: lang.pick("Précisez le produit (ex: 'reçu 10 savons').", "Specify the product (e.g., 'received 10 soaps').")}
	}
	if d.Quantity < 1 {
		return Outcome{Feedback: lang.pick("Précisez la quantité (ex: '2 sacs de riz').", "Specify the quantity (e.g., '2 bags of rice').")}
	}

	p, feedback, err := r.findProduct(ctx, shop.ID, d.ProductName, lang)
	if feedback != "" || err != nil {
		return r.failed(ctx, shop.ID, IntentStock, feedback, err)
	}

	p, err = r.ledger.AdjustStock(ctx, shop.ID, p.ID, d.Quantity, meta)
	if err != nil {
		return r.failed(ctx, shop.ID, IntentStock, "", err)
	}

	msg := lang.pick(
		fmt.Sprintf("Stock mis à jour: +%d %s (%d en stock)", d.Quantity, p.Name, p.Stock),
		fmt.Sprintf("Stock updated: +%d %s (%d in stock)", d.Quantity, p.Name, p.Stock))
	return Outcome{Recorded: &TransactionRecorded{
		Type:    IntentStock,
		Details: map[string]any{"product": p.Name, "quantity": d.Quantity, "stock": p.Stock, "id": p.ID},
		Success: true,
		Message: msg,
	}}
}

// failed logs unexpected errors. Validation errors surface as feedback.
func (r *AutoRecorder) failed(ctx context.Context, shopID string, typ IntentType, feedback string, err error) Outcome {
	if feedback != "" {
		return Outcome{Feedback: feedback}
	}
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		return Outcome{Feedback: verr.Message}
	}
	slog.ErrorContext(ctx, "Assistant write failed", "shop_id", shopID, "type", typ, "error", err)
	return Outcome{}
}
