package core

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DebtOpen    DebtStatus = "open"
	DebtSettled DebtStatus = "settled"

	GoalDaily   GoalType = "daily"
	GoalWeekly  GoalType = "weekly"
	GoalMonthly GoalType = "monthly"

	PaymentCash PaymentMode = "cash"
)

// Business thresholds, in FCFA unless stated otherwise.
const (
	MinUnitPrice         int64 = 100
	MinExpenseAmount     int64 = 100
	MinDebtAmount        int64 = 500
	MinGoalTarget        int64 = 10000
	DefaultAlertLevel          = 5
	MaxDescriptionLength       = 500
	MaxCustomerName            = 100
	CriticalDebtAge            = 15 // days
	DefaultExpenseCat          = "Autre"
)

var phonePattern = regexp.MustCompile(`^0[0-9]{8,9}$`)

type (
	DebtStatus  string
	GoalType    string
	PaymentMode string

	Shop struct {
		ID             string
		Name           string
		Phone          string
		PINHash        string
		FailedAttempts int
		LockedUntil    time.Time
		Plan           Plan
		Features       Features
		LastLoginAt    time.Time
		LastLoginIP    string
		Active         bool
		CreatedAt      time.Time
	}

	Product struct {
		ID             string
		ShopID         string
		Name           string
		UnitPrice      int64
		Stock          int
		AlertThreshold int
		Category       string
		Barcode        string
		CreatedAt      time.Time
	}

	Sale struct {
		ID          string
		ShopID      string
		ProductID   string
		ProductName string
		Quantity    int
		UnitPrice   int64
		Total       int64
		PaymentMode PaymentMode
		SoldAt      time.Time
	}

	Expense struct {
		ID          string
		ShopID      string
		Category    string
		Amount      int64
		Description string
		SpentAt     time.Time
	}

	FrequentExpense struct {
		Category   string
		Amount     int64
		UsageCount int
	}

	ExpenseCategory struct {
		ID         string
		Name       string
		Icon       string
		UsageCount int
	}

	Debt struct {
		ID              string
		ShopID          string
		CustomerName    string
		CustomerPhone   string
		InitialAmount   int64
		RemainingAmount int64
		Status          DebtStatus
		RemindersSent   int
		LastReminderAt  time.Time
		CreatedAt       time.Time
	}

	DebtPayment struct {
		ID     string
		DebtID string
		Amount int64
		PaidAt time.Time
	}

	Goal struct {
		ID           string
		ShopID       string
		Type         GoalType
		TargetAmount int64
		StartDate    time.Time
		EndDate      time.Time
	}

	// LedgerEntry is the flattened, export-friendly view of a sale, expense or debt.
	LedgerEntry struct {
		ShopID   string
		ShopName string
		Kind     string
		Label    string
		Quantity int
		Amount   int64
		Date     time.Time
		Ref      string
	}
)

// IsLow reports whether the product reached its alert threshold.
func (p Product) IsLow() bool {
	return p.Stock <= p.AlertThreshold
}

func (p Product) Validate() error {
	name := strings.TrimSpace(p.Name)
	if n := utf8.RuneCountInString(name); n < 2 || n > 100 {
		return Invalid("name", "le nom du produit doit contenir entre 2 et 100 caractères")
	}
	if p.UnitPrice < MinUnitPrice {
		return Invalid("unit_price", "le prix unitaire doit être d'au moins 100 FCFA")
	}
	if p.Stock < 0 {
		return Invalid("stock", "le stock ne peut pas être négatif")
	}
	if p.AlertThreshold < 0 {
		return Invalid("alert_threshold", "le seuil d'alerte ne peut pas être négatif")
	}
	return nil
}

func (s Sale) Validate() error {
	if strings.TrimSpace(s.ProductID) == "" {
		return Invalid("product_id", "produit requis")
	}
	if s.Quantity < 1 {
		return Invalid("quantity", "la quantité doit être d'au moins 1")
	}
	return nil
}

func (e Expense) Validate() error {
	if n := utf8.RuneCountInString(strings.TrimSpace(e.Category)); n < 2 || n > 50 {
		return Invalid("category", "la catégorie doit contenir entre 2 et 50 caractères")
	}
	if e.Amount < MinExpenseAmount {
		return Invalid("amount", "le montant doit être d'au moins 100 FCFA")
	}
	if utf8.RuneCountInString(e.Description) > MaxDescriptionLength {
		return Invalid("description", "la description ne peut pas dépasser 500 caractères")
	}
	return nil
}

// FrequentBucket rounds an expense amount down to the nearest 500 FCFA, with 500 as floor.
func FrequentBucket(amount int64) int64 {
	b := (amount / 500) * 500
	if b < 500 {
		return 500
	}
	return b
}

func (d Debt) Validate() error {
	if n := utf8.RuneCountInString(strings.TrimSpace(d.CustomerName)); n < 2 || n > MaxCustomerName {
		return Invalid("customer_name", "le nom du client doit contenir entre 2 et 100 caractères")
	}
	if d.InitialAmount < MinDebtAmount {
		return Invalid("initial_amount", "le montant doit être d'au moins 500 FCFA")
	}
	return nil
}

// AgeDays returns the number of whole days since the debt was created.
func (d Debt) AgeDays(now time.Time) int {
	if d.CreatedAt.IsZero() || now.Before(d.CreatedAt) {
		return 0
	}
	return int(now.Sub(d.CreatedAt).Hours() / 24)
}

// IsCritical reports whether an open debt has been outstanding for more than CriticalDebtAge days.
func (d Debt) IsCritical(now time.Time) bool {
	return d.Status == DebtOpen && !d.CreatedAt.After(now.AddDate(0, 0, -CriticalDebtAge))
}

// ApplyPayment returns the debt after paying amount, or an error if it would overpay.
func (d Debt) ApplyPayment(amount int64) (Debt, error) {
	if amount < 1 {
		return d, Invalid("amount", "le montant du paiement doit être positif")
	}
	if d.Status == DebtSettled {
		return d, ErrDebtSettled
	}
	if amount > d.RemainingAmount {
		return d, ErrOverpayment
	}
	d.RemainingAmount -= amount
	if d.RemainingAmount == 0 {
		d.Status = DebtSettled
	}
	return d, nil
}

func (t GoalType) IsValid() bool {
	switch t {
	case GoalDaily, GoalWeekly, GoalMonthly:
		return true
	}
	return false
}

func (g Goal) Validate() error {
	if !g.Type.IsValid() {
		return Invalid("type", "type d'objectif invalide (daily, weekly, monthly)")
	}
	if g.TargetAmount < MinGoalTarget {
		return Invalid("target_amount", "l'objectif doit être d'au moins 10 000 FCFA")
	}
	if g.StartDate.IsZero() || g.EndDate.IsZero() {
		return Invalid("dates", "dates de début et de fin requises")
	}
	if !g.EndDate.After(g.StartDate) {
		return Invalid("end_date", "la date de fin doit être après la date de début")
	}
	return nil
}

// IsActiveAt reports whether now falls within the goal period.
func (g Goal) IsActiveAt(now time.Time) bool {
	return !now.Before(g.StartDate) && !now.After(g.EndDate)
}

func ValidatePhone(phone string) error {
	if !phonePattern.MatchString(phone) {
		return Invalid("phone", "numéro de téléphone invalide")
	}
	return nil
}

func ValidatePIN(pin string) error {
	if len(pin) != 4 {
		return Invalid("pin", "le code PIN doit contenir 4 chiffres")
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return Invalid("pin", "le code PIN doit contenir 4 chiffres")
		}
	}
	return nil
}

func ValidateShopName(name string) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(name)); n < 3 || n > 100 {
		return Invalid("shop_name", "le nom de la boutique doit contenir entre 3 et 100 caractères")
	}
	return nil
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Validate checks the fields an export row cannot do without.
func (e LedgerEntry) Validate() error {
	if e.Kind == "" {
		return Invalid("kind", "type d'écriture requis")
	}
	if e.Ref == "" {
		return Invalid("ref", "référence requise")
	}
	if e.Date.IsZero() {
		return Invalid("date", "date requise")
	}
	if e.Amount < 0 {
		return Invalid("amount", "le montant ne peut pas être négatif")
	}
	return nil
}
