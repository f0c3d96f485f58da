package http

import (
	"net/http"

	"djassa/internal/core"
)

var (
	expenseMessages  = entityMessages{NotFound: "Dépense non trouvée"}
	categoryMessages = entityMessages{Conflict: "Cette catégorie existe déjà"}
)

type createExpenseRequest struct {
	Category    string `json:"category"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	params, err := ParsePageParams(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	expenses, total, err := s.ledger.ListExpenses(r.Context(), shop.ID, params.Limit, params.Offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPage(mapSlice(expenses, newExpenseView), total, params))
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	var req createExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.ledger.CreateExpense(r.Context(), core.Expense{
		ShopID:      shop.ID,
		Category:    sanitizeInput(req.Category),
		Amount:      req.Amount,
		Description: sanitizeInput(req.Description),
	}, s.auditMeta(r))
	if err != nil {
		writeEntityError(w, r, err, expenseMessages)
		return
	}
	writeJSON(w, http.StatusCreated, newExpenseView(e))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	if err := s.ledger.DeleteExpense(r.Context(), shop.ID, r.PathValue("id"), s.auditMeta(r)); err != nil {
		writeEntityError(w, r, err, expenseMessages)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Dépense supprimée"})
}

func (s *Server) handleFrequentExpenses(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	frequent, err := s.ledger.FrequentExpenses(r.Context(), shop.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(frequent, func(f core.FrequentExpense) frequentExpenseView {
		return frequentExpenseView{Category: f.Category, Amount: f.Amount, UsageCount: f.UsageCount}
	}))
}

func newCategoryView(c core.ExpenseCategory) categoryView {
	return categoryView{ID: c.ID, Name: c.Name, Icon: c.Icon, UsageCount: c.UsageCount}
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	categories, err := s.ledger.ExpenseCategories(r.Context(), shop.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(categories, newCategoryView))
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	var req struct {
		Name string `json:"name"`
		Icon string `json:"icon"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.ledger.CreateExpenseCategory(r.Context(), shop.ID, sanitizeInput(req.Name), sanitizeInput(req.Icon))
	if err != nil {
		writeEntityError(w, r, err, categoryMessages)
		return
	}
	writeJSON(w, http.StatusCreated, newCategoryView(c))
}
