package http

import (
	"net/http"
	"strings"
	"time"

	"djassa/internal/core"
)

var debtMessages = entityMessages{NotFound: "Dette non trouvée"}

type createDebtRequest struct {
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	Amount        int64  `json:"amount"`
}

type payDebtRequest struct {
	Amount int64 `json:"amount"`
}

type paymentResponse struct {
	Payment paymentView `json:"payment"`
	Debt    debtView    `json:"debt"`
}

type createGoalRequest struct {
	Type         string `json:"type"`
	TargetAmount int64  `json:"target_amount"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
}

func (s *Server) handleListDebts(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	status := core.DebtStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	debts, err := s.ledger.ListDebts(r.Context(), shop.ID, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	now := s.now()
	writeJSON(w, http.StatusOK, mapSlice(debts, func(d core.Debt) debtView { return newDebtView(d, now) }))
}

func (s *Server) handleCreateDebt(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	var req createDebtRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.ledger.CreateDebt(r.Context(), core.Debt{
		ShopID:        shop.ID,
		CustomerName:  sanitizeInput(req.CustomerName),
		CustomerPhone: sanitizeInput(req.CustomerPhone),
		InitialAmount: req.Amount,
	}, s.auditMeta(r))
	if err != nil {
		writeEntityError(w, r, err, debtMessages)
		return
	}
	writeJSON(w, http.StatusCreated, newDebtView(d, s.now()))
}

func (s *Server) handleDeleteDebt(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	if err := s.ledger.DeleteDebt(r.Context(), shop.ID, r.PathValue("id"), s.auditMeta(r)); err != nil {
		writeEntityError(w, r, err, debtMessages)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Dette supprimée"})
}

func (s *Server) handlePayDebt(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	var req payDebtRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	payment, debt, err := s.ledger.PayDebt(r.Context(), shop.ID, r.PathValue("id"), req.Amount, s.auditMeta(r))
	if err != nil {
		writeEntityError(w, r, err, debtMessages)
		return
	}
	writeJSON(w, http.StatusCreated, paymentResponse{
		Payment: paymentView{ID: payment.ID, Amount: payment.Amount, PaidAt: payment.PaidAt},
		Debt:    newDebtView(debt, s.now()),
	})
}

// goalTypeAliases lets older clients send the French period names.
var goalTypeAliases = map[string]core.GoalType{
	"journalier":   core.GoalDaily,
	"hebdomadaire": core.GoalWeekly,
	"mensuel":      core.GoalMonthly,
}

func parseGoalType(s string) core.GoalType {
	s = strings.ToLower(strings.TrimSpace(s))
	if t, ok := goalTypeAliases[s]; ok {
		return t
	}
	return core.GoalType(s)
}

// parseDate accepts RFC 3339 timestamps or plain YYYY-MM-DD days.
func parseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := core.ParseDay(s); err == nil {
		return t, nil
	}
	return time.Time{}, core.Invalid(field, field+" doit être une date (AAAA-MM-JJ)")
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	goals, err := s.ledger.ListGoals(r.Context(), shop.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	now := s.now()
	writeJSON(w, http.StatusOK, mapSlice(goals, func(g core.Goal) goalView { return newGoalView(g, now) }))
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	var req createGoalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	g, err := s.ledger.CreateGoal(r.Context(), shop, core.Goal{
		Type:         parseGoalType(req.Type),
		TargetAmount: req.TargetAmount,
		StartDate:    start,
		EndDate:      end,
	}, s.auditMeta(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newGoalView(g, s.now()))
}
