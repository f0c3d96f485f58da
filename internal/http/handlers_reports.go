package http

import (
	"net/http"

	"djassa/internal/core"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	dash, err := s.reports.Dashboard(r.Context(), shop.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (s *Server) handleNetProfit(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	profit, err := s.reports.NetProfit(r.Context(), shop.ID, r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profit)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	q := r.URL.Query()
	report, err := s.reports.Report(r.Context(), shop.ID, r.PathValue("type"), q.Get("period"), q.Get("start"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
