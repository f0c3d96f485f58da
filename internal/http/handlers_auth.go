package http

import (
	"errors"
	"log/slog"
	"net/http"

	"djassa/internal/core"
)

type signupRequest struct {
	ShopName   string `json:"shop_name"`
	Phone      string `json:"phone"`
	PIN        string `json:"pin"`
	PINConfirm string `json:"pin_confirm"`
}

type loginRequest struct {
	Phone string `json:"phone"`
	PIN   string `json:"pin"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.PIN != req.PINConfirm {
		BadRequestError("Les codes PIN ne correspondent pas").Write(w)
		return
	}

	session, err := s.auth.Signup(r.Context(), sanitizeInput(req.ShopName), sanitizeInput(req.Phone), req.PIN, s.clientInfo(r))
	if err != nil {
		writeEntityError(w, r, err, entityMessages{Conflict: "Ce numéro de téléphone est déjà enregistré"})
		return
	}
	writeJSON(w, http.StatusCreated, newSessionView(session))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	session, err := s.auth.Login(r.Context(), sanitizeInput(req.Phone), req.PIN, s.clientInfo(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(session))
}

func (s *Server) handleVerifyPIN(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	var req struct {
		PIN string `json:"pin"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	err := s.auth.VerifyPIN(r.Context(), shop, req.PIN, s.clientIP(r))
	if errors.Is(err, core.ErrInvalidCredentials) {
		UnauthorizedError("Code PIN incorrect").Write(w)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	if err := s.auth.Logout(r.Context(), shop.ID, bearerToken(r), s.clientIP(r)); err != nil {
		writeError(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "Shop logged out", "shop_id", shop.ID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Déconnexion réussie"})
}
