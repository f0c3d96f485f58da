// Package http provides the JSON API server and its handlers.
//
// This file implements the builder used by every handler to write a JSON
// response and the mapping from domain errors to HTTP statuses.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"djassa/internal/core"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	payload    any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the value encoded as the response body.
func (b *JSONResponseBuilder) JSON(v any) *JSONResponseBuilder {
	b.payload = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.payload == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if err := json.NewEncoder(w).Encode(b.payload); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates a standard {"error": message} response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).JSON(errorBody{Error: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// UnauthorizedError creates a 401 response.
func UnauthorizedError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).JSON(v).Write(w)
}

// entityMessages overrides the generic 404 and 409 messages for one kind of record.
type entityMessages struct {
	NotFound string
	Conflict string
}

// writeError maps err to a status and a user-facing French message.
// Unexpected errors are logged and answered with a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeEntityError(w, r, err, entityMessages{})
}

func writeEntityError(w http.ResponseWriter, r *http.Request, err error, msgs entityMessages) {
	status, message := errorStatus(err)
	switch {
	case status == http.StatusNotFound && msgs.NotFound != "":
		message = msgs.NotFound
	case status == http.StatusConflict && msgs.Conflict != "":
		message = msgs.Conflict
	case status >= http.StatusInternalServerError:
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
	}
	ErrorResponse(status, message).Write(w)
}

func errorStatus(err error) (int, string) {
	var (
		verr   *core.ValidationError
		quota  *core.QuotaError
		locked *core.LockedError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Message
	case errors.As(err, &quota):
		return http.StatusForbidden, quota.Message
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "Ressource introuvable"
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, "Cette ressource existe déjà"
	case errors.Is(err, core.ErrInsufficientStock):
		return http.StatusBadRequest, "Stock insuffisant"
	case errors.Is(err, core.ErrNegativeStock):
		return http.StatusBadRequest, "Le stock ne peut pas devenir négatif"
	case errors.Is(err, core.ErrOverpayment):
		return http.StatusBadRequest, "Montant supérieur à la dette restante"
	case errors.Is(err, core.ErrDebtSettled):
		return http.StatusBadRequest, "Cette dette est déjà soldée"
	case errors.Is(err, core.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Identifiants incorrects"
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized, "Session invalide ou expirée"
	case errors.As(err, &locked):
		return http.StatusLocked, fmt.Sprintf("Compte bloqué. Réessayez dans %d minutes", locked.Minutes)
	case errors.Is(err, core.ErrLocked):
		return http.StatusLocked, "Compte temporairement bloqué"
	case errors.Is(err, core.ErrQuotaExceeded):
		return http.StatusForbidden, "Fonctionnalité non disponible pour votre plan"
	case errors.Is(err, core.ErrRateLimited):
		return http.StatusTooManyRequests, "Trop de requêtes. Réessayez plus tard."
	}
	return http.StatusInternalServerError, "Erreur interne du serveur"
}
