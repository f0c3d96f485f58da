package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrNegativeStock      = errors.New("stock cannot become negative")
	ErrOverpayment        = errors.New("payment exceeds remaining debt")
	ErrDebtSettled        = errors.New("debt already settled")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrLocked             = errors.New("account locked")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrRateLimited        = errors.New("rate limited")
)

// ValidationError carries a user-facing message for a rejected field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// LockedError reports until when an account stays locked.
type LockedError struct {
	Minutes int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked for %d more minutes", e.Minutes)
}

func (e *LockedError) Unwrap() error { return ErrLocked }

// QuotaError carries a user-facing message for an exhausted plan quota.
type QuotaError struct {
	Message string
}

func (e *QuotaError) Error() string { return e.Message }

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

func QuotaExhausted(message string) error {
	return &QuotaError{Message: message}
}
