package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// ErrIdempotencyConflict means an idempotency key was reused for a
	// different logical request. It is never retried automatically.
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different request")
)

// ValidationError is a client input error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// TransientConflictError is returned when another request holds the claim and
// no resource became visible within the wait budget. Clients retry with the
// same key.
type TransientConflictError struct {
	IdempotencyKey string
	AttemptID      string
}

func (e *TransientConflictError) Error() string {
	return fmt.Sprintf("payment attempt %s is still in progress", e.AttemptID)
}

// GatewayError wraps a payment provider failure. UserFacing is true when the
// provider rejected the request itself (bad card, invalid parameters).
type GatewayError struct {
	Op         string
	UserFacing bool
	Err        error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// SecurityMismatchError marks a webhook whose connected account does not
// belong to the organization it names.
type SecurityMismatchError struct {
	EventID         string
	OrganizationID  string
	ExpectedAccount string
	EventAccount    string
}

func (e *SecurityMismatchError) Error() string {
	return fmt.Sprintf("event %s: connected account %q does not match organization %s",
		e.EventID, e.EventAccount, e.OrganizationID)
}
