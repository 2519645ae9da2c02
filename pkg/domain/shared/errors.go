package shared

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the domain. Repositories and entities wrap
// these so callers can classify failures without string matching.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation error")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
)

// DomainError pairs a stable machine-readable code with a human message
// and (usually) one of the sentinel errors above. The ledger-specific
// codes name the concurrency outcomes of the task state machine:
// CLAIM_CONFLICT when another worker wins the claim race, CLAIM_LOST when
// a heartbeat arrives for a task this worker no longer owns,
// INVALID_TRANSITION when a status change breaks the machine's ordering.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a DomainError wrapping err.
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err wraps ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation reports whether err wraps ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
