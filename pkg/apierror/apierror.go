// Package apierror provides standardized API error handling.
// These error types can be used across all API handlers for consistent error responses.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
)

// Code represents an error code.
type Code string

// Standard error codes.
const (
	CodeBadRequest       Code = "BAD_REQUEST"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeForbidden        Code = "FORBIDDEN"
	CodeNotFound         Code = "NOT_FOUND"
	CodeConflict         Code = "CONFLICT"
	CodeValidationFailed Code = "VALIDATION_FAILED"
	CodeInternalError    Code = "INTERNAL_ERROR"
)

// Error represents a standardized API error.
type Error struct {
	// HTTP status code
	Status int `json:"-"`

	// Machine-readable error code
	Code Code `json:"code"`

	// Human-readable error message
	Message string `json:"message"`

	// Additional error details (optional)
	Details any `json:"details,omitempty"`

	// Internal error (not exposed to client)
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Response represents the error response structure.
type Response struct {
	Error   string `json:"error"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ToResponse converts the error to a response structure.
func (e *Error) ToResponse() Response {
	return Response{
		Error:   string(e.Code),
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// WriteJSON writes the error as JSON to the response writer.
func (e *Error) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(e.ToResponse())
}

// New creates a new API error.
func New(status int, code Code, message string) *Error {
	return &Error{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

// WithDetails adds details to the error.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// WithError adds an internal error.
func (e *Error) WithError(err error) *Error {
	e.Err = err
	return e
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, CodeBadRequest, message)
}

// Unauthorized creates a 401 Unauthorized error.
func Unauthorized(message string) *Error {
	if message == "" {
		message = "Authentication required"
	}
	return New(http.StatusUnauthorized, CodeUnauthorized, message)
}

// NotFound creates a 404 Not Found error.
func NotFound(resource string) *Error {
	message := "Resource not found"
	if resource != "" {
		message = fmt.Sprintf("%s not found", resource)
	}
	return New(http.StatusNotFound, CodeNotFound, message)
}

// Conflict creates a 409 Conflict error.
func Conflict(message string) *Error {
	return New(http.StatusConflict, CodeConflict, message)
}

// ValidationFailed creates a 422 Unprocessable Entity error.
func ValidationFailed(message string, details any) *Error {
	return &Error{
		Status:  http.StatusUnprocessableEntity,
		Code:    CodeValidationFailed,
		Message: message,
		Details: details,
	}
}

// InternalError creates a 500 Internal Server Error.
func InternalError(err error) *Error {
	return &Error{
		Status:  http.StatusInternalServerError,
		Code:    CodeInternalError,
		Message: "An internal error occurred",
		Err:     err,
	}
}

// FromDomainError maps a domain error to an API error.
func FromDomainError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case shared.IsNotFound(err):
		return NotFound("").WithError(err)
	case shared.IsConflict(err):
		return Conflict(err.Error()).WithError(err)
	case shared.IsValidation(err), errors.Is(err, shared.ErrInvalidInput):
		return BadRequest(err.Error()).WithError(err)
	case errors.Is(err, shared.ErrUnauthorized):
		return Unauthorized("").WithError(err)
	default:
		return InternalError(err)
	}
}
