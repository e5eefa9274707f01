package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. Callers test with errors.Is; implementations wrap them with
// fmt.Errorf("...: %w", err) to add context.
var (
	// ErrNotFound means a referenced recipient or donor organ does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDataError means a record holds values the engine cannot score. During a
	// matching pass it only ever surfaces as a candidate rejection.
	ErrDataError = errors.New("data error")
	// ErrPersistenceFailure means a write failed and nothing was committed.
	ErrPersistenceFailure = errors.New("persistence failure")
	// ErrInvalidInput means the request itself was malformed.
	ErrInvalidInput = errors.New("invalid input")
)

// EngineError represents a standardized error response
type EngineError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	CodeNotFound           = "NOT_FOUND"
	CodeDataError          = "DATA_ERROR"
	CodePersistenceFailure = "PERSISTENCE_FAILURE"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeRateLimit          = "RATE_LIMIT_EXCEEDED"
	CodeInternalServer     = "INTERNAL_SERVER_ERROR"
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrInvalidInput) match validation failures.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewEngineError creates a new EngineError with timestamp
func NewEngineError(code, message, details, requestID string) *EngineError {
	return &EngineError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// DataError wraps a ValidationError describing an unscoreable record field.
func DataError(field, message string, value interface{}) error {
	return fmt.Errorf("%w: %w", ErrDataError, &ValidationError{Field: field, Message: message, Value: value})
}

// CodeFor maps an error chain to its response code.
func CodeFor(err error) string {
	var engineErr *EngineError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &engineErr):
		return engineErr.Code
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrDataError):
		return CodeDataError
	case errors.Is(err, ErrPersistenceFailure):
		return CodePersistenceFailure
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	default:
		return CodeInternalServer
	}
}
