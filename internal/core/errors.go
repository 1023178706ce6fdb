// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Store errors
	ErrNotFound    = &Error{Code: "NOT_FOUND", Message: "document not found"}
	ErrStoreFailed = &Error{Code: "STORE_FAILED", Message: "document store operation failed"}

	// Provider errors. Rate-limit denials reported by the provider are a
	// distinct code so callers can tell them apart from transient failures.
	ErrProviderFailed      = &Error{Code: "PROVIDER_FAILED", Message: "provider request failed"}
	ErrProviderRateLimited = &Error{Code: "PROVIDER_RATE_LIMITED", Message: "provider reported rate limit"}
	ErrNoData              = &Error{Code: "NO_DATA", Message: "no data available"}

	// Rate budget errors
	ErrBudgetExhausted = &Error{Code: "BUDGET_EXHAUSTED", Message: "daily call budget exhausted"}

	// Strategy / risk errors
	ErrNoPrice        = &Error{Code: "NO_PRICE", Message: "no market price available"}
	ErrInvalidSignal  = &Error{Code: "INVALID_SIGNAL", Message: "trade signal invalid"}
	ErrSignalFiltered = &Error{Code: "SIGNAL_FILTERED", Message: "recommendation filtered out"}

	// Portfolio errors
	ErrTradeFailed = &Error{Code: "TRADE_FAILED", Message: "trade execution failed"}
	ErrNoPosition  = &Error{Code: "NO_POSITION", Message: "no active position for symbol"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
