// Package errors defines common error types used across the scanflow library.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed indicates that an operation was attempted on a closed resource
	ErrClosed = errors.New("resource is closed")

	// ErrQueueFull indicates that the wait queue was at capacity at enqueue time
	ErrQueueFull = errors.New("queue full")

	// ErrWaitTimeout indicates that a queued request waited past its deadline
	ErrWaitTimeout = errors.New("wait timed out")

	// ErrQueueCleared indicates that a queued request was flushed explicitly
	ErrQueueCleared = errors.New("queue cleared")

	// ErrInvalidConfiguration indicates invalid configuration parameters
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// IsDenial returns true if the error is one of the admission denial
// reasons. All denials surface to callers as an ungranted request; the
// reason only matters for observability.
func IsDenial(err error) bool {
	return errors.Is(err, ErrQueueFull) || errors.Is(err, ErrWaitTimeout) || errors.Is(err, ErrQueueCleared)
}

// IsRetryable returns true if the error indicates a condition that might
// be resolved by retrying the operation later
func IsRetryable(err error) bool {
	return errors.Is(err, ErrWaitTimeout) || errors.Is(err, ErrQueueFull)
}

// ValidationError describes a configuration parameter that failed validation.
type ValidationError struct {
	Module string
	Field  string
	Value  interface{}
	Reason string
	Hint   string
}

// NewValidationError creates a ValidationError for the given module and field.
func NewValidationError(module, field string, value interface{}, reason string) *ValidationError {
	return &ValidationError{
		Module: module,
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// WithHint attaches a hint describing how to fix the value. It returns
// the same instance for chaining.
func (e *ValidationError) WithHint(hint string) *ValidationError {
	e.Hint = hint
	return e
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s=%v (%s)", e.Module, e.Field, e.Value, e.Reason)
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

// Unwrap returns ErrInvalidConfiguration so callers can match with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfiguration
}

// IsValidationError returns true if the error is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// OperationError describes a failed operation with its module and cause.
type OperationError struct {
	Module    string
	Operation string
	Cause     error
	Context   string
}

// NewOperationError creates an OperationError wrapping the given cause.
func NewOperationError(module, operation string, cause error) *OperationError {
	return &OperationError{
		Module:    module,
		Operation: operation,
		Cause:     cause,
	}
}

// WithContext attaches additional context to the error. It returns the
// same instance for chaining.
func (e *OperationError) WithContext(context string) *OperationError {
	e.Context = context
	return e
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	msg := fmt.Sprintf("%s.%s failed: %v", e.Module, e.Operation, e.Cause)
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *OperationError) Unwrap() error {
	return e.Cause
}
