// Package errors provides structured error handling for the system.
//
// It defines a standard AppError type that carries a stable error code, a
// human-readable message, and an optional underlying cause. Components
// across the module construct errors through New/Wrap so that callers can
// branch on Code() instead of parsing message strings.
package errors

import (
	"errors"
	"fmt"
)

// Standard error codes shared across packages. Package-specific codes
// (e.g. pkg/messaging) live alongside their callers and follow the same
// pattern.
const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeNotFound        = "NOT_FOUND"
	CodeAlreadyExists   = "ALREADY_EXISTS"
	CodeInternal        = "INTERNAL"
	CodeUnavailable     = "UNAVAILABLE"
	CodeTimeout         = "TIMEOUT"
)

// AppError is the standard error type used throughout the module.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

// New creates an AppError with the given code, message, and optional cause.
func New(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// Wrap annotates err with a message, preserving it as the cause. If err is
// already an *AppError its code is retained; otherwise the wrapped error
// carries CodeInternal.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return &AppError{Code: ae.Code, Message: message + ": " + ae.Message, Cause: ae}
	}
	return &AppError{Code: CodeInternal, Message: message, Cause: err}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether err is an AppError with the given code.
func Is(err error, code string) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}
