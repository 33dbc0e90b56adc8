package domain

import (
	"errors"
	"fmt"
)

// Error kinds for the seeding engine. Handlers map these to HTTP statuses;
// nothing in the engine retries on its own.
var (
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrDependency   = errors.New("dependency failure")
	ErrNotFound     = errors.New("not found")
)

// NewValidationError wraps ErrValidation with a formatted message.
// Rejected synchronously, before any state change.
func NewValidationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrValidation}, args...)...)
}

// NewConflictError wraps ErrConflict with a formatted message.
func NewConflictError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrConflict}, args...)...)
}

// NewInvalidStateError wraps ErrInvalidState with a formatted message.
func NewInvalidStateError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidState}, args...)...)
}

// NewDependencyError wraps ErrDependency around a collaborator error.
func NewDependencyError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrDependency, op, err)
}

// NewNotFoundError wraps ErrNotFound with a formatted message.
func NewNotFoundError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrNotFound}, args...)...)
}
