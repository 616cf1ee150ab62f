package helper

import (
	"errors"
	"fmt"
)

// Sentinel errors for terminal conditions that are meant to reach callers
// unmodified. Everything else is wrapped with the failing operation.
var (
	ErrNotFound          = errors.New("not found")
	ErrAccessDenied      = errors.New("access denied")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Error wraps an underlying error with the operation that produced it.
type Error struct {
	Operation string
	Err       error
}

// NewError creates a new Error for the given operation.
func NewError(operation string, err error) *Error {
	return &Error{
		Operation: operation,
		Err:       err,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("error in %v: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}
