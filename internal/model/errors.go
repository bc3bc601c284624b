package model

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the engine. Callers match with errors.Is.
var (
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates an unknown item, customer or order.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientStock indicates the requested quantity exceeds what is available.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrAlreadyCommitted indicates a duplicate finalize of a committed order.
	ErrAlreadyCommitted = errors.New("order already committed")

	// ErrBackendUnavailable indicates a backing-store or language-model failure.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrBusy indicates the customer is already being served and the lock wait timed out.
	ErrBusy = errors.New("customer busy")
)

// StockError reports an insufficient-stock rejection.
type StockError struct {
	Item      string
	Requested int
	Available int
}

// Error implements the error interface.
func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.Item, e.Requested, e.Available)
}

// Is matches ErrInsufficientStock.
func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// BackendError wraps a failed call to an external collaborator.
type BackendError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("backend unavailable: %s: %v", e.Op, e.Err)
}

// Is matches ErrBackendUnavailable.
func (e *BackendError) Is(target error) bool {
	return target == ErrBackendUnavailable
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// Backend wraps err as a BackendError unless it already is one, or is a
// domain error that should pass through untouched.
func Backend(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrBackendUnavailable) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrValidation) || errors.Is(err, ErrInsufficientStock) {
		return err
	}
	return &BackendError{Op: op, Err: err}
}

// Validationf builds a validation error.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf builds a not-found error.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
