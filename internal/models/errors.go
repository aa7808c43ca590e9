package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrClosed            = errors.New("ticket group is closed")
	ErrInsufficientSeats = errors.New("insufficient seats")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrPersistence       = errors.New("persistence failure")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConcurrentUpdate  = errors.New("concurrent update")
)

// InsufficientSeatsError reports how many seats were left when a reservation
// could not be satisfied.
type InsufficientSeatsError struct {
	Available int
}

func (e *InsufficientSeatsError) Error() string {
	return fmt.Sprintf("insufficient seats: %d available", e.Available)
}

func (e *InsufficientSeatsError) Unwrap() error { return ErrInsufficientSeats }

// InvalidTransitionError carries the booking status that refused the event.
type InvalidTransitionError struct {
	Status string
	Event  string
}

func (e *InvalidTransitionError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("invalid status transition from %s", e.Status)
	}
	return fmt.Sprintf("cannot %s a booking in status %s", e.Event, e.Status)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// PersistenceError wraps an infrastructure failure. Callers may retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }

func NewPersistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// InvalidInput returns ErrInvalidInput annotated with a reason.
func InvalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistence) || errors.Is(err, ErrConcurrentUpdate)
}
