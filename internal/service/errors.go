package service

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by the scheduling core matches one of
// these via errors.Is; transports map categories to status codes.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrClassFull          = errors.New("class is full")
	ErrSchedulingConflict = errors.New("scheduling conflict")
	ErrUnauthorized       = errors.New("not allowed")
	ErrValidation         = errors.New("validation failed")
	ErrClassHasBookings   = errors.New("class has active bookings")
)

var (
	ErrClassNotFound   = fmt.Errorf("class %w", ErrNotFound)
	ErrBookingNotFound = fmt.Errorf("booking %w", ErrNotFound)
	ErrStudentNotFound = fmt.Errorf("student %w", ErrNotFound)
	ErrTutorNotFound   = fmt.Errorf("tutor %w", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)

	ErrClassNotBookable     = fmt.Errorf("class is not open for booking: %w", ErrInvalidTransition)
	ErrClassClosed          = fmt.Errorf("class is cancelled or completed: %w", ErrInvalidTransition)
	ErrClassHasOpenBookings = fmt.Errorf("class still has pending or confirmed bookings: %w", ErrInvalidTransition)
	ErrBookingElapsed       = fmt.Errorf("booking window has already passed: %w", ErrInvalidTransition)
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransitionError reports a state machine rejection with the states involved.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
