package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/google/uuid"
)

// ConflictDetector answers whether a tutor is already booked in a window.
// Only pending and confirmed bookings count; intervals are half-open.
type ConflictDetector struct {
	bookings BookingStore
}

// NewConflictDetector returns a detector over the booking store.
func NewConflictDetector(bookings BookingStore) *ConflictDetector {
	return &ConflictDetector{bookings: bookings}
}

// HasConflict never reports "no conflict" when the store cannot answer; the
// store error is returned instead.
func (d *ConflictDetector) HasConflict(ctx context.Context, tutorID uuid.UUID, window model.Window, excludeBookingID *uuid.UUID) (bool, error) {
	if err := validateWindow(window); err != nil {
		return false, err
	}

	conflict, err := d.bookings.HasConflict(ctx, model.ConflictQuery{
		TutorID:          tutorID,
		Window:           window,
		ExcludeBookingID: excludeBookingID,
	})
	if err != nil {
		return false, fmt.Errorf("check conflict: %w", err)
	}
	return conflict, nil
}

// validateWindow requires a date and a non-empty window.
func validateWindow(w model.Window) error {
	if w.Date.IsZero() {
		return invalid("date", "is required")
	}
	if !w.Start.Valid() {
		return invalid("start_time", "must be between 00:00 and 23:59")
	}
	if !w.End.Valid() {
		return invalid("end_time", "must be between 00:00 and 23:59")
	}
	if w.Start >= w.End {
		return invalid("end_time", "must be after start_time")
	}
	return nil
}
