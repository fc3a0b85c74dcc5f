package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/google/uuid"
)

// CapacityLedger owns the occupied-seat counter of class instances. It never
// reads occupancy and writes it back; the store applies each change as one
// conditional update.
type CapacityLedger struct {
	classes ClassStore
}

// NewCapacityLedger returns a ledger over the class store.
func NewCapacityLedger(classes ClassStore) *CapacityLedger {
	return &CapacityLedger{classes: classes}
}

// ReserveSeat takes one seat. Fails with ErrClassFull, ErrClassNotBookable or ErrClassNotFound.
func (l *CapacityLedger) ReserveSeat(ctx context.Context, classID uuid.UUID) error {
	ok, err := l.classes.ReserveSeat(ctx, classID)
	if err != nil {
		return fmt.Errorf("reserve seat: %w", err)
	}
	if ok {
		return nil
	}

	// The conditional update matched nothing; find out why.
	class, err := l.classes.GetByID(ctx, classID)
	if err != nil {
		return fmt.Errorf("get class: %w", err)
	}
	switch {
	case class == nil:
		return ErrClassNotFound
	case class.Status != model.ClassStatusScheduled:
		return ErrClassNotBookable
	default:
		return ErrClassFull
	}
}

// ReleaseSeat gives one seat back, never going below zero.
func (l *CapacityLedger) ReleaseSeat(ctx context.Context, classID uuid.UUID) error {
	ok, err := l.classes.ReleaseSeat(ctx, classID)
	if err != nil {
		return fmt.Errorf("release seat: %w", err)
	}
	if !ok {
		return ErrClassNotFound
	}
	return nil
}
