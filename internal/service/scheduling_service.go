package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/clock"
	"github.com/Freeeeeet/tutorbook/internal/events"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Stores bundles the persistence collaborators.
type Stores struct {
	Tx       TxManager
	Classes  ClassStore
	Bookings BookingStore
	Users    UserDirectory
}

type Options struct {
	Clock     clock.Clock
	Location  *time.Location
	Publisher events.Publisher

	// EnforceTutorConflicts rejects direct bookings that overlap an active
	// booking of the same tutor.
	EnforceTutorConflicts bool
}

// SchedulingService is the entry point used by transports and the scheduler.
type SchedulingService struct {
	Classes   *ClassService
	Bookings  *BookingService
	Users     *UserService
	conflicts *ConflictDetector
}

// NewSchedulingService builds every service over one set of stores.
func NewSchedulingService(stores Stores, opts Options, logger *zap.Logger) *SchedulingService {
	tl := newTimeline(opts.Clock, opts.Location)
	ledger := NewCapacityLedger(stores.Classes)
	conflicts := NewConflictDetector(stores.Bookings)

	return &SchedulingService{
		Classes: NewClassService(stores.Tx, stores.Classes, stores.Bookings, ledger, opts.Publisher, tl, logger),
		Bookings: NewBookingService(stores.Tx, stores.Bookings, stores.Classes, stores.Users,
			ledger, conflicts, opts.Publisher, tl, opts.EnforceTutorConflicts, logger),
		Users:     NewUserService(stores.Users, logger),
		conflicts: conflicts,
	}
}

// CreateClass schedules a new class.
func (s *SchedulingService) CreateClass(ctx context.Context, actor model.Actor, in CreateClassInput) (*model.ClassInstance, error) {
	return s.Classes.Create(ctx, actor, in)
}

// GetClass returns a class by id.
func (s *SchedulingService) GetClass(ctx context.Context, id uuid.UUID) (*model.ClassInstance, error) {
	return s.Classes.GetByID(ctx, id)
}

// UpdateClass edits a class owned by the actor.
func (s *SchedulingService) UpdateClass(ctx context.Context, actor model.Actor, id uuid.UUID, patch model.ClassPatch) (*model.ClassInstance, error) {
	return s.Classes.Update(ctx, actor, id, patch)
}

// DeleteClass removes an owned class with no occupied seats.
func (s *SchedulingService) DeleteClass(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	return s.Classes.Delete(ctx, actor, id)
}

// CancelClass cancels a class and its active bookings.
func (s *SchedulingService) CancelClass(ctx context.Context, actor model.Actor, id uuid.UUID, reason string) (*model.ClassInstance, error) {
	return s.Classes.Cancel(ctx, actor, id, reason)
}

// StartClass moves a class to in_progress.
func (s *SchedulingService) StartClass(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.ClassInstance, error) {
	return s.Classes.Start(ctx, actor, id)
}

// CompleteClass closes a class.
func (s *SchedulingService) CompleteClass(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.ClassInstance, error) {
	return s.Classes.Complete(ctx, actor, id)
}

// GetAvailableClasses lists non-terminal classes with their free seats.
func (s *SchedulingService) GetAvailableClasses(ctx context.Context, filter model.ClassFilter) ([]model.ClassAvailability, error) {
	return s.Classes.GetAvailable(ctx, filter)
}

// CreateBooking enrolls a student in a class or books a direct session.
func (s *SchedulingService) CreateBooking(ctx context.Context, actor model.Actor, in CreateBookingInput) (*model.Booking, error) {
	return s.Bookings.Create(ctx, actor, in)
}

// GetBooking returns a booking visible to the actor.
func (s *SchedulingService) GetBooking(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error) {
	return s.Bookings.GetByID(ctx, actor, id)
}

// ConfirmBooking confirms a pending booking.
func (s *SchedulingService) ConfirmBooking(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error) {
	return s.Bookings.Confirm(ctx, actor, id)
}

// CancelBooking cancels a booking and frees its seat.
func (s *SchedulingService) CancelBooking(ctx context.Context, actor model.Actor, id uuid.UUID, reason string) (*model.Booking, error) {
	return s.Bookings.Cancel(ctx, actor, id, reason)
}

// CompleteBooking closes a confirmed booking.
func (s *SchedulingService) CompleteBooking(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error) {
	return s.Bookings.Complete(ctx, actor, id)
}

// MarkNoShow records that the student did not attend.
func (s *SchedulingService) MarkNoShow(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error) {
	return s.Bookings.MarkNoShow(ctx, actor, id)
}

// UpdatePayment stores the opaque payment status.
func (s *SchedulingService) UpdatePayment(ctx context.Context, actor model.Actor, id uuid.UUID, status, reference string) (*model.Booking, error) {
	return s.Bookings.UpdatePayment(ctx, actor, id, status, reference)
}

// ListMyBookings returns the bookings the actor takes part in: as tutor for
// tutors, as student otherwise.
func (s *SchedulingService) ListMyBookings(ctx context.Context, actor model.Actor) ([]*model.Booking, error) {
	if actor.Role == model.RoleTutor {
		return s.Bookings.ListByTutor(ctx, actor.ID)
	}
	return s.Bookings.ListByStudent(ctx, actor.ID)
}

// CheckConflict is a pre-flight query; it changes nothing.
func (s *SchedulingService) CheckConflict(ctx context.Context, tutorID uuid.UUID, window model.Window, excludeBookingID *uuid.UUID) (bool, error) {
	return s.conflicts.HasConflict(ctx, tutorID, window, excludeBookingID)
}
