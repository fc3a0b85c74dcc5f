package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Freeeeeet/tutorbook/internal/events"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClassService owns the class instance lifecycle:
// scheduled -> in_progress -> completed, scheduled|in_progress -> cancelled.
type ClassService struct {
	tx       TxManager
	classes  ClassStore
	bookings BookingStore
	ledger   *CapacityLedger
	timeline
	events eventSink
	logger *zap.Logger
}

// NewClassService wires the class lifecycle to its stores.
func NewClassService(
	tx TxManager,
	classes ClassStore,
	bookings BookingStore,
	ledger *CapacityLedger,
	publisher events.Publisher,
	tl timeline,
	logger *zap.Logger,
) *ClassService {
	return &ClassService{
		tx:       tx,
		classes:  classes,
		bookings: bookings,
		ledger:   ledger,
		timeline: tl,
		events:   eventSink{publisher: publisher, logger: logger},
		logger:   logger,
	}
}

type CreateClassInput struct {
	TutorID     uuid.UUID
	Title       string
	Description string
	Date        model.Date
	StartTime   model.TimeOfDay
	EndTime     model.TimeOfDay
	Capacity    int
	MeetingLink string
	Recurrence  *model.Recurrence
}

// Create publishes a new class instance in the scheduled state with no seats taken.
func (s *ClassService) Create(ctx context.Context, actor model.Actor, in CreateClassInput) (*model.ClassInstance, error) {
	if in.TutorID == uuid.Nil {
		in.TutorID = actor.ID
	}
	if in.TutorID != actor.ID && !actor.Privileged() {
		return nil, fmt.Errorf("create class for another tutor: %w", ErrUnauthorized)
	}

	class := &model.ClassInstance{
		ID:          uuid.New(),
		TutorID:     in.TutorID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Date:        in.Date,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		Capacity:    in.Capacity,
		Occupied:    0,
		IsFull:      false,
		Status:      model.ClassStatusScheduled,
		MeetingLink: in.MeetingLink,
		Recurrence:  in.Recurrence,
	}

	if err := s.validate(class); err != nil {
		return nil, err
	}
	if s.hasStarted(class.Window()) {
		return nil, invalid("start_time", "must be in the future")
	}

	if err := s.classes.Create(ctx, class); err != nil {
		return nil, fmt.Errorf("create class: %w", err)
	}

	s.logger.Info("Class created",
		zap.String("class_id", class.ID.String()),
		zap.String("tutor_id", class.TutorID.String()),
		zap.String("window", class.Window().String()),
		zap.Int("capacity", class.Capacity),
	)

	return class, nil
}

// GetByID returns the class or ErrClassNotFound.
func (s *ClassService) GetByID(ctx context.Context, id uuid.UUID) (*model.ClassInstance, error) {
	class, err := s.classes.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get class: %w", err)
	}
	if class == nil {
		return nil, ErrClassNotFound
	}
	return class, nil
}

// Update changes a class owned by the actor; nobody else, admins included,
// may edit it. Capacity may not drop below the occupied seats and the window
// may not move while seats are taken.
func (s *ClassService) Update(ctx context.Context, actor model.Actor, id uuid.UUID, patch model.ClassPatch) (*model.ClassInstance, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeOwner(actor, current); err != nil {
		return nil, err
	}

	// Validate against the state we read; the store re-checks on write.
	next := patch.Apply(*current)
	if err := s.checkUpdate(current, &next); err != nil {
		return nil, err
	}
	if next.Window() != current.Window() && s.hasStarted(next.Window()) {
		return nil, invalid("start_time", "must be in the future")
	}

	updated, err := s.classes.Update(ctx, &next)
	if err != nil {
		return nil, fmt.Errorf("update class: %w", err)
	}
	if updated == nil {
		// The precondition failed at write time: a seat was taken or the class
		// moved on since we read it. Report against the fresh state.
		fresh, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.checkUpdate(fresh, &next); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("update class %s: concurrent modification: %w", id, ErrInvalidTransition)
	}

	s.logger.Info("Class updated",
		zap.String("class_id", id.String()),
		zap.String("actor_id", actor.ID.String()),
		zap.Int("capacity", updated.Capacity),
	)

	return updated, nil
}

// checkUpdate rejects edits that would truncate or move existing bookings.
func (s *ClassService) checkUpdate(current, next *model.ClassInstance) error {
	if !current.Status.Editable() {
		return ErrClassClosed
	}
	if err := s.validate(next); err != nil {
		return err
	}
	if next.Capacity < current.Occupied {
		return invalid("capacity", fmt.Sprintf("cannot be lower than the %d occupied seats", current.Occupied))
	}
	if current.Occupied > 0 && next.Window() != current.Window() {
		return fmt.Errorf("reschedule class: %w", ErrClassHasBookings)
	}
	return nil
}

// Delete hard-deletes a class with no occupied seats. Only the owning tutor
// may delete; classes with bookings must be cancelled instead.
func (s *ClassService) Delete(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	class, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := authorizeOwner(actor, class); err != nil {
		return err
	}
	if class.Occupied > 0 {
		return ErrClassHasBookings
	}

	deleted, err := s.classes.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	if !deleted {
		fresh, err := s.classes.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get class: %w", err)
		}
		if fresh == nil {
			return ErrClassNotFound
		}
		return ErrClassHasBookings
	}

	s.logger.Info("Class deleted",
		zap.String("class_id", id.String()),
		zap.String("actor_id", actor.ID.String()),
	)

	return nil
}

// Cancel moves the class to cancelled and cancels every active booking of it,
// releasing their seats in the same transaction.
func (s *ClassService) Cancel(ctx context.Context, actor model.Actor, id uuid.UUID, reason string) (*model.ClassInstance, error) {
	class, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeClass(actor, class); err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	var (
		cancelled *model.ClassInstance
		released  []*model.Booking
	)

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		released = nil

		// Close the class first so no new seat can be taken meanwhile.
		var err error
		if _, err = s.transition(ctx, id, model.ClassStatusCancelled, reason); err != nil {
			return err
		}

		active, err := s.bookings.ListActiveByClass(ctx, id)
		if err != nil {
			return fmt.Errorf("list class bookings: %w", err)
		}

		bookingReason := "class cancelled"
		if reason != "" {
			bookingReason += ": " + reason
		}
		for _, b := range active {
			updated, err := s.bookings.Transition(ctx, b.ID, model.ActiveBookingStatuses, model.BookingTransition{
				To:     model.BookingStatusCancelled,
				At:     s.now(),
				Reason: bookingReason,
			})
			if err != nil {
				return fmt.Errorf("cancel booking %s: %w", b.ID, err)
			}
			if updated == nil {
				// Resolved concurrently; whoever did it released the seat.
				continue
			}
			if err := s.ledger.ReleaseSeat(ctx, id); err != nil {
				return err
			}
			released = append(released, updated)
		}

		cancelled, err = s.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Class cancelled",
		zap.String("class_id", id.String()),
		zap.String("actor_id", actor.ID.String()),
		zap.Int("bookings_cancelled", len(released)),
	)

	evs := []events.Event{events.ForClass(events.ClassCancelled, cancelled, s.now())}
	for _, b := range released {
		evs = append(evs, events.ForBooking(events.BookingCancelled, b, s.now()))
	}
	s.events.publish(ctx, evs...)

	return cancelled, nil
}

// Start moves a scheduled class to in_progress.
func (s *ClassService) Start(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.ClassInstance, error) {
	class, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeClass(actor, class); err != nil {
		return nil, err
	}

	if !class.Status.CanTransition(model.ClassStatusInProgress) {
		return nil, &TransitionError{Entity: "class", From: string(class.Status), To: string(model.ClassStatusInProgress)}
	}

	started, err := s.transition(ctx, id, model.ClassStatusInProgress, "")
	if err != nil {
		return nil, err
	}

	s.logger.Info("Class started",
		zap.String("class_id", id.String()),
		zap.String("actor_id", actor.ID.String()),
	)

	return started, nil
}

// Complete closes an in-progress class once all of its bookings are resolved.
func (s *ClassService) Complete(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.ClassInstance, error) {
	class, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeClass(actor, class); err != nil {
		return nil, err
	}

	// An in-progress class accepts no new seats, so the check cannot go stale.
	active, err := s.bookings.ListActiveByClass(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list class bookings: %w", err)
	}
	if len(active) > 0 {
		return nil, ErrClassHasOpenBookings
	}

	completed, err := s.transition(ctx, id, model.ClassStatusCompleted, "")
	if err != nil {
		return nil, err
	}

	s.logger.Info("Class completed",
		zap.String("class_id", id.String()),
		zap.String("actor_id", actor.ID.String()),
		zap.Int("occupied", completed.Occupied),
	)

	return completed, nil
}

// GetAvailable is a read-only projection ordered by date, start time and id.
func (s *ClassService) GetAvailable(ctx context.Context, filter model.ClassFilter) ([]model.ClassAvailability, error) {
	classes, err := s.classes.ListAvailable(ctx, filter.Normalized())
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}

	result := make([]model.ClassAvailability, 0, len(classes))
	for _, c := range classes {
		result = append(result, model.NewClassAvailability(c))
	}
	return result, nil
}

// ClassesToStart lists scheduled classes whose start time has been reached.
func (s *ClassService) ClassesToStart(ctx context.Context) ([]*model.ClassInstance, error) {
	day, at := s.wallNow()
	return s.classes.ListStartingBy(ctx, day, at)
}

// ClassesToComplete lists in-progress classes whose end time has been reached.
func (s *ClassService) ClassesToComplete(ctx context.Context) ([]*model.ClassInstance, error) {
	day, at := s.wallNow()
	return s.classes.ListEndedBy(ctx, model.ClassStatusInProgress, day, at)
}

// transition applies a status change and explains a failed precondition.
func (s *ClassService) transition(ctx context.Context, id uuid.UUID, to model.ClassStatus, reason string) (*model.ClassInstance, error) {
	updated, err := s.classes.Transition(ctx, id, model.ClassSourcesFor(to), to, s.now(), reason)
	if err != nil {
		return nil, fmt.Errorf("update class status: %w", err)
	}
	if updated != nil {
		return updated, nil
	}

	// Precondition lost: report the current status.
	current, err := s.classes.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get class: %w", err)
	}
	if current == nil {
		return nil, ErrClassNotFound
	}
	return nil, &TransitionError{Entity: "class", From: string(current.Status), To: string(to)}
}

// validate checks the fields a tutor controls.
func (s *ClassService) validate(c *model.ClassInstance) error {
	if c.Title == "" {
		return invalid("title", "is required")
	}
	if err := validateWindow(c.Window()); err != nil {
		return err
	}
	if c.Capacity < 1 {
		return invalid("capacity", "must be at least 1")
	}
	if r := c.Recurrence; r != nil {
		switch r.Pattern {
		case model.RecurrenceDaily, model.RecurrenceWeekly, model.RecurrenceBiweekly, model.RecurrenceMonthly:
		default:
			return invalid("recurrence.pattern", "must be one of daily, weekly, biweekly, monthly")
		}
		if r.EndDate != nil && r.EndDate.Before(c.Date) {
			return invalid("recurrence.end_date", "must not be before the class date")
		}
	}
	return nil
}

// authorizeOwner admits the owning tutor only. Editing and deleting a class
// are tutor decisions; admins cancel instead.
func authorizeOwner(actor model.Actor, class *model.ClassInstance) error {
	if class.TutorID == actor.ID {
		return nil
	}
	return fmt.Errorf("class %s belongs to another tutor: %w", class.ID, ErrUnauthorized)
}

// authorizeClass admits the owning tutor, admins and the system actor.
func authorizeClass(actor model.Actor, class *model.ClassInstance) error {
	if class.TutorID == actor.ID || actor.Privileged() {
		return nil
	}
	return fmt.Errorf("class %s belongs to another tutor: %w", class.ID, ErrUnauthorized)
}
