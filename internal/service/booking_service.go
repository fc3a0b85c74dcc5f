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

// BookingService owns the booking lifecycle:
// pending -> confirmed -> completed, pending|confirmed -> cancelled|no_show.
type BookingService struct {
	tx        TxManager
	bookings  BookingStore
	classes   ClassStore
	users     UserDirectory
	ledger    *CapacityLedger
	conflicts *ConflictDetector
	timeline
	events eventSink
	logger *zap.Logger

	enforceTutorConflicts bool
}

// NewBookingService wires the booking state machine to its stores.
func NewBookingService(
	tx TxManager,
	bookings BookingStore,
	classes ClassStore,
	users UserDirectory,
	ledger *CapacityLedger,
	conflicts *ConflictDetector,
	publisher events.Publisher,
	tl timeline,
	enforceTutorConflicts bool,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		tx:                    tx,
		bookings:              bookings,
		classes:               classes,
		users:                 users,
		ledger:                ledger,
		conflicts:             conflicts,
		timeline:              tl,
		events:                eventSink{publisher: publisher, logger: logger},
		logger:                logger,
		enforceTutorConflicts: enforceTutorConflicts,
	}
}

// CreateBookingInput describes a class enrollment (ClassID set) or a direct
// session with a tutor (TutorID set, or neither for a tutor-less consultation).
// For class bookings the window defaults to the class window.
type CreateBookingInput struct {
	StudentID        uuid.UUID
	ClassID          *uuid.UUID
	TutorID          *uuid.UUID
	Date             model.Date
	StartTime        model.TimeOfDay
	EndTime          model.TimeOfDay
	DurationMinutes  int
	PaymentStatus    string
	PaymentReference string
	Notes            string
}

// Create books a seat or a direct session. Everything runs in one transaction,
// so a failure after the seat reservation leaves the seat untouched.
func (s *BookingService) Create(ctx context.Context, actor model.Actor, in CreateBookingInput) (*model.Booking, error) {
	if in.StudentID == uuid.Nil {
		in.StudentID = actor.ID
	}
	if in.StudentID != actor.ID && !actor.Privileged() {
		return nil, fmt.Errorf("book for another student: %w", ErrUnauthorized)
	}

	paymentStatus := strings.TrimSpace(in.PaymentStatus)
	if paymentStatus == "" {
		paymentStatus = model.PaymentStatusPending
	}

	var booking *model.Booking
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		booking = nil

		student, err := s.users.GetByID(ctx, in.StudentID)
		if err != nil {
			return fmt.Errorf("get student: %w", err)
		}
		// Only student accounts can book.
		if student == nil || student.Role != model.RoleStudent {
			return ErrStudentNotFound
		}

		b := &model.Booking{
			ID:               uuid.New(),
			StudentID:        student.ID,
			TutorID:          in.TutorID,
			ClassID:          in.ClassID,
			CreatedBy:        actor.ID,
			Date:             in.Date,
			StartTime:        in.StartTime,
			EndTime:          in.EndTime,
			Status:           model.BookingStatusPending,
			PaymentStatus:    paymentStatus,
			PaymentReference: in.PaymentReference,
			Notes:            in.Notes,
		}

		// Class bookings inherit the tutor from the class; direct bookings
		// must name an existing tutor account.
		if in.ClassID != nil {
			if err := s.bindClass(ctx, b); err != nil {
				return err
			}
		} else if b.TutorID != nil {
			if err := s.checkTutor(ctx, *b.TutorID); err != nil {
				return err
			}
		}

		if err := s.validate(b, in.DurationMinutes); err != nil {
			return err
		}
		if s.hasStarted(b.Window()) {
			return invalid("start_time", "must be in the future")
		}

		// Reserve the seat, or serialize direct bookings per tutor day
		// before looking for overlaps.
		if in.ClassID != nil {
			if err := s.ledger.ReserveSeat(ctx, *in.ClassID); err != nil {
				return err
			}
		} else if b.TutorID != nil && s.enforceTutorConflicts {
			if err := s.bookings.LockTutorDay(ctx, *b.TutorID, b.Date); err != nil {
				return fmt.Errorf("lock tutor day: %w", err)
			}
			conflict, err := s.conflicts.HasConflict(ctx, *b.TutorID, b.Window(), nil)
			if err != nil {
				return err
			}
			if conflict {
				return ErrSchedulingConflict
			}
		}

		if err := s.bookings.Create(ctx, b); err != nil {
			return fmt.Errorf("create booking: %w", err)
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Booking created",
		zap.String("booking_id", booking.ID.String()),
		zap.String("student_id", booking.StudentID.String()),
		zap.Stringp("class_id", uuidString(booking.ClassID)),
		zap.String("window", booking.Window().String()),
	)
	s.events.publish(ctx, events.ForBooking(events.BookingCreated, booking, s.now()))

	return booking, nil
}

// checkTutor resolves the tutor of a direct booking.
func (s *BookingService) checkTutor(ctx context.Context, tutorID uuid.UUID) error {
	tutor, err := s.users.GetByID(ctx, tutorID)
	if err != nil {
		return fmt.Errorf("get tutor: %w", err)
	}
	if tutor == nil {
		return ErrTutorNotFound
	}
	if tutor.Role != model.RoleTutor {
		return invalid("tutor_id", "must reference a tutor")
	}
	return nil
}

// bindClass derives the tutor and the default window from the class and
// checks the booking fits inside it.
func (s *BookingService) bindClass(ctx context.Context, b *model.Booking) error {
	class, err := s.classes.GetByID(ctx, *b.ClassID)
	if err != nil {
		return fmt.Errorf("get class: %w", err)
	}
	if class == nil {
		return ErrClassNotFound
	}
	if class.Status != model.ClassStatusScheduled {
		return ErrClassNotBookable
	}
	if class.AvailableSlots() <= 0 {
		return ErrClassFull
	}

	tutorID := class.TutorID
	b.TutorID = &tutorID
	if b.Date.IsZero() {
		b.Date = class.Date
	}
	if b.StartTime == 0 && b.EndTime == 0 {
		b.StartTime, b.EndTime = class.StartTime, class.EndTime
	}
	if !class.Window().Contains(b.Window()) {
		return invalid("start_time", "booking must fall within the class window "+class.Window().String())
	}
	return nil
}

// validate checks the window and derives the duration.
func (s *BookingService) validate(b *model.Booking, duration int) error {
	if err := validateWindow(b.Window()); err != nil {
		return err
	}
	minutes := b.Window().Minutes()
	if duration != 0 && duration != minutes {
		return invalid("duration_minutes", fmt.Sprintf("must equal end_time - start_time (%d)", minutes))
	}
	b.DurationMinutes = minutes
	return nil
}

// GetByID returns the booking if the actor takes part in it.
func (s *BookingService) GetByID(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error) {
	b, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, b) {
		return nil, fmt.Errorf("view booking %s: %w", id, ErrUnauthorized)
	}
	return b, nil
}

// Confirm is reserved for the tutor of the booking.
func (s *BookingService) Confirm(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error) {
	b, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.IsTutor(actor.ID) {
		return nil, fmt.Errorf("confirm booking %s: %w", id, ErrUnauthorized)
	}
	// Fail fast on terminal states before checking the clock.
	if !b.Status.CanTransition(model.BookingStatusConfirmed) {
		return nil, &TransitionError{Entity: "booking", From: string(b.Status), To: string(model.BookingStatusConfirmed)}
	}
	if s.hasEnded(b.Window()) {
		return nil, ErrBookingElapsed
	}

	confirmed, err := s.transition(ctx, id, model.BookingTransition{To: model.BookingStatusConfirmed, At: s.now()})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Booking confirmed",
		zap.String("booking_id", id.String()),
		zap.String("tutor_id", actor.ID.String()),
	)
	s.events.publish(ctx, events.ForBooking(events.BookingConfirmed, confirmed, s.now()))

	return confirmed, nil
}

// Cancel may be called by the student, the tutor, the creator or an admin. The
// class seat is released in the same transaction as the status change.
func (s *BookingService) Cancel(ctx context.Context, actor model.Actor, id uuid.UUID, reason string) (*model.Booking, error) {
	b, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.HasParticipant(actor.ID) && b.CreatedBy != actor.ID && !actor.Privileged() {
		return nil, fmt.Errorf("cancel booking %s: %w", id, ErrUnauthorized)
	}

	var cancelled *model.Booking
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		cancelled, err = s.transition(ctx, id, model.BookingTransition{
			To:     model.BookingStatusCancelled,
			At:     s.now(),
			Reason: strings.TrimSpace(reason),
		})
		if err != nil {
			return err
		}
		// Only the caller that won the transition frees the seat.
		if cancelled.ClassID != nil {
			return s.ledger.ReleaseSeat(ctx, *cancelled.ClassID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Booking cancelled",
		zap.String("booking_id", id.String()),
		zap.String("actor_id", actor.ID.String()),
		zap.String("reason", cancelled.CancellationReason),
	)
	s.events.publish(ctx, events.ForBooking(events.BookingCancelled, cancelled, s.now()))

	return cancelled, nil
}

// Complete closes a confirmed booking. The seat stays occupied: the session
// took place.
func (s *BookingService) Complete(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error) {
	b, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAdminister(actor, b) {
		return nil, fmt.Errorf("complete booking %s: %w", id, ErrUnauthorized)
	}

	completed, err := s.transition(ctx, id, model.BookingTransition{To: model.BookingStatusCompleted, At: s.now()})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Booking completed",
		zap.String("booking_id", id.String()),
		zap.String("actor_id", actor.ID.String()),
	)
	s.events.publish(ctx, events.ForBooking(events.BookingCompleted, completed, s.now()))

	return completed, nil
}

// MarkNoShow is an administrative close of a pending or confirmed booking.
func (s *BookingService) MarkNoShow(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error) {
	b, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAdminister(actor, b) {
		return nil, fmt.Errorf("mark booking %s as no-show: %w", id, ErrUnauthorized)
	}

	marked, err := s.transition(ctx, id, model.BookingTransition{To: model.BookingStatusNoShow, At: s.now()})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Booking marked as no-show",
		zap.String("booking_id", id.String()),
		zap.String("actor_id", actor.ID.String()),
	)
	s.events.publish(ctx, events.ForBooking(events.BookingNoShow, marked, s.now()))

	return marked, nil
}

// UpdatePayment records the opaque payment status supplied by the payment
// collaborator. Cancelled and no-show bookings are closed for payment updates.
func (s *BookingService) UpdatePayment(ctx context.Context, actor model.Actor, id uuid.UUID, status, reference string) (*model.Booking, error) {
	status = strings.TrimSpace(status)
	if status == "" {
		return nil, invalid("payment_status", "is required")
	}

	b, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAdminister(actor, b) {
		return nil, fmt.Errorf("update payment of booking %s: %w", id, ErrUnauthorized)
	}
	if b.Status == model.BookingStatusCancelled || b.Status == model.BookingStatusNoShow {
		return nil, &TransitionError{Entity: "booking payment", From: string(b.Status), To: status}
	}

	updated, err := s.bookings.UpdatePayment(ctx, id, status, strings.TrimSpace(reference))
	if err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}
	if updated == nil {
		return nil, ErrBookingNotFound
	}

	s.logger.Info("Booking payment updated",
		zap.String("booking_id", id.String()),
		zap.String("payment_status", status),
	)

	return updated, nil
}

// ListByStudent returns the student's bookings, newest first.
func (s *BookingService) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.Booking, error) {
	list, err := s.bookings.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list student bookings: %w", err)
	}
	return list, nil
}

// ListByTutor returns the tutor's bookings, newest first.
func (s *BookingService) ListByTutor(ctx context.Context, tutorID uuid.UUID) ([]*model.Booking, error) {
	list, err := s.bookings.ListByTutor(ctx, tutorID)
	if err != nil {
		return nil, fmt.Errorf("list tutor bookings: %w", err)
	}
	return list, nil
}

// BookingsToComplete lists confirmed bookings whose window has ended.
func (s *BookingService) BookingsToComplete(ctx context.Context) ([]*model.Booking, error) {
	day, at := s.wallNow()
	return s.bookings.ListConfirmedEndedBy(ctx, day, at)
}

// get loads a booking or returns ErrBookingNotFound.
func (s *BookingService) get(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if b == nil {
		return nil, ErrBookingNotFound
	}
	return b, nil
}

// transition writes the change only if the booking is still in one of the
// allowed source states, then explains a lost precondition.
func (s *BookingService) transition(ctx context.Context, id uuid.UUID, t model.BookingTransition) (*model.Booking, error) {
	updated, err := s.bookings.Transition(ctx, id, model.BookingSourcesFor(t.To), t)
	if err != nil {
		return nil, fmt.Errorf("update booking status: %w", err)
	}
	if updated != nil {
		return updated, nil
	}

	// Lost the precondition: report the state that won.
	current, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, &TransitionError{Entity: "booking", From: string(current.Status), To: string(t.To)}
}

// canView admits participants, the creator and privileged actors.
func canView(actor model.Actor, b *model.Booking) bool {
	return b.HasParticipant(actor.ID) || b.CreatedBy == actor.ID || actor.Privileged()
}

// canAdminister admits the booking's tutor and privileged actors.
func canAdminister(actor model.Actor, b *model.Booking) bool {
	return b.IsTutor(actor.ID) || actor.Privileged()
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
