package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/google/uuid"
)

// The persistence collaborator. Getters return (nil, nil) when the row does not
// exist; conditional writes return (nil, nil) or false when their precondition
// no longer holds.

// TxManager runs fn inside a store transaction. Nested calls join the outer one.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type ClassStore interface {
	Create(ctx context.Context, class *model.ClassInstance) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ClassInstance, error)

	// Update writes the editable fields only while the class is not terminal,
	// the new capacity still covers occupied seats and, if seats are taken,
	// the window is unchanged.
	Update(ctx context.Context, class *model.ClassInstance) (*model.ClassInstance, error)

	// Delete removes the class only while no seat is occupied.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	// ReserveSeat increments occupied only if occupied < capacity and the class
	// is scheduled, as one indivisible operation.
	ReserveSeat(ctx context.Context, id uuid.UUID) (bool, error)

	// ReleaseSeat decrements occupied, floored at zero. False if the class is absent.
	ReleaseSeat(ctx context.Context, id uuid.UUID) (bool, error)

	Transition(ctx context.Context, id uuid.UUID, from []model.ClassStatus, to model.ClassStatus, at time.Time, reason string) (*model.ClassInstance, error)

	ListAvailable(ctx context.Context, filter model.ClassFilter) ([]*model.ClassInstance, error)

	// ListStartingBy returns scheduled classes whose start is at or before (day, at).
	ListStartingBy(ctx context.Context, day model.Date, at model.TimeOfDay) ([]*model.ClassInstance, error)
	// ListEndedBy returns classes in status whose end is at or before (day, at).
	ListEndedBy(ctx context.Context, status model.ClassStatus, day model.Date, at model.TimeOfDay) ([]*model.ClassInstance, error)
}

type BookingStore interface {
	Create(ctx context.Context, booking *model.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error)

	// Transition applies t only if the booking's current status is in from.
	Transition(ctx context.Context, id uuid.UUID, from []model.BookingStatus, t model.BookingTransition) (*model.Booking, error)

	UpdatePayment(ctx context.Context, id uuid.UUID, status, reference string) (*model.Booking, error)

	HasConflict(ctx context.Context, q model.ConflictQuery) (bool, error)

	// LockTutorDay serializes direct bookings of one tutor on one day until the
	// surrounding transaction ends.
	LockTutorDay(ctx context.Context, tutorID uuid.UUID, day model.Date) error

	ListActiveByClass(ctx context.Context, classID uuid.UUID) ([]*model.Booking, error)
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.Booking, error)
	ListByTutor(ctx context.Context, tutorID uuid.UUID) ([]*model.Booking, error)

	// ListConfirmedEndedBy returns confirmed bookings whose end is at or before (day, at).
	ListConfirmedEndedBy(ctx context.Context, day model.Date, at model.TimeOfDay) ([]*model.Booking, error)
}

// UserDirectory is the identity collaborator.
type UserDirectory interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	SetTelegramChatID(ctx context.Context, id uuid.UUID, chatID int64) (bool, error)
}
