package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/google/uuid"
)

type BookingRepository struct {
	s *Store
}

func (r *BookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	var err error
	r.s.write(ctx, func() func() {
		if _, ok := r.s.bookings[booking.ID]; ok {
			err = fmt.Errorf("booking %s already exists", booking.ID)
			return nil
		}
		if booking.ClassID != nil {
			if _, ok := r.s.classes[*booking.ClassID]; !ok {
				err = fmt.Errorf("booking %s references unknown class %s", booking.ID, *booking.ClassID)
				return nil
			}
		}
		now := r.s.now()
		booking.CreatedAt, booking.UpdatedAt = now, now
		r.s.bookings[booking.ID] = cloneBooking(booking)
		id := booking.ID
		return func() { delete(r.s.bookings, id) }
	})
	return err
}

func (r *BookingRepository) GetByID(_ context.Context, id uuid.UUID) (*model.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return cloneBooking(r.s.bookings[id]), nil
}

func (r *BookingRepository) mutate(ctx context.Context, id uuid.UUID, cond func(b *model.Booking) bool, fn func(b *model.Booking)) *model.Booking {
	var result *model.Booking
	r.s.write(ctx, func() func() {
		current, ok := r.s.bookings[id]
		if !ok || !cond(current) {
			return nil
		}
		prev := cloneBooking(current)
		fn(current)
		current.UpdatedAt = r.s.now()
		result = cloneBooking(current)
		return func() { r.s.bookings[id] = prev }
	})
	return result
}

func (r *BookingRepository) Transition(ctx context.Context, id uuid.UUID, from []model.BookingStatus, t model.BookingTransition) (*model.Booking, error) {
	at := t.At
	updated := r.mutate(ctx, id,
		func(b *model.Booking) bool { return slices.Contains(from, b.Status) },
		func(b *model.Booking) {
			b.Status = t.To
			switch t.To {
			case model.BookingStatusConfirmed:
				b.ConfirmedAt = &at
			case model.BookingStatusCancelled:
				b.CancelledAt = &at
				b.CancellationReason = t.Reason
			case model.BookingStatusCompleted:
				b.CompletedAt = &at
			}
		})
	return updated, nil
}

func (r *BookingRepository) UpdatePayment(ctx context.Context, id uuid.UUID, status, reference string) (*model.Booking, error) {
	updated := r.mutate(ctx, id,
		func(*model.Booking) bool { return true },
		func(b *model.Booking) {
			b.PaymentStatus = status
			b.PaymentReference = reference
		})
	return updated, nil
}

func (r *BookingRepository) HasConflict(_ context.Context, q model.ConflictQuery) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, b := range r.s.bookings {
		if q.Conflicts(b) {
			return true, nil
		}
	}
	return false, nil
}

// LockTutorDay is a no-op: transactions already hold the store's write lock.
func (r *BookingRepository) LockTutorDay(context.Context, uuid.UUID, model.Date) error {
	return nil
}

func (r *BookingRepository) ListActiveByClass(_ context.Context, classID uuid.UUID) ([]*model.Booking, error) {
	return r.list(func(b *model.Booking) bool {
		return b.ClassID != nil && *b.ClassID == classID && b.Status.Active()
	}, false), nil
}

func (r *BookingRepository) ListByStudent(_ context.Context, studentID uuid.UUID) ([]*model.Booking, error) {
	return r.list(func(b *model.Booking) bool { return b.StudentID == studentID }, true), nil
}

func (r *BookingRepository) ListByTutor(_ context.Context, tutorID uuid.UUID) ([]*model.Booking, error) {
	return r.list(func(b *model.Booking) bool { return b.IsTutor(tutorID) }, true), nil
}

func (r *BookingRepository) ListConfirmedEndedBy(_ context.Context, day model.Date, at model.TimeOfDay) ([]*model.Booking, error) {
	return r.list(func(b *model.Booking) bool {
		return b.Status == model.BookingStatusConfirmed && endedBy(b.Window(), day, at)
	}, false), nil
}

// list orders by window ascending, or descending when newestFirst is set.
func (r *BookingRepository) list(match func(*model.Booking) bool, newestFirst bool) []*model.Booking {
	r.s.mu.RLock()
	result := []*model.Booking{}
	for _, b := range r.s.bookings {
		if match(b) {
			result = append(result, cloneBooking(b))
		}
	}
	r.s.mu.RUnlock()

	slices.SortFunc(result, func(a, b *model.Booking) int {
		c := a.Date.Compare(b.Date)
		if c == 0 {
			c = int(a.StartTime) - int(b.StartTime)
		}
		if c == 0 {
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if newestFirst {
			return -c
		}
		return c
	})
	return result
}
