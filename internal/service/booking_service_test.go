package service

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/events"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingService_EnrollDerivesFromClass(t *testing.T) {
	f := newFixture(t)
	class := f.createClass(t, 2, at(10, 0), at(11, 30))

	b, err := f.enroll(f.student, class.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusPending, b.Status)
	assert.Equal(t, model.PaymentStatusPending, b.PaymentStatus)
	require.NotNil(t, b.TutorID)
	assert.Equal(t, f.tutor.ID, *b.TutorID)
	assert.Equal(t, class.Window(), b.Window())
	assert.Equal(t, 90, b.DurationMinutes)
	assert.Equal(t, f.student.ID, b.CreatedBy)

	assert.Equal(t, 1, f.class(t, class.ID).Occupied)
	assert.Equal(t, []events.Type{events.BookingCreated}, f.pub.types())
}

func TestBookingService_CreateFailures(t *testing.T) {
	f := newFixture(t)
	class := f.createClass(t, 2, at(10, 0), at(11, 0))
	missing := uuid.New()

	_, err := f.enroll(f.student, missing)
	require.ErrorIs(t, err, ErrClassNotFound)

	ghost := model.Actor{ID: uuid.New(), Role: model.RoleStudent}
	_, err = f.enroll(ghost, class.ID)
	require.ErrorIs(t, err, ErrStudentNotFound)

	other := f.addUser(t, model.RoleStudent)
	_, err = f.svc.CreateBooking(f.ctx, f.student, CreateBookingInput{StudentID: other.ID, ClassID: &class.ID})
	require.ErrorIs(t, err, ErrUnauthorized)

	// Admins enroll anyone.
	b, err := f.svc.CreateBooking(f.ctx, f.admin, CreateBookingInput{StudentID: other.ID, ClassID: &class.ID})
	require.NoError(t, err)
	assert.Equal(t, f.admin.ID, b.CreatedBy)

	_, err = f.svc.CreateBooking(f.ctx, f.student, CreateBookingInput{
		ClassID:   &class.ID,
		StartTime: at(10, 30),
		EndTime:   at(11, 30),
	})
	require.ErrorIs(t, err, ErrValidation, "outside the class window")

	_, err = f.svc.CreateBooking(f.ctx, f.student, CreateBookingInput{ClassID: &class.ID, DurationMinutes: 45})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "duration_minutes", verr.Field)

	assert.Equal(t, 1, f.class(t, class.ID).Occupied)
}

func TestBookingService_FailedInsertReleasesSeat(t *testing.T) {
	f := newFixture(t, func(s *Stores) {
		s.Bookings = &failingBookings{BookingStore: s.Bookings, createErr: errStoreDown}
	})
	class := f.createClass(t, 1, at(10, 0), at(11, 0))

	_, err := f.enroll(f.student, class.ID)
	require.ErrorIs(t, err, errStoreDown)

	got := f.class(t, class.ID)
	assert.Equal(t, 0, got.Occupied)
	assert.False(t, got.IsFull)
	assert.Empty(t, f.pub.types())
}

func TestBookingService_DirectBookingConflicts(t *testing.T) {
	f := newFixture(t)
	first := f.directBooking(t, at(10, 0), at(11, 0))
	assert.Nil(t, first.ClassID)
	assert.Equal(t, 60, first.DurationMinutes)

	tutorID := f.tutor.ID
	_, err := f.svc.CreateBooking(f.ctx, f.addUser(t, model.RoleStudent), CreateBookingInput{
		TutorID:   &tutorID,
		Date:      testDay,
		StartTime: at(10, 30),
		EndTime:   at(11, 30),
	})
	require.ErrorIs(t, err, ErrSchedulingConflict)

	f.directBooking(t, at(11, 0), at(12, 0))

	// Tutor-less consultations skip conflict detection.
	b, err := f.svc.CreateBooking(f.ctx, f.student, CreateBookingInput{
		Date:      testDay,
		StartTime: at(10, 0),
		EndTime:   at(11, 0),
	})
	require.NoError(t, err)
	assert.Nil(t, b.TutorID)
}

func TestBookingService_OnlyStudentsHoldSeats(t *testing.T) {
	f := newFixture(t)
	class := f.createClass(t, 2, at(10, 0), at(11, 0))

	// Another tutor tries to take a seat for themselves.
	other := f.addUser(t, model.RoleTutor)
	_, err := f.enroll(other, class.ID)
	require.ErrorIs(t, err, ErrStudentNotFound)

	_, err = f.enroll(f.tutor, class.ID)
	require.ErrorIs(t, err, ErrStudentNotFound)

	_, err = f.svc.CreateBooking(f.ctx, f.admin, CreateBookingInput{StudentID: other.ID, ClassID: &class.ID})
	require.ErrorIs(t, err, ErrStudentNotFound)

	_, err = f.enroll(f.admin, class.ID)
	require.ErrorIs(t, err, ErrStudentNotFound)

	assert.Equal(t, 0, f.class(t, class.ID).Occupied)
	assert.Empty(t, f.pub.types())
}

func TestBookingService_DirectBookingResolvesTutor(t *testing.T) {
	f := newFixture(t)

	missing := uuid.New()
	_, err := f.svc.CreateBooking(f.ctx, f.student, CreateBookingInput{
		TutorID:   &missing,
		Date:      testDay,
		StartTime: at(10, 0),
		EndTime:   at(11, 0),
	})
	require.ErrorIs(t, err, ErrTutorNotFound)
	require.ErrorIs(t, err, ErrNotFound)

	other := f.addUser(t, model.RoleStudent)
	_, err = f.svc.CreateBooking(f.ctx, f.student, CreateBookingInput{
		TutorID:   &other.ID,
		Date:      testDay,
		StartTime: at(10, 0),
		EndTime:   at(11, 0),
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "tutor_id", verr.Field)

	list, err := f.store.Bookings().ListByStudent(f.ctx, f.student.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	b := f.directBooking(t, at(10, 0), at(11, 0))
	assert.Equal(t, f.tutor.ID, *b.TutorID)
}

func TestBookingService_RejectsPastWindows(t *testing.T) {
	f := newFixture(t)
	tutorID := f.tutor.ID

	_, err := f.svc.CreateBooking(f.ctx, f.student, CreateBookingInput{
		TutorID:   &tutorID,
		Date:      model.Date{Year: 2030, Month: time.February, Day: 27},
		StartTime: at(10, 0),
		EndTime:   at(11, 0),
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestBookingService_ConfirmIsForTheTutorOnly(t *testing.T) {
	f := newFixture(t)
	class := f.createClass(t, 2, at(10, 0), at(11, 0))
	b, err := f.enroll(f.student, class.ID)
	require.NoError(t, err)

	_, err = f.svc.ConfirmBooking(f.ctx, f.student, b.ID)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.ConfirmBooking(f.ctx, f.tutor, uuid.New())
	require.ErrorIs(t, err, ErrBookingNotFound)

	confirmed, err := f.svc.ConfirmBooking(f.ctx, f.tutor, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)
	assert.True(t, confirmed.ConfirmedAt.Equal(testNow))

	_, err = f.svc.ConfirmBooking(f.ctx, f.tutor, b.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestBookingService_ConfirmAfterWindowElapsed(t *testing.T) {
	f := newFixture(t)
	class := f.createClass(t, 2, at(10, 0), at(11, 0))
	b, err := f.enroll(f.student, class.ID)
	require.NoError(t, err)

	f.clock.Set(time.Date(2030, time.March, 4, 11, 0, 0, 0, time.UTC))
	_, err = f.svc.ConfirmBooking(f.ctx, f.tutor, b.ID)
	require.ErrorIs(t, err, ErrBookingElapsed)
}

func TestBookingService_CancelReleasesExactlyOneSeat(t *testing.T) {
	f := newFixture(t)
	class := f.createClass(t, 2, at(10, 0), at(11, 0))

	first, err := f.enroll(f.student, class.ID)
	require.NoError(t, err)
	_, err = f.enroll(f.addUser(t, model.RoleStudent), class.ID)
	require.NoError(t, err)
	_, err = f.svc.ConfirmBooking(f.ctx, f.tutor, first.ID)
	require.NoError(t, err)

	before := model.NewClassAvailability(f.class(t, class.ID))
	require.Equal(t, 0, before.AvailableSlots)
	require.False(t, before.IsBookable)

	// The tutor cancels the student's confirmed booking.
	cancelled, err := f.svc.CancelBooking(f.ctx, f.tutor, first.ID, " schedule change ")
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, cancelled.Status)
	assert.Equal(t, "schedule change", cancelled.CancellationReason)
	require.NotNil(t, cancelled.CancelledAt)

	after := model.NewClassAvailability(f.class(t, class.ID))
	assert.Equal(t, before.AvailableSlots+1, after.AvailableSlots)
	assert.True(t, after.IsBookable)

	_, err = f.svc.CancelBooking(f.ctx, f.student, first.ID, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 1, f.class(t, class.ID).Occupied, "a second cancel releases nothing")
}

func TestBookingService_ConcurrentCancelReleasesOnce(t *testing.T) {
	f := newFixture(t)
	class := f.createClass(t, 2, at(10, 0), at(11, 0))

	b, err := f.enroll(f.student, class.ID)
	require.NoError(t, err)
	_, err = f.enroll(f.addUser(t, model.RoleStudent), class.ID)
	require.NoError(t, err)
	require.Equal(t, 2, f.class(t, class.ID).Occupied)

	const workers = 20
	var (
		wg        sync.WaitGroup
		cancelled atomic.Int32
		rejected  atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch _, err := f.svc.CancelBooking(f.ctx, f.student, b.ID, ""); {
			case err == nil:
				cancelled.Add(1)
			case assert.ErrorIs(t, err, ErrInvalidTransition):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, cancelled.Load())
	assert.EqualValues(t, workers-1, rejected.Load())
	assert.Equal(t, 1, f.class(t, class.ID).Occupied)
}

func TestBookingService_CancelRacesClassCancel(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		class := f.createClass(t, 3, at(10, 0), at(11, 0))

		first, err := f.enroll(f.student, class.ID)
		require.NoError(t, err)
		second, err := f.enroll(f.addUser(t, model.RoleStudent), class.ID)
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			bookingOK atomic.Bool
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.svc.CancelBooking(f.ctx, f.student, first.ID, "")
			if err == nil {
				bookingOK.Store(true)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.CancelClass(f.ctx, f.tutor, class.ID, "")
			assert.NoError(t, err)
		}()
		wg.Wait()

		got := f.class(t, class.ID)
		assert.Equal(t, model.ClassStatusCancelled, got.Status)
		assert.Equal(t, 0, got.Occupied)

		for _, id := range []uuid.UUID{first.ID, second.ID} {
			b, err := f.svc.GetBooking(f.ctx, f.admin, id)
			require.NoError(t, err)
			assert.Equal(t, model.BookingStatusCancelled, b.Status)
		}

		// Each booking is cancelled, and its seat released, exactly once.
		var cancelledEvents int
		for _, typ := range f.pub.types() {
			if typ == events.BookingCancelled {
				cancelledEvents++
			}
		}
		assert.Equal(t, 2, cancelledEvents, "booking cancel won: %v", bookingOK.Load())
	}
}

func TestBookingService_CancelAuthorization(t *testing.T) {
	f := newFixture(t)
	b := f.directBooking(t, at(10, 0), at(11, 0))

	stranger := f.addUser(t, model.RoleStudent)
	_, err := f.svc.CancelBooking(f.ctx, stranger, b.ID, "")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.GetBooking(f.ctx, stranger, b.ID)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.CancelBooking(f.ctx, f.admin, b.ID, "")
	require.NoError(t, err)
}

func TestBookingService_StateMachineClosure(t *testing.T) {
	type op struct {
		name string
		run  func(f *fixture, id uuid.UUID) error
	}
	ops := []op{
		{"confirm", func(f *fixture, id uuid.UUID) error {
			_, err := f.svc.ConfirmBooking(f.ctx, f.tutor, id)
			return err
		}},
		{"cancel", func(f *fixture, id uuid.UUID) error {
			_, err := f.svc.CancelBooking(f.ctx, f.tutor, id, "")
			return err
		}},
		{"complete", func(f *fixture, id uuid.UUID) error {
			_, err := f.svc.CompleteBooking(f.ctx, f.tutor, id)
			return err
		}},
		{"no-show", func(f *fixture, id uuid.UUID) error {
			_, err := f.svc.MarkNoShow(f.ctx, f.tutor, id)
			return err
		}},
	}

	terminal := map[model.BookingStatus]func(f *fixture, id uuid.UUID) error{
		model.BookingStatusCancelled: ops[1].run,
		model.BookingStatusNoShow:    ops[3].run,
		model.BookingStatusCompleted: func(f *fixture, id uuid.UUID) error {
			if err := ops[0].run(f, id); err != nil {
				return err
			}
			return ops[2].run(f, id)
		},
	}

	for status, reach := range terminal {
		for _, o := range ops {
			t.Run(string(status)+"/"+o.name, func(t *testing.T) {
				f := newFixture(t)
				class := f.createClass(t, 2, at(10, 0), at(11, 0))
				b, err := f.enroll(f.student, class.ID)
				require.NoError(t, err)
				require.NoError(t, reach(f, b.ID))

				occupied := f.class(t, class.ID).Occupied
				require.ErrorIs(t, o.run(f, b.ID), ErrInvalidTransition)

				got, err := f.svc.GetBooking(f.ctx, f.student, b.ID)
				require.NoError(t, err)
				assert.Equal(t, status, got.Status)
				assert.Equal(t, occupied, f.class(t, class.ID).Occupied)
			})
		}
	}
}

func TestBookingService_CompleteRequiresConfirmed(t *testing.T) {
	f := newFixture(t)
	b := f.directBooking(t, at(10, 0), at(11, 0))

	_, err := f.svc.CompleteBooking(f.ctx, f.tutor, b.ID)
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "pending", terr.From)
	assert.Equal(t, "completed", terr.To)

	_, err = f.svc.CompleteBooking(f.ctx, f.student, b.ID)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.ConfirmBooking(f.ctx, f.tutor, b.ID)
	require.NoError(t, err)
	completed, err := f.svc.CompleteBooking(f.ctx, model.SystemActor, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
}

func TestBookingService_UpdatePayment(t *testing.T) {
	f := newFixture(t)
	b := f.directBooking(t, at(10, 0), at(11, 0))

	_, err := f.svc.UpdatePayment(f.ctx, f.tutor, b.ID, "", "")
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.UpdatePayment(f.ctx, f.student, b.ID, "paid", "ref-1")
	require.ErrorIs(t, err, ErrUnauthorized)

	paid, err := f.svc.UpdatePayment(f.ctx, f.admin, b.ID, "paid", "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "paid", paid.PaymentStatus)
	assert.Equal(t, "ref-1", paid.PaymentReference)

	_, err = f.svc.CancelBooking(f.ctx, f.student, b.ID, "")
	require.NoError(t, err)
	_, err = f.svc.UpdatePayment(f.ctx, f.admin, b.ID, "refunded", "ref-2")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestBookingService_ListMine(t *testing.T) {
	f := newFixture(t)
	early := f.directBooking(t, at(9, 0), at(10, 0))
	late := f.directBooking(t, at(14, 0), at(15, 0))

	mine, err := f.svc.ListMyBookings(f.ctx, f.student)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, late.ID, mine[0].ID)
	assert.Equal(t, early.ID, mine[1].ID)

	theirs, err := f.svc.ListMyBookings(f.ctx, f.tutor)
	require.NoError(t, err)
	assert.Len(t, theirs, 2)

	other, err := f.svc.ListMyBookings(f.ctx, f.addUser(t, model.RoleStudent))
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestBookingService_PublishFailureDoesNotFailTheOperation(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errStoreDown
	class := f.createClass(t, 1, at(10, 0), at(11, 0))

	b, err := f.enroll(f.student, class.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusPending, b.Status)
	assert.Equal(t, []events.Type{events.BookingCreated}, f.pub.types())
}

func TestBookingService_PublishIsBounded(t *testing.T) {
	f := newFixture(t)
	class := f.createClass(t, 1, at(10, 0), at(11, 0))

	start := time.Now()
	_, err := f.enroll(f.student, class.ID)
	require.NoError(t, err)

	f.pub.mu.Lock()
	defer f.pub.mu.Unlock()
	require.NotEmpty(t, f.pub.deadlines)
	for _, d := range f.pub.deadlines {
		require.False(t, d.IsZero(), "publish runs without a deadline")
		assert.WithinDuration(t, start.Add(publishTimeout), d, 5*time.Second)
	}
}
