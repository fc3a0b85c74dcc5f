package app

import (
	"context"
	"testing"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/clock"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/repository/memory"
	"github.com/Freeeeeet/tutorbook/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newScheduling(t *testing.T, clk clock.Clock) (*service.SchedulingService, *memory.Store) {
	t.Helper()
	store := memory.NewStore(clk)
	svc := service.NewSchedulingService(service.Stores{
		Tx:       store.TxManager(),
		Classes:  store.Classes(),
		Bookings: store.Bookings(),
		Users:    store.Users(),
	}, service.Options{Clock: clk, Location: time.UTC}, zap.NewNop())
	return svc, store
}

func addUser(t *testing.T, store *memory.Store, role model.Role) model.Actor {
	t.Helper()
	u := &model.User{ID: uuid.New(), Name: string(role), Role: role}
	require.NoError(t, store.Users().Create(context.Background(), u))
	return model.Actor{ID: u.ID, Role: role}
}

func TestSchedulerSweep(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2030, time.March, 1, 8, 0, 0, 0, time.UTC))
	svc, store := newScheduling(t, clk)
	tutor := addUser(t, store, model.RoleTutor)
	student := addUser(t, store, model.RoleStudent)

	class, err := svc.CreateClass(ctx, tutor, service.CreateClassInput{
		Title:     "Geometry",
		Date:      model.Date{Year: 2030, Month: time.March, Day: 4},
		StartTime: model.NewTimeOfDay(10, 0),
		EndTime:   model.NewTimeOfDay(11, 0),
		Capacity:  3,
	})
	require.NoError(t, err)

	booking, err := svc.CreateBooking(ctx, student, service.CreateBookingInput{ClassID: &class.ID})
	require.NoError(t, err)
	_, err = svc.ConfirmBooking(ctx, tutor, booking.ID)
	require.NoError(t, err)

	s := NewScheduler(svc, time.Minute, true, zap.NewNop())

	assert.Equal(t, SweepResult{}, s.Sweep(ctx), "nothing is due yet")

	clk.Set(time.Date(2030, time.March, 4, 10, 5, 0, 0, time.UTC))
	assert.Equal(t, SweepResult{ClassesStarted: 1}, s.Sweep(ctx))

	clk.Set(time.Date(2030, time.March, 4, 11, 0, 0, 0, time.UTC))
	assert.Equal(t, SweepResult{BookingsCompleted: 1, ClassesCompleted: 1}, s.Sweep(ctx))

	got, err := svc.GetClass(ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClassStatusCompleted, got.Status)

	b, err := svc.GetBooking(ctx, student, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCompleted, b.Status)

	assert.Equal(t, SweepResult{}, s.Sweep(ctx), "sweeps are idempotent")
}

func TestSchedulerLeavesOpenBookingsAlone(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2030, time.March, 1, 8, 0, 0, 0, time.UTC))
	svc, store := newScheduling(t, clk)
	tutor := addUser(t, store, model.RoleTutor)
	student := addUser(t, store, model.RoleStudent)

	class, err := svc.CreateClass(ctx, tutor, service.CreateClassInput{
		Title:     "Geometry",
		Date:      model.Date{Year: 2030, Month: time.March, Day: 4},
		StartTime: model.NewTimeOfDay(10, 0),
		EndTime:   model.NewTimeOfDay(11, 0),
		Capacity:  3,
	})
	require.NoError(t, err)
	_, err = svc.CreateBooking(ctx, student, service.CreateBookingInput{ClassID: &class.ID})
	require.NoError(t, err)

	s := NewScheduler(svc, time.Minute, false, zap.NewNop())

	clk.Set(time.Date(2030, time.March, 4, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, SweepResult{ClassesStarted: 1}, s.Sweep(ctx))

	got, err := svc.GetClass(ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClassStatusInProgress, got.Status, "a pending booking keeps the class open")
}

func TestSchedulerRunStops(t *testing.T) {
	svc, _ := newScheduling(t, clock.System{})
	s := NewScheduler(svc, time.Hour, true, zap.NewNop())

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	s.Stop()
	s.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
