package service

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapacityLedger_ConcurrentReservationsNeverOvercommit(t *testing.T) {
	f := newFixture(t)
	class := f.createClass(t, 5, at(10, 0), at(11, 0))
	ledger := NewCapacityLedger(f.store.Classes())

	const workers = 40
	var (
		wg       sync.WaitGroup
		reserved atomic.Int32
		full     atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := ledger.ReserveSeat(f.ctx, class.ID); {
			case err == nil:
				reserved.Add(1)
			case assert.ErrorIs(t, err, ErrClassFull):
				full.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 5, reserved.Load())
	assert.EqualValues(t, workers-5, full.Load())

	got := f.class(t, class.ID)
	assert.Equal(t, 5, got.Occupied)
	assert.True(t, got.IsFull)
	assert.False(t, got.IsBookable())
}

func TestCapacityLedger_ConcurrentBookingsNeverOvercommit(t *testing.T) {
	f := newFixture(t)
	class := f.createClass(t, 3, at(10, 0), at(11, 0))

	const students = 20
	actors := make([]model.Actor, 0, students)
	for i := 0; i < students; i++ {
		actors = append(actors, f.addUser(t, model.RoleStudent))
	}

	var (
		wg     sync.WaitGroup
		booked atomic.Int32
	)
	for _, a := range actors {
		wg.Add(1)
		go func(student model.Actor) {
			defer wg.Done()
			_, err := f.enroll(student, class.ID)
			if err == nil {
				booked.Add(1)
				return
			}
			assert.ErrorIs(t, err, ErrClassFull)
		}(a)
	}
	wg.Wait()

	assert.EqualValues(t, 3, booked.Load())
	assert.Equal(t, 3, f.class(t, class.ID).Occupied)
}

func TestCapacityLedger_ReserveReportsWhy(t *testing.T) {
	f := newFixture(t)
	ledger := NewCapacityLedger(f.store.Classes())

	err := ledger.ReserveSeat(f.ctx, uuid.New())
	require.ErrorIs(t, err, ErrClassNotFound)
	require.ErrorIs(t, err, ErrNotFound)

	class := f.createClass(t, 1, at(10, 0), at(11, 0))
	require.NoError(t, ledger.ReserveSeat(f.ctx, class.ID))
	require.ErrorIs(t, ledger.ReserveSeat(f.ctx, class.ID), ErrClassFull)

	require.NoError(t, ledger.ReleaseSeat(f.ctx, class.ID))
	_, err = f.svc.CancelClass(f.ctx, f.tutor, class.ID, "")
	require.NoError(t, err)
	require.ErrorIs(t, ledger.ReserveSeat(f.ctx, class.ID), ErrClassNotBookable)
}

func TestCapacityLedger_ReleaseSeat(t *testing.T) {
	f := newFixture(t)
	ledger := NewCapacityLedger(f.store.Classes())

	require.ErrorIs(t, ledger.ReleaseSeat(f.ctx, uuid.New()), ErrClassNotFound)

	class := f.createClass(t, 1, at(10, 0), at(11, 0))
	require.NoError(t, ledger.ReleaseSeat(f.ctx, class.ID))
	assert.Equal(t, 0, f.class(t, class.ID).Occupied)
}
