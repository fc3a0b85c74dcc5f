package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/clock"
	"github.com/Freeeeeet/tutorbook/internal/events"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/repository/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// 2030-03-01 08:00 UTC. Test classes are scheduled on 2030-03-04.
var testNow = time.Date(2030, time.March, 1, 8, 0, 0, 0, time.UTC)

var testDay = model.Date{Year: 2030, Month: time.March, Day: 4}

type recordingPublisher struct {
	mu        sync.Mutex
	events    []events.Event
	deadlines []time.Time
	err       error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	deadline, _ := ctx.Deadline()
	p.deadlines = append(p.deadlines, deadline)
	return p.err
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Type
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	ctx   context.Context
	clock *clock.Manual
	store *memory.Store
	pub   *recordingPublisher
	svc   *SchedulingService

	tutor   model.Actor
	admin   model.Actor
	student model.Actor
}

type fixtureOption func(*Stores)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		ctx:   context.Background(),
		clock: clock.NewManual(testNow),
		pub:   &recordingPublisher{},
	}
	f.store = memory.NewStore(f.clock)

	stores := Stores{
		Tx:       f.store.TxManager(),
		Classes:  f.store.Classes(),
		Bookings: f.store.Bookings(),
		Users:    f.store.Users(),
	}
	for _, opt := range opts {
		opt(&stores)
	}

	f.svc = NewSchedulingService(stores, Options{
		Clock:                 f.clock,
		Location:              time.UTC,
		Publisher:             f.pub,
		EnforceTutorConflicts: true,
	}, zap.NewNop())

	f.tutor = f.addUser(t, model.RoleTutor)
	f.admin = f.addUser(t, model.RoleAdmin)
	f.student = f.addUser(t, model.RoleStudent)
	return f
}

func (f *fixture) addUser(t *testing.T, role model.Role) model.Actor {
	t.Helper()
	u := &model.User{ID: uuid.New(), Name: string(role), Role: role}
	require.NoError(t, f.store.Users().Create(f.ctx, u))
	return model.Actor{ID: u.ID, Role: role}
}

func (f *fixture) createClass(t *testing.T, capacity int, start, end model.TimeOfDay) *model.ClassInstance {
	t.Helper()
	class, err := f.svc.CreateClass(f.ctx, f.tutor, CreateClassInput{
		Title:     "Algebra",
		Date:      testDay,
		StartTime: start,
		EndTime:   end,
		Capacity:  capacity,
	})
	require.NoError(t, err)
	return class
}

func (f *fixture) enroll(student model.Actor, classID uuid.UUID) (*model.Booking, error) {
	return f.svc.CreateBooking(f.ctx, student, CreateBookingInput{ClassID: &classID})
}

func (f *fixture) class(t *testing.T, id uuid.UUID) *model.ClassInstance {
	t.Helper()
	c, err := f.svc.GetClass(f.ctx, id)
	require.NoError(t, err)
	return c
}

func at(h, m int) model.TimeOfDay {
	return model.NewTimeOfDay(h, m)
}

// failingBookings lets a test inject store failures.
type failingBookings struct {
	BookingStore
	createErr   error
	conflictErr error
}

func (s *failingBookings) Create(ctx context.Context, b *model.Booking) error {
	if s.createErr != nil {
		return s.createErr
	}
	return s.BookingStore.Create(ctx, b)
}

func (s *failingBookings) HasConflict(ctx context.Context, q model.ConflictQuery) (bool, error) {
	if s.conflictErr != nil {
		return false, s.conflictErr
	}
	return s.BookingStore.HasConflict(ctx, q)
}

var errStoreDown = errors.New("store down")
