// Package memory is an in-process store with the same conditional-write
// semantics as the Postgres repositories. Writes are serialized; a
// transaction holds the write lock until it commits or rolls back, and a
// rollback replays an undo log.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/clock"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/google/uuid"
)

type Store struct {
	writeMu sync.Mutex   // held by a transaction or a single write
	mu      sync.RWMutex // guards the maps
	clock   clock.Clock

	classes  map[uuid.UUID]*model.ClassInstance
	bookings map[uuid.UUID]*model.Booking
	users    map[uuid.UUID]*model.User
}

func NewStore(c clock.Clock) *Store {
	if c == nil {
		c = clock.System{}
	}
	return &Store{
		clock:    c,
		classes:  make(map[uuid.UUID]*model.ClassInstance),
		bookings: make(map[uuid.UUID]*model.Booking),
		users:    make(map[uuid.UUID]*model.User),
	}
}

func (s *Store) Classes() *ClassRepository    { return &ClassRepository{s} }
func (s *Store) Bookings() *BookingRepository { return &BookingRepository{s} }
func (s *Store) Users() *UserRepository       { return &UserRepository{s} }
func (s *Store) TxManager() *TxManager        { return &TxManager{s} }

type txKey struct{}

type tx struct {
	undo []func()
}

func txFrom(ctx context.Context) *tx {
	t, _ := ctx.Value(txKey{}).(*tx)
	return t
}

type TxManager struct {
	s *Store
}

// WithinTx runs fn while holding the write lock. Nested calls join the outer
// transaction.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	m.s.writeMu.Lock()
	defer m.s.writeMu.Unlock()

	t := &tx{}
	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		m.s.mu.Lock()
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
		m.s.mu.Unlock()
		return err
	}
	return nil
}

// write applies fn under the map lock. Outside a transaction it takes the
// write lock itself; inside one, fn's undo step is recorded.
func (s *Store) write(ctx context.Context, fn func() (undo func())) {
	t := txFrom(ctx)
	if t == nil {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
	}

	s.mu.Lock()
	undo := fn()
	s.mu.Unlock()

	if t != nil && undo != nil {
		t.undo = append(t.undo, undo)
	}
}

func (s *Store) now() time.Time {
	return s.clock.Now()
}

func cloneClass(c *model.ClassInstance) *model.ClassInstance {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Recurrence != nil {
		r := *c.Recurrence
		if r.EndDate != nil {
			d := *r.EndDate
			r.EndDate = &d
		}
		cp.Recurrence = &r
	}
	cp.CancelledAt = cloneTime(c.CancelledAt)
	return &cp
}

func cloneBooking(b *model.Booking) *model.Booking {
	if b == nil {
		return nil
	}
	cp := *b
	cp.TutorID = cloneUUID(b.TutorID)
	cp.ClassID = cloneUUID(b.ClassID)
	cp.ConfirmedAt = cloneTime(b.ConfirmedAt)
	cp.CancelledAt = cloneTime(b.CancelledAt)
	cp.CompletedAt = cloneTime(b.CompletedAt)
	return &cp
}

func cloneUser(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	cp := *u
	if u.TelegramChatID != nil {
		id := *u.TelegramChatID
		cp.TelegramChatID = &id
	}
	return &cp
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// endedBy reports whether a window on day with the given end is over at (today, at).
func endedBy(w model.Window, today model.Date, at model.TimeOfDay) bool {
	return w.Date.Before(today) || (w.Date == today && w.End <= at)
}
