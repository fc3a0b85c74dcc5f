package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/google/uuid"
)

type ClassRepository struct {
	s *Store
}

func (r *ClassRepository) Create(ctx context.Context, class *model.ClassInstance) error {
	var err error
	r.s.write(ctx, func() func() {
		if _, ok := r.s.classes[class.ID]; ok {
			err = fmt.Errorf("class %s already exists", class.ID)
			return nil
		}
		now := r.s.now()
		class.CreatedAt, class.UpdatedAt = now, now
		r.s.classes[class.ID] = cloneClass(class)
		id := class.ID
		return func() { delete(r.s.classes, id) }
	})
	return err
}

func (r *ClassRepository) GetByID(_ context.Context, id uuid.UUID) (*model.ClassInstance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return cloneClass(r.s.classes[id]), nil
}

// mutate applies fn to the stored class when cond holds, recording the
// previous version for rollback.
func (r *ClassRepository) mutate(ctx context.Context, id uuid.UUID, cond func(c *model.ClassInstance) bool, fn func(c *model.ClassInstance)) *model.ClassInstance {
	var result *model.ClassInstance
	r.s.write(ctx, func() func() {
		current, ok := r.s.classes[id]
		if !ok || !cond(current) {
			return nil
		}
		prev := cloneClass(current)
		fn(current)
		current.UpdatedAt = r.s.now()
		result = cloneClass(current)
		return func() { r.s.classes[id] = prev }
	})
	return result
}

func (r *ClassRepository) Update(ctx context.Context, class *model.ClassInstance) (*model.ClassInstance, error) {
	next := cloneClass(class)
	updated := r.mutate(ctx, class.ID,
		func(c *model.ClassInstance) bool {
			return c.Status.Editable() &&
				c.Occupied <= next.Capacity &&
				(c.Occupied == 0 || c.Window() == next.Window())
		},
		func(c *model.ClassInstance) {
			c.Title = next.Title
			c.Description = next.Description
			c.Date = next.Date
			c.StartTime = next.StartTime
			c.EndTime = next.EndTime
			c.Capacity = next.Capacity
			c.MeetingLink = next.MeetingLink
			c.Recurrence = next.Recurrence
			c.IsFull = c.Occupied >= c.Capacity
		})
	return updated, nil
}

func (r *ClassRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	deleted := false
	r.s.write(ctx, func() func() {
		current, ok := r.s.classes[id]
		if !ok || current.Occupied != 0 {
			return nil
		}
		delete(r.s.classes, id)
		deleted = true

		// Mirror ON DELETE SET NULL.
		var detached []uuid.UUID
		for _, b := range r.s.bookings {
			if b.ClassID != nil && *b.ClassID == id {
				b.ClassID = nil
				detached = append(detached, b.ID)
			}
		}
		return func() {
			r.s.classes[id] = current
			for _, bid := range detached {
				if b, ok := r.s.bookings[bid]; ok {
					b.ClassID = &id
				}
			}
		}
	})
	return deleted, nil
}

func (r *ClassRepository) ReserveSeat(ctx context.Context, id uuid.UUID) (bool, error) {
	updated := r.mutate(ctx, id,
		func(c *model.ClassInstance) bool {
			return c.Status == model.ClassStatusScheduled && c.Occupied < c.Capacity
		},
		func(c *model.ClassInstance) {
			c.Occupied++
			c.IsFull = c.Occupied >= c.Capacity
		})
	return updated != nil, nil
}

func (r *ClassRepository) ReleaseSeat(ctx context.Context, id uuid.UUID) (bool, error) {
	updated := r.mutate(ctx, id,
		func(*model.ClassInstance) bool { return true },
		func(c *model.ClassInstance) {
			c.Occupied = max(c.Occupied-1, 0)
			c.IsFull = c.Occupied >= c.Capacity
		})
	return updated != nil, nil
}

func (r *ClassRepository) Transition(ctx context.Context, id uuid.UUID, from []model.ClassStatus, to model.ClassStatus, at time.Time, reason string) (*model.ClassInstance, error) {
	updated := r.mutate(ctx, id,
		func(c *model.ClassInstance) bool { return slices.Contains(from, c.Status) },
		func(c *model.ClassInstance) {
			c.Status = to
			if to == model.ClassStatusCancelled {
				c.CancelledAt = &at
				c.CancellationReason = reason
			}
		})
	return updated, nil
}

func (r *ClassRepository) ListAvailable(_ context.Context, filter model.ClassFilter) ([]*model.ClassInstance, error) {
	filter = filter.Normalized()
	return r.list(filter.Matches, filter.Offset, filter.Limit), nil
}

func (r *ClassRepository) ListStartingBy(_ context.Context, day model.Date, at model.TimeOfDay) ([]*model.ClassInstance, error) {
	return r.list(func(c *model.ClassInstance) bool {
		return c.Status == model.ClassStatusScheduled &&
			(c.Date.Before(day) || (c.Date == day && c.StartTime <= at))
	}, 0, 0), nil
}

func (r *ClassRepository) ListEndedBy(_ context.Context, status model.ClassStatus, day model.Date, at model.TimeOfDay) ([]*model.ClassInstance, error) {
	return r.list(func(c *model.ClassInstance) bool {
		return c.Status == status && endedBy(c.Window(), day, at)
	}, 0, 0), nil
}

// list returns matching classes ordered by date, start time and id. A zero
// limit means no limit.
func (r *ClassRepository) list(match func(*model.ClassInstance) bool, offset, limit int) []*model.ClassInstance {
	r.s.mu.RLock()
	var result []*model.ClassInstance
	for _, c := range r.s.classes {
		if match(c) {
			result = append(result, cloneClass(c))
		}
	}
	r.s.mu.RUnlock()

	slices.SortFunc(result, func(a, b *model.ClassInstance) int {
		switch {
		case model.ClassLess(a, b):
			return -1
		case model.ClassLess(b, a):
			return 1
		}
		return 0
	})

	if offset >= len(result) {
		return []*model.ClassInstance{}
	}
	result = result[offset:]
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result
}
