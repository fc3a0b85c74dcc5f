// Package service implements class scheduling and booking: the capacity
// ledger, conflict detection, the class and booking state machines and the
// SchedulingService façade used by transports.
package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/clock"
	"github.com/Freeeeeet/tutorbook/internal/events"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"go.uber.org/zap"
)

// timeline resolves "now" into the wall-clock calendar that classes use.
type timeline struct {
	clock clock.Clock
	loc   *time.Location
}

func newTimeline(c clock.Clock, loc *time.Location) timeline {
	if c == nil {
		c = clock.System{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return timeline{clock: c, loc: loc}
}

func (t timeline) now() time.Time {
	return t.clock.Now()
}

// wallNow returns today's date and the current time of day in the configured zone.
func (t timeline) wallNow() (model.Date, model.TimeOfDay) {
	now := t.clock.Now().In(t.loc)
	return model.DateOf(now), model.TimeOfDayOf(now)
}

// hasStarted reports whether the window start is not in the future.
func (t timeline) hasStarted(w model.Window) bool {
	return !w.StartsAt(t.loc).After(t.clock.Now())
}

func (t timeline) hasEnded(w model.Window) bool {
	return !w.EndsAt(t.loc).After(t.clock.Now())
}

const publishTimeout = 10 * time.Second

// eventSink publishes after commit. A failed publish never fails the operation.
type eventSink struct {
	publisher events.Publisher
	logger    *zap.Logger
}

func (s eventSink) publish(ctx context.Context, evs ...events.Event) {
	if s.publisher == nil {
		return
	}
	// The change is already committed; a client disconnect must not drop its
	// events, but a stuck broker must not hold the caller either.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	for _, ev := range evs {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.logger.Warn("Failed to publish event",
				zap.String("type", string(ev.Type)),
				zap.String("event_id", ev.ID.String()),
				zap.Error(err))
		}
	}
}
