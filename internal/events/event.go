// Package events defines the domain events emitted after scheduling changes
// are committed, and the publishers that carry them.
package events

import (
	"context"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Type string

const (
	BookingCreated   Type = "booking.created"
	BookingConfirmed Type = "booking.confirmed"
	BookingCancelled Type = "booking.cancelled"
	BookingCompleted Type = "booking.completed"
	BookingNoShow    Type = "booking.no_show"
	ClassCancelled   Type = "class.cancelled"
)

// Event is the JSON payload put on the wire.
type Event struct {
	ID         uuid.UUID  `json:"id"`
	Type       Type       `json:"type"`
	OccurredAt time.Time  `json:"occurred_at"`
	BookingID  *uuid.UUID `json:"booking_id,omitempty"`
	ClassID    *uuid.UUID `json:"class_id,omitempty"`
	StudentID  *uuid.UUID `json:"student_id,omitempty"`
	TutorID    *uuid.UUID `json:"tutor_id,omitempty"`
	Title      string     `json:"title,omitempty"`
	Date       model.Date `json:"date"`
	StartTime  string     `json:"start_time"`
	EndTime    string     `json:"end_time"`
	Status     string     `json:"status"`
	Reason     string     `json:"reason,omitempty"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// ForBooking builds an event describing the booking's current state.
func ForBooking(t Type, b *model.Booking, at time.Time) Event {
	id, student := b.ID, b.StudentID
	return Event{
		ID:         uuid.New(),
		Type:       t,
		OccurredAt: at.UTC(),
		BookingID:  &id,
		ClassID:    b.ClassID,
		StudentID:  &student,
		TutorID:    b.TutorID,
		Date:       b.Date,
		StartTime:  b.StartTime.String(),
		EndTime:    b.EndTime.String(),
		Status:     string(b.Status),
		Reason:     b.CancellationReason,
	}
}

// ForClass builds an event describing the class's current state.
func ForClass(t Type, c *model.ClassInstance, at time.Time) Event {
	id, tutor := c.ID, c.TutorID
	return Event{
		ID:         uuid.New(),
		Type:       t,
		OccurredAt: at.UTC(),
		ClassID:    &id,
		TutorID:    &tutor,
		Title:      c.Title,
		Date:       c.Date,
		StartTime:  c.StartTime.String(),
		EndTime:    c.EndTime.String(),
		Status:     string(c.Status),
		Reason:     c.CancellationReason,
	}
}

// LogPublisher only writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	p.logger.Info("Event published",
		zap.String("event_id", ev.ID.String()),
		zap.String("type", string(ev.Type)),
		zap.String("status", ev.Status),
	)
	return nil
}
