package model

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"   // awaiting tutor confirmation
	BookingStatusConfirmed BookingStatus = "confirmed" // confirmed by the tutor
	BookingStatusCompleted BookingStatus = "completed" // session took place
	BookingStatusCancelled BookingStatus = "cancelled" // cancelled by student, tutor or creator
	BookingStatusNoShow    BookingStatus = "no_show"   // administratively closed
)

// ActiveBookingStatuses hold a seat and take part in conflict detection.
var ActiveBookingStatuses = []BookingStatus{BookingStatusPending, BookingStatusConfirmed}

func (s BookingStatus) Active() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

func (s BookingStatus) Terminal() bool {
	return !s.Active()
}

type bookingTransition struct {
	From BookingStatus
	To   BookingStatus
}

var bookingTransitions = []bookingTransition{
	{From: BookingStatusPending, To: BookingStatusConfirmed},
	{From: BookingStatusConfirmed, To: BookingStatusCompleted},
	{From: BookingStatusPending, To: BookingStatusCancelled},
	{From: BookingStatusConfirmed, To: BookingStatusCancelled},
	{From: BookingStatusPending, To: BookingStatusNoShow},
	{From: BookingStatusConfirmed, To: BookingStatusNoShow},
}

// BookingSourcesFor returns the states from which a booking may move to target.
func BookingSourcesFor(target BookingStatus) []BookingStatus {
	var from []BookingStatus
	for _, tr := range bookingTransitions {
		if tr.To == target {
			from = append(from, tr.From)
		}
	}
	return from
}

func (s BookingStatus) CanTransition(to BookingStatus) bool {
	for _, tr := range bookingTransitions {
		if tr.From == s && tr.To == to {
			return true
		}
	}
	return false
}

// PaymentStatusPending is the default opaque payment status.
const PaymentStatusPending = "pending"

type Booking struct {
	ID                 uuid.UUID     `json:"id"`
	StudentID          uuid.UUID     `json:"student_id"`
	TutorID            *uuid.UUID    `json:"tutor_id,omitempty"` // derived from the class for class bookings
	ClassID            *uuid.UUID    `json:"class_id,omitempty"`
	CreatedBy          uuid.UUID     `json:"created_by"`
	Date               Date          `json:"date"`
	StartTime          TimeOfDay     `json:"start_time"`
	EndTime            TimeOfDay     `json:"end_time"`
	DurationMinutes    int           `json:"duration_minutes"`
	Status             BookingStatus `json:"status"`
	PaymentStatus      string        `json:"payment_status"`
	PaymentReference   string        `json:"payment_reference,omitempty"`
	Notes              string        `json:"notes,omitempty"`
	CancellationReason string        `json:"cancellation_reason,omitempty"`
	ConfirmedAt        *time.Time    `json:"confirmed_at,omitempty"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

func (b *Booking) Window() Window {
	return Window{Date: b.Date, Start: b.StartTime, End: b.EndTime}
}

// HasParticipant reports whether id is the student or the tutor of the booking.
func (b *Booking) HasParticipant(id uuid.UUID) bool {
	return b.StudentID == id || (b.TutorID != nil && *b.TutorID == id)
}

func (b *Booking) IsTutor(id uuid.UUID) bool {
	return b.TutorID != nil && *b.TutorID == id
}

// BookingTransition describes a status change applied under a precondition.
type BookingTransition struct {
	To     BookingStatus
	At     time.Time
	Reason string
}

// ConflictQuery selects active bookings of a tutor overlapping a window.
type ConflictQuery struct {
	TutorID          uuid.UUID
	Window           Window
	ExcludeBookingID *uuid.UUID
}

// Conflicts evaluates the query against a single booking.
func (q ConflictQuery) Conflicts(b *Booking) bool {
	if !b.Status.Active() || !b.IsTutor(q.TutorID) {
		return false
	}
	if q.ExcludeBookingID != nil && b.ID == *q.ExcludeBookingID {
		return false
	}
	return b.Window().Overlaps(q.Window)
}
