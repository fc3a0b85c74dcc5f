package model

import (
	"time"

	"github.com/google/uuid"
)

type ClassStatus string

const (
	ClassStatusScheduled  ClassStatus = "scheduled"
	ClassStatusInProgress ClassStatus = "in_progress"
	ClassStatusCompleted  ClassStatus = "completed"
	ClassStatusCancelled  ClassStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s ClassStatus) Terminal() bool {
	return s == ClassStatusCompleted || s == ClassStatusCancelled
}

// Editable reports whether tutors may still change the class.
func (s ClassStatus) Editable() bool {
	return !s.Terminal()
}

// classTransition is a single allowed edge of the class state machine.
type classTransition struct {
	From ClassStatus
	To   ClassStatus
}

var classTransitions = []classTransition{
	{From: ClassStatusScheduled, To: ClassStatusInProgress},
	{From: ClassStatusScheduled, To: ClassStatusCancelled},
	{From: ClassStatusInProgress, To: ClassStatusCompleted},
	{From: ClassStatusInProgress, To: ClassStatusCancelled},
}

// ClassSourcesFor returns the states from which a class may move to target.
func ClassSourcesFor(target ClassStatus) []ClassStatus {
	var from []ClassStatus
	for _, tr := range classTransitions {
		if tr.To == target {
			from = append(from, tr.From)
		}
	}
	return from
}

// CanTransition reports whether s -> to is an edge of the class state machine.
func (s ClassStatus) CanTransition(to ClassStatus) bool {
	for _, tr := range classTransitions {
		if tr.From == s && tr.To == to {
			return true
		}
	}
	return false
}

type RecurrencePattern string

const (
	RecurrenceDaily    RecurrencePattern = "daily"
	RecurrenceWeekly   RecurrencePattern = "weekly"
	RecurrenceBiweekly RecurrencePattern = "biweekly"
	RecurrenceMonthly  RecurrencePattern = "monthly"
)

// Recurrence is informational: it never generates further instances.
type Recurrence struct {
	Pattern RecurrencePattern `json:"pattern"`
	EndDate *Date             `json:"end_date,omitempty"`
}

type ClassInstance struct {
	ID                 uuid.UUID   `json:"id"`
	TutorID            uuid.UUID   `json:"tutor_id"`
	Title              string      `json:"title"`
	Description        string      `json:"description"`
	Date               Date        `json:"date"`
	StartTime          TimeOfDay   `json:"start_time"`
	EndTime            TimeOfDay   `json:"end_time"`
	Capacity           int         `json:"capacity"`
	Occupied           int         `json:"occupied"`
	IsFull             bool        `json:"is_full"` // occupied >= capacity
	Status             ClassStatus `json:"status"`
	MeetingLink        string      `json:"meeting_link,omitempty"`
	Recurrence         *Recurrence `json:"recurrence,omitempty"`
	CancellationReason string      `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time  `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

func (c *ClassInstance) Window() Window {
	return Window{Date: c.Date, Start: c.StartTime, End: c.EndTime}
}

// AvailableSlots is capacity minus occupied seats.
func (c *ClassInstance) AvailableSlots() int {
	if n := c.Capacity - c.Occupied; n > 0 {
		return n
	}
	return 0
}

func (c *ClassInstance) IsBookable() bool {
	return c.Status == ClassStatusScheduled && c.AvailableSlots() > 0
}

// ClassAvailability is the read projection returned by the availability listing.
type ClassAvailability struct {
	*ClassInstance
	AvailableSlots int  `json:"available_slots"`
	IsBookable     bool `json:"is_bookable"`
}

func NewClassAvailability(c *ClassInstance) ClassAvailability {
	return ClassAvailability{
		ClassInstance:  c,
		AvailableSlots: c.AvailableSlots(),
		IsBookable:     c.IsBookable(),
	}
}

const (
	DefaultClassLimit = 50
	MaxClassLimit     = 200
)

// ClassFilter narrows the availability listing. Zero values mean "no filter".
type ClassFilter struct {
	TutorID      *uuid.UUID
	From         *Date
	To           *Date
	OnlyBookable bool
	Limit        int
	Offset       int
}

// Normalized applies the documented defaults and bounds.
func (f ClassFilter) Normalized() ClassFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultClassLimit
	}
	if f.Limit > MaxClassLimit {
		f.Limit = MaxClassLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches evaluates the filter in memory. Cancelled and completed classes
// never match.
func (f ClassFilter) Matches(c *ClassInstance) bool {
	if c.Status.Terminal() {
		return false
	}
	if f.TutorID != nil && c.TutorID != *f.TutorID {
		return false
	}
	if f.From != nil && c.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && c.Date.After(*f.To) {
		return false
	}
	if f.OnlyBookable && !c.IsBookable() {
		return false
	}
	return true
}

// ClassPatch carries the fields a tutor may change. Nil fields are left untouched.
type ClassPatch struct {
	Title       *string
	Description *string
	Date        *Date
	StartTime   *TimeOfDay
	EndTime     *TimeOfDay
	Capacity    *int
	MeetingLink *string
	Recurrence  *Recurrence
}

// Apply returns a copy of c with the patch applied.
func (p ClassPatch) Apply(c ClassInstance) ClassInstance {
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.Date != nil {
		c.Date = *p.Date
	}
	if p.StartTime != nil {
		c.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		c.EndTime = *p.EndTime
	}
	if p.Capacity != nil {
		c.Capacity = *p.Capacity
	}
	if p.MeetingLink != nil {
		c.MeetingLink = *p.MeetingLink
	}
	if p.Recurrence != nil {
		c.Recurrence = p.Recurrence
	}
	c.IsFull = c.Occupied >= c.Capacity
	return c
}

// ClassLess orders classes by date, start time and id.
func ClassLess(a, b *ClassInstance) bool {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c < 0
	}
	if a.StartTime != b.StartTime {
		return a.StartTime < b.StartTime
	}
	return a.ID.String() < b.ID.String()
}
