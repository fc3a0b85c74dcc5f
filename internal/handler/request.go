package handler

import (
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/google/uuid"
)

type CreateClassRequest struct {
	TutorID     *uuid.UUID        `json:"tutor_id"`
	Title       string            `json:"title" binding:"required,max=200"`
	Description string            `json:"description" binding:"max=2000"`
	Date        *model.Date       `json:"date" binding:"required"`
	StartTime   *model.TimeOfDay  `json:"start_time" binding:"required"`
	EndTime     *model.TimeOfDay  `json:"end_time" binding:"required"`
	Capacity    int               `json:"capacity" binding:"required,min=1"`
	MeetingLink string            `json:"meeting_link" binding:"omitempty,url"`
	Recurrence  *model.Recurrence `json:"recurrence"`
}

type UpdateClassRequest struct {
	Title       *string           `json:"title" binding:"omitempty,min=1,max=200"`
	Description *string           `json:"description" binding:"omitempty,max=2000"`
	Date        *model.Date       `json:"date"`
	StartTime   *model.TimeOfDay  `json:"start_time"`
	EndTime     *model.TimeOfDay  `json:"end_time"`
	Capacity    *int              `json:"capacity" binding:"omitempty,min=1"`
	MeetingLink *string           `json:"meeting_link" binding:"omitempty,url"`
	Recurrence  *model.Recurrence `json:"recurrence"`
}

func (r UpdateClassRequest) Patch() model.ClassPatch {
	return model.ClassPatch{
		Title:       r.Title,
		Description: r.Description,
		Date:        r.Date,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		Capacity:    r.Capacity,
		MeetingLink: r.MeetingLink,
		Recurrence:  r.Recurrence,
	}
}

// CreateBookingRequest books a seat in a class when class_id is set, or a
// direct session with an explicit window otherwise. A direct session without
// tutor_id is an ad-hoc consultation.
type CreateBookingRequest struct {
	StudentID        *uuid.UUID       `json:"student_id"`
	ClassID          *uuid.UUID       `json:"class_id"`
	TutorID          *uuid.UUID       `json:"tutor_id"`
	Date             *model.Date      `json:"date" binding:"required_without=ClassID"`
	StartTime        *model.TimeOfDay `json:"start_time" binding:"required_without=ClassID"`
	EndTime          *model.TimeOfDay `json:"end_time" binding:"required_without=ClassID"`
	DurationMinutes  int              `json:"duration_minutes" binding:"omitempty,min=1"`
	PaymentStatus    string           `json:"payment_status" binding:"max=50"`
	PaymentReference string           `json:"payment_reference" binding:"max=200"`
	Notes            string           `json:"notes" binding:"max=2000"`
}

type ReasonRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type UpdatePaymentRequest struct {
	PaymentStatus    string `json:"payment_status" binding:"required,max=50"`
	PaymentReference string `json:"payment_reference" binding:"max=200"`
}

type RegisterUserRequest struct {
	Name  string     `json:"name" binding:"required,max=200"`
	Email string     `json:"email" binding:"omitempty,email"`
	Role  model.Role `json:"role" binding:"required,oneof=student tutor admin"`
}

type LinkTelegramRequest struct {
	ChatID int64 `json:"chat_id" binding:"required"`
}
