package handler

import (
	"context"
	"net/http"

	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/response"
	"github.com/Freeeeeet/tutorbook/internal/service"
	"github.com/Freeeeeet/tutorbook/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BookingHandler serves booking endpoints and the tutor conflict pre-check.
type BookingHandler struct {
	scheduling *service.SchedulingService
	logger     *zap.Logger
}

func NewBookingHandler(scheduling *service.SchedulingService, logger *zap.Logger) *BookingHandler {
	return &BookingHandler{scheduling: scheduling, logger: logger}
}

// Create
// POST /api/v1/bookings
func (h *BookingHandler) Create(c *gin.Context) {
	actor, ok := actorOrFail(c)
	if !ok {
		return
	}

	var req CreateBookingRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	in := service.CreateBookingInput{
		ClassID:          req.ClassID,
		TutorID:          req.TutorID,
		DurationMinutes:  req.DurationMinutes,
		PaymentStatus:    req.PaymentStatus,
		PaymentReference: req.PaymentReference,
		Notes:            req.Notes,
	}
	if req.StudentID != nil {
		in.StudentID = *req.StudentID
	}
	if req.Date != nil {
		in.Date = *req.Date
	}
	if req.StartTime != nil {
		in.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		in.EndTime = *req.EndTime
	}

	booking, err := h.scheduling.CreateBooking(c.Request.Context(), actor, in)
	if err != nil {
		failService(c, h.logger, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusCreated, gin.H{"booking": booking}, "Booking created")
}

// Get
// GET /api/v1/bookings/:id
func (h *BookingHandler) Get(c *gin.Context) {
	actor, ok := actorOrFail(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	booking, err := h.scheduling.GetBooking(c.Request.Context(), actor, id)
	if err != nil {
		failService(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"booking": booking})
}

// ListMine
// GET /api/v1/bookings/mine
func (h *BookingHandler) ListMine(c *gin.Context) {
	actor, ok := actorOrFail(c)
	if !ok {
		return
	}

	bookings, err := h.scheduling.ListMyBookings(c.Request.Context(), actor)
	if err != nil {
		failService(c, h.logger, err)
		return
	}
	if bookings == nil {
		bookings = []*model.Booking{}
	}

	response.Success(c, http.StatusOK, gin.H{"bookings": bookings})
}

// Confirm
// POST /api/v1/bookings/:id/confirm
func (h *BookingHandler) Confirm(c *gin.Context) {
	h.transition(c, h.scheduling.ConfirmBooking, "Booking confirmed")
}

// Complete
// POST /api/v1/bookings/:id/complete
func (h *BookingHandler) Complete(c *gin.Context) {
	h.transition(c, h.scheduling.CompleteBooking, "Booking completed")
}

// NoShow
// POST /api/v1/bookings/:id/no-show
func (h *BookingHandler) NoShow(c *gin.Context) {
	h.transition(c, h.scheduling.MarkNoShow, "Booking marked as no-show")
}

// Cancel
// POST /api/v1/bookings/:id/cancel
func (h *BookingHandler) Cancel(c *gin.Context) {
	actor, ok := actorOrFail(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	reason, ok := bindReason(c)
	if !ok {
		return
	}

	booking, err := h.scheduling.CancelBooking(c.Request.Context(), actor, id, reason)
	if err != nil {
		failService(c, h.logger, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, gin.H{"booking": booking}, "Booking cancelled")
}

// UpdatePayment
// PATCH /api/v1/bookings/:id/payment
func (h *BookingHandler) UpdatePayment(c *gin.Context) {
	actor, ok := actorOrFail(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req UpdatePaymentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	booking, err := h.scheduling.UpdatePayment(c.Request.Context(), actor, id, req.PaymentStatus, req.PaymentReference)
	if err != nil {
		failService(c, h.logger, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, gin.H{"booking": booking}, "Payment updated")
}

// CheckConflict
// GET /api/v1/tutors/:id/conflicts?date&start&end&exclude
func (h *BookingHandler) CheckConflict(c *gin.Context) {
	tutorID, ok := idParam(c, "id")
	if !ok {
		return
	}

	fields := map[string]string{}

	date, err := model.ParseDate(c.Query("date"))
	if err != nil {
		fields["date"] = "must be YYYY-MM-DD"
	}
	start, err := model.ParseTimeOfDay(c.Query("start"))
	if err != nil {
		fields["start"] = "must be HH:MM"
	}
	end, err := model.ParseTimeOfDay(c.Query("end"))
	if err != nil {
		fields["end"] = "must be HH:MM"
	}

	var exclude *uuid.UUID
	if v := c.Query("exclude"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			fields["exclude"] = "must be a UUID"
		}
		exclude = &id
	}

	if len(fields) > 0 {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	window := model.Window{Date: date, Start: start, End: end}

	conflict, err := h.scheduling.CheckConflict(c.Request.Context(), tutorID, window, exclude)
	if err != nil {
		failService(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"conflict": conflict})
}

type bookingTransitionFunc func(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Booking, error)

func (h *BookingHandler) transition(c *gin.Context, apply bookingTransitionFunc, message string) {
	actor, ok := actorOrFail(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	booking, err := apply(c.Request.Context(), actor, id)
	if err != nil {
		failService(c, h.logger, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, gin.H{"booking": booking}, message)
}
