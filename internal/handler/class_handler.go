package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/response"
	"github.com/Freeeeeet/tutorbook/internal/service"
	"github.com/Freeeeeet/tutorbook/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClassHandler serves class instance endpoints.
type ClassHandler struct {
	scheduling *service.SchedulingService
	logger     *zap.Logger
}

func NewClassHandler(scheduling *service.SchedulingService, logger *zap.Logger) *ClassHandler {
	return &ClassHandler{scheduling: scheduling, logger: logger}
}

// ListAvailable
// GET /api/v1/classes?tutor_id&from&to&only_bookable&limit&offset
func (h *ClassHandler) ListAvailable(c *gin.Context) {
	filter, fields := parseClassFilter(c)
	if fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	classes, err := h.scheduling.GetAvailableClasses(c.Request.Context(), filter)
	if err != nil {
		failService(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"classes": classes, "limit": filter.Normalized().Limit, "offset": filter.Offset})
}

func parseClassFilter(c *gin.Context) (model.ClassFilter, map[string]string) {
	var filter model.ClassFilter
	fields := map[string]string{}

	if v := c.Query("tutor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			fields["tutor_id"] = "must be a UUID"
		} else {
			filter.TutorID = &id
		}
	}
	for name, dst := range map[string]**model.Date{"from": &filter.From, "to": &filter.To} {
		if v := c.Query(name); v != "" {
			d, err := model.ParseDate(v)
			if err != nil {
				fields[name] = "must be YYYY-MM-DD"
				continue
			}
			*dst = &d
		}
	}
	if v := c.Query("only_bookable"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			fields["only_bookable"] = "must be a boolean"
		}
		filter.OnlyBookable = b
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := c.Query(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				fields[name] = "must be a non-negative integer"
				continue
			}
			*dst = n
		}
	}

	if len(fields) > 0 {
		return filter, fields
	}
	return filter, nil
}

// Get
// GET /api/v1/classes/:id
func (h *ClassHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	class, err := h.scheduling.GetClass(c.Request.Context(), id)
	if err != nil {
		failService(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"class": model.NewClassAvailability(class)})
}

// Create
// POST /api/v1/classes
func (h *ClassHandler) Create(c *gin.Context) {
	actor, ok := actorOrFail(c)
	if !ok {
		return
	}

	var req CreateClassRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	in := service.CreateClassInput{
		Title:       req.Title,
		Description: req.Description,
		Date:        *req.Date,
		StartTime:   *req.StartTime,
		EndTime:     *req.EndTime,
		Capacity:    req.Capacity,
		MeetingLink: req.MeetingLink,
		Recurrence:  req.Recurrence,
	}
	if req.TutorID != nil {
		in.TutorID = *req.TutorID
	}

	class, err := h.scheduling.CreateClass(c.Request.Context(), actor, in)
	if err != nil {
		failService(c, h.logger, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusCreated, gin.H{"class": class}, "Class created")
}

// Update
// PATCH /api/v1/classes/:id
func (h *ClassHandler) Update(c *gin.Context) {
	actor, ok := actorOrFail(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req UpdateClassRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	class, err := h.scheduling.UpdateClass(c.Request.Context(), actor, id, req.Patch())
	if err != nil {
		failService(c, h.logger, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, gin.H{"class": class}, "Class updated")
}

// Delete
// DELETE /api/v1/classes/:id
func (h *ClassHandler) Delete(c *gin.Context) {
	actor, ok := actorOrFail(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.scheduling.DeleteClass(c.Request.Context(), actor, id); err != nil {
		failService(c, h.logger, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, nil, "Class deleted")
}

// Cancel
// POST /api/v1/classes/:id/cancel
func (h *ClassHandler) Cancel(c *gin.Context) {
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

	class, err := h.scheduling.CancelClass(c.Request.Context(), actor, id, reason)
	if err != nil {
		failService(c, h.logger, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, gin.H{"class": class}, "Class cancelled")
}

// Start
// POST /api/v1/classes/:id/start
func (h *ClassHandler) Start(c *gin.Context) {
	h.transition(c, h.scheduling.StartClass, "Class started")
}

// Complete
// POST /api/v1/classes/:id/complete
func (h *ClassHandler) Complete(c *gin.Context) {
	h.transition(c, h.scheduling.CompleteClass, "Class completed")
}

type classTransitionFunc func(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.ClassInstance, error)

func (h *ClassHandler) transition(c *gin.Context, apply classTransitionFunc, message string) {
	actor, ok := actorOrFail(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	class, err := apply(c.Request.Context(), actor, id)
	if err != nil {
		failService(c, h.logger, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, gin.H{"class": class}, message)
}

// bindReason reads the optional {"reason"} body. An empty body is allowed.
func bindReason(c *gin.Context) (string, bool) {
	if c.Request.ContentLength == 0 {
		return "", true
	}
	var req ReasonRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return "", false
	}
	return req.Reason, true
}
