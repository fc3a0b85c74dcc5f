package handler

import (
	"errors"
	"net/http"

	"github.com/Freeeeeet/tutorbook/internal/middleware"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/response"
	"github.com/Freeeeeet/tutorbook/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// failService maps a service error category to a status code and envelope.
func failService(c *gin.Context, logger *zap.Logger, err error) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{ve.Field: ve.Reason})
	case errors.Is(err, service.ErrValidation):
		response.FailWithMessage(c, http.StatusBadRequest, response.ErrValidation, err.Error())
	case errors.Is(err, service.ErrNotFound):
		response.FailWithMessage(c, http.StatusNotFound, response.ErrNotFound, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	case errors.Is(err, service.ErrClassFull):
		response.Fail(c, http.StatusConflict, response.ErrClassFull)
	case errors.Is(err, service.ErrSchedulingConflict):
		response.Fail(c, http.StatusConflict, response.ErrSchedulingConflict)
	case errors.Is(err, service.ErrClassHasBookings):
		response.Fail(c, http.StatusConflict, response.ErrClassHasBookings)
	case errors.Is(err, service.ErrInvalidTransition):
		response.FailWithMessage(c, http.StatusConflict, response.ErrInvalidTransition, err.Error())
	default:
		logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", response.RequestID(c)),
			zap.Error(err),
		)
		_ = c.Error(err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

func actorOrFail(c *gin.Context) (model.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
	}
	return actor, ok
}

func idParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
