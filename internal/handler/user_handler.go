package handler

import (
	"net/http"

	"github.com/Freeeeeet/tutorbook/internal/response"
	"github.com/Freeeeeet/tutorbook/internal/service"
	"github.com/Freeeeeet/tutorbook/internal/validator"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type UserHandler struct {
	users  *service.UserService
	logger *zap.Logger
}

func NewUserHandler(users *service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// Register
// POST /api/v1/users (admin)
func (h *UserHandler) Register(c *gin.Context) {
	actor, ok := actorOrFail(c)
	if !ok {
		return
	}

	var req RegisterUserRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	user, err := h.users.Register(c.Request.Context(), actor, service.RegisterUserInput{
		Name:  req.Name,
		Email: req.Email,
		Role:  req.Role,
	})
	if err != nil {
		failService(c, h.logger, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusCreated, gin.H{"user": user}, "User registered")
}

// Me
// GET /api/v1/users/me
func (h *UserHandler) Me(c *gin.Context) {
	actor, ok := actorOrFail(c)
	if !ok {
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), actor.ID)
	if err != nil {
		failService(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": user})
}

// LinkTelegram
// PUT /api/v1/users/me/telegram
func (h *UserHandler) LinkTelegram(c *gin.Context) {
	actor, ok := actorOrFail(c)
	if !ok {
		return
	}

	var req LinkTelegramRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.users.LinkTelegram(c.Request.Context(), actor.ID, req.ChatID); err != nil {
		failService(c, h.logger, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, nil, "Telegram chat linked")
}
