package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UserService struct {
	users  UserDirectory
	logger *zap.Logger
}

// NewUserService returns the user directory service.
func NewUserService(users UserDirectory, logger *zap.Logger) *UserService {
	return &UserService{
		users:  users,
		logger: logger,
	}
}

type RegisterUserInput struct {
	Name  string
	Email string
	Role  model.Role
}

// Register adds a user to the directory. Only admins provision accounts;
// authentication itself happens elsewhere.
func (s *UserService) Register(ctx context.Context, actor model.Actor, in RegisterUserInput) (*model.User, error) {
	if !actor.Privileged() {
		return nil, fmt.Errorf("register user: %w", ErrUnauthorized)
	}

	user := &model.User{
		ID:    uuid.New(),
		Name:  strings.TrimSpace(in.Name),
		Email: strings.ToLower(strings.TrimSpace(in.Email)),
		Role:  in.Role,
	}
	if user.Name == "" {
		return nil, invalid("name", "is required")
	}
	switch user.Role {
	case model.RoleStudent, model.RoleTutor, model.RoleAdmin:
	default:
		return nil, invalid("role", "must be one of student, tutor, admin")
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, model.ErrDuplicateEmail) {
			return nil, invalid("email", "is already registered")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("New user registered",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)),
	)

	return user, nil
}

// GetByID returns the user or ErrUserNotFound.
func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// LinkTelegram stores the chat notifications for the user are sent to.
func (s *UserService) LinkTelegram(ctx context.Context, id uuid.UUID, chatID int64) error {
	if chatID == 0 {
		return invalid("chat_id", "is required")
	}

	ok, err := s.users.SetTelegramChatID(ctx, id, chatID)
	if err != nil {
		return fmt.Errorf("link telegram chat: %w", err)
	}
	if !ok {
		return ErrUserNotFound
	}

	s.logger.Info("Telegram chat linked",
		zap.String("user_id", id.String()),
		zap.Int64("chat_id", chatID),
	)

	return nil
}
