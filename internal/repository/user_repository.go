package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	*base.Repository
}

// NewUserRepository creates a new user repository
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{Repository: base.NewRepository(pool)}
}

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, name, email, role, telegram_chat_id)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		RETURNING created_at
	`

	err := r.QueryRow(
		ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.Role,
		user.TelegramChatID,
	).Scan(&user.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("create user: %w", model.ErrDuplicateEmail)
		}
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

// GetByID returns the user or nil if absent
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `
		SELECT id, name, COALESCE(email, ''), role, telegram_chat_id, created_at
		FROM users
		WHERE id = $1
	`

	var user model.User
	err := r.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.TelegramChatID,
		&user.CreatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}

	return &user, nil
}

// SetTelegramChatID links the chat the notifier writes to
func (r *UserRepository) SetTelegramChatID(ctx context.Context, id uuid.UUID, chatID int64) (bool, error) {
	query := `UPDATE users SET telegram_chat_id = $2 WHERE id = $1`

	affected, err := r.ExecAffected(ctx, query, id, chatID)
	if err != nil {
		return false, fmt.Errorf("set telegram chat id: %w", err)
	}

	return affected > 0, nil
}
