package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/google/uuid"
)

type UserRepository struct {
	s *Store
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	var err error
	r.s.write(ctx, func() func() {
		if _, ok := r.s.users[user.ID]; ok {
			err = fmt.Errorf("user %s already exists", user.ID)
			return nil
		}
		for _, u := range r.s.users {
			if user.Email != "" && strings.EqualFold(u.Email, user.Email) {
				err = fmt.Errorf("%s: %w", user.Email, model.ErrDuplicateEmail)
				return nil
			}
		}
		user.CreatedAt = r.s.now()
		r.s.users[user.ID] = cloneUser(user)
		id := user.ID
		return func() { delete(r.s.users, id) }
	})
	return err
}

func (r *UserRepository) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return cloneUser(r.s.users[id]), nil
}

func (r *UserRepository) SetTelegramChatID(ctx context.Context, id uuid.UUID, chatID int64) (bool, error) {
	found := false
	r.s.write(ctx, func() func() {
		u, ok := r.s.users[id]
		if !ok {
			return nil
		}
		found = true
		prev := u.TelegramChatID
		u.TelegramChatID = &chatID
		return func() { u.TelegramChatID = prev }
	})
	return found, nil
}
