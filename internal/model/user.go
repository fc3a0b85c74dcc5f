package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateEmail is returned by user stores when the email is taken.
var ErrDuplicateEmail = errors.New("email is already registered")

type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
	RoleAdmin   Role = "admin"
	RoleSystem  Role = "system"
)

// User is the identity collaborator's view of a person.
type User struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Role           Role      `json:"role"`
	TelegramChatID *int64    `json:"telegram_chat_id,omitempty"` // nil until linked through the bot
	CreatedAt      time.Time `json:"created_at"`
}

// Actor is the caller on whose behalf an operation runs. Its id and role are
// supplied by the transport layer and trusted as-is.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// SystemActor is used by the scheduler and by cascading operations.
var SystemActor = Actor{ID: uuid.Nil, Role: RoleSystem}

func (a Actor) IsAdmin() bool  { return a.Role == RoleAdmin }
func (a Actor) IsSystem() bool { return a.Role == RoleSystem }

// Privileged reports whether the actor may override ownership checks.
func (a Actor) Privileged() bool {
	return a.IsAdmin() || a.IsSystem()
}
