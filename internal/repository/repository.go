// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/gophchat/internal/model"
)

// DefaultRoom is the room every message is posted to.
const DefaultRoom = "general"

// UserRepository stores accounts and their presence flag.
type UserRepository interface {
	// Create inserts a new user and fills in its ID and CreatedAt.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id int64) (*model.User, error)
	// GetByUsername loads a user by username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// SetOnline updates the presence flag of a user.
	SetOnline(ctx context.Context, id int64, online bool) error
	// List returns every account with its presence flag, ordered by ID.
	List(ctx context.Context) ([]model.RosterEntry, error)
}

// MessageRepository stores chat messages.
type MessageRepository interface {
	// Create appends a message by userID to room and returns it as stored.
	Create(ctx context.Context, room string, userID int64, content string) (model.Message, error)
	// ListRecent returns the newest limit messages of room, oldest first.
	ListRecent(ctx context.Context, room string, limit int) ([]model.Message, error)
}

// SessionRepository stores login sessions.
type SessionRepository interface {
	// Create inserts a session.
	Create(ctx context.Context, s *model.Session) error
	// Get loads a session by ID.
	Get(ctx context.Context, id uuid.UUID) (*model.Session, error)
	// Revoke marks a session revoked. Revoking twice is not an error.
	Revoke(ctx context.Context, id uuid.UUID) error
	// CountActive returns the number of unrevoked, unexpired sessions of a user.
	CountActive(ctx context.Context, userID int64) (int, error)
}
