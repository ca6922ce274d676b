// Package transport defines the remote chat service capability consumed by the client core.
package transport

import (
	"context"

	"github.com/and161185/gophchat/internal/model"
)

// Transport is the remote chat service. Every call carries the session credentials implicitly.
//
// Errors are classified with the sentinels in internal/errs: errs.ErrUnauthorized for bad
// credentials or an invalid session, errs.ErrValidation for rejected input and errs.ErrNetwork
// for connectivity or server-side failures.
type Transport interface {
	// GetSession returns the current identity, or nil without error when unauthenticated.
	GetSession(ctx context.Context) (*model.Identity, error)
	// Login authenticates and establishes a session.
	Login(ctx context.Context, username, password string) (model.Identity, error)
	// Logout invalidates the session remotely.
	Logout(ctx context.Context) error
	// ListMessages returns the full feed ordered oldest to newest.
	ListMessages(ctx context.Context) ([]model.Message, error)
	// PostMessage creates a message authored by the session user.
	PostMessage(ctx context.Context, content string) (model.Message, error)
	// ListUsers returns the full roster.
	ListUsers(ctx context.Context) ([]model.RosterEntry, error)
}
