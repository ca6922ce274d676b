// Package model defines domain entities shared by the chat client core, the transport and the backend.
package model

import (
	"cmp"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Identity is the authenticated user as seen by the client. Immutable once established.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Credentials carries a login attempt.
type Credentials struct {
	Username string
	Password string
}

// Message is a single feed entry. IDs are server-assigned and unique.
type Message struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Compare orders messages by timestamp, ties broken by id ascending.
func (m Message) Compare(o Message) int {
	if c := m.Timestamp.Compare(o.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(m.ID, o.ID)
}

// RosterEntry is one known user with derived presence.
type RosterEntry struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	IsOnline bool   `json:"is_online"`
}

// SessionState is the client's authentication state.
type SessionState int

const (
	Unauthenticated SessionState = iota
	Authenticating
	Authenticated
)

func (s SessionState) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// PendingSend is an optimistic send awaiting confirmation by a feed refresh.
type PendingSend struct {
	LocalID   uuid.UUID
	Content   string
	StartedAt time.Time
	MessageID int64 // 0 until the post succeeds
}

// ViewModel is the read-only snapshot handed to the presentation layer.
type ViewModel struct {
	State       SessionState
	Identity    *Identity
	Messages    []Message
	Roster      []RosterEntry
	OnlineCount int
	Pending     []PendingSend
}

// User represents an account stored on the server. Passwords are never stored in plaintext.
type User struct {
	ID        int64
	Username  string
	PwdHash   string // encoded Argon2id hash, see internal/crypto
	IsOnline  bool
	CreatedAt time.Time
}

// Identity returns the public view of u.
func (u User) Identity() Identity { return Identity{ID: u.ID, Username: u.Username} }

// Session is a server-side login session; its ID is the JWT "jti".
type Session struct {
	ID        uuid.UUID
	UserID    int64
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Tokens collects an issued session token and its expiry.
type Tokens struct {
	AccessToken string
	SessionID   uuid.UUID
	ExpiresAt   time.Time
}
