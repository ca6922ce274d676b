// Package session tracks the authenticated identity of the chat client.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/gophchat/internal/errs"
	"github.com/and161185/gophchat/internal/model"
	"github.com/and161185/gophchat/internal/transport"
)

// ErrLoginInProgress is returned when Login is called while another attempt is running.
var ErrLoginInProgress = errors.New("login already in progress")

// Guard owns the session state machine:
//
//	Unauthenticated -> Authenticating -> Authenticated | Unauthenticated
//	Authenticated   -> Unauthenticated (logout, whatever the remote outcome)
type Guard struct {
	tr      transport.Transport
	timeout time.Duration
	log     *zap.Logger
	notify  func()

	mu       sync.Mutex
	state    model.SessionState
	identity *model.Identity
}

// NewGuard constructs an unauthenticated guard. notify is called after every state change and may be nil.
func NewGuard(tr transport.Transport, timeout time.Duration, log *zap.Logger, notify func()) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	if notify == nil {
		notify = func() {}
	}
	return &Guard{tr: tr, timeout: timeout, log: log, notify: notify}
}

// CheckSession asks the transport whether a valid session exists.
// Transport failures are logged and reported as "no session".
func (g *Guard) CheckSession(ctx context.Context) *model.Identity {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	id, err := g.tr.GetSession(ctx)
	if err != nil {
		g.log.Warn("session check failed", zap.Error(err))
		id = nil
	}

	g.mu.Lock()
	if g.state == model.Authenticating {
		// a concurrent Login owns the transition
		g.mu.Unlock()
		return cloneIdentity(id)
	}
	changed := g.set(id)
	g.mu.Unlock()

	if changed {
		g.notify()
	}
	return cloneIdentity(id)
}

// Login authenticates with the given credentials. Bad credentials yield errs.ErrUnauthorized.
func (g *Guard) Login(ctx context.Context, creds model.Credentials) (model.Identity, error) {
	if strings.TrimSpace(creds.Username) == "" || creds.Password == "" {
		return model.Identity{}, fmt.Errorf("login: %w: empty username/password", errs.ErrValidation)
	}

	g.mu.Lock()
	if g.state == model.Authenticating {
		g.mu.Unlock()
		return model.Identity{}, ErrLoginInProgress
	}
	g.state, g.identity = model.Authenticating, nil
	g.mu.Unlock()
	g.notify()

	lctx, cancel := g.withTimeout(ctx)
	defer cancel()
	id, err := g.tr.Login(lctx, creds.Username, creds.Password)

	g.mu.Lock()
	if err != nil {
		g.set(nil)
	} else {
		g.set(&id)
	}
	g.mu.Unlock()
	g.notify()

	if err != nil {
		g.log.Info("login failed", zap.String("username", creds.Username), zap.Error(err))
		return model.Identity{}, fmt.Errorf("login: %w", err)
	}
	g.log.Info("logged in", zap.Int64("user_id", id.ID), zap.String("username", id.Username))
	return id, nil
}

// Logout drops the local session unconditionally, then attempts remote invalidation.
// The remote outcome never blocks or fails the logout; errors are only logged.
func (g *Guard) Logout(ctx context.Context) {
	g.mu.Lock()
	changed := g.set(nil)
	g.mu.Unlock()
	if changed {
		g.notify()
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	if err := g.tr.Logout(ctx); err != nil {
		g.log.Warn("remote logout failed, local session dropped anyway", zap.Error(err))
		return
	}
	g.log.Info("logged out")
}

// State returns the current session state.
func (g *Guard) State() model.SessionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Identity returns a copy of the authenticated identity, or nil.
func (g *Guard) Identity() *model.Identity {
	g.mu.Lock()
	defer g.mu.Unlock()
	return cloneIdentity(g.identity)
}

// set applies identity (nil means unauthenticated) and reports whether anything changed. Callers hold mu.
func (g *Guard) set(id *model.Identity) bool {
	prevState, prev := g.state, g.identity
	if id == nil {
		g.state, g.identity = model.Unauthenticated, nil
	} else {
		g.state, g.identity = model.Authenticated, cloneIdentity(id)
	}
	if prevState != g.state {
		return true
	}
	return prev != nil && g.identity != nil && *prev != *g.identity
}

func (g *Guard) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func cloneIdentity(id *model.Identity) *model.Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
