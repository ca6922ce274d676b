// Package chat composes session, presence and feed state into one view for the presentation layer.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/gophchat/internal/errs"
	"github.com/and161185/gophchat/internal/feed"
	"github.com/and161185/gophchat/internal/model"
	"github.com/and161185/gophchat/internal/poller"
	"github.com/and161185/gophchat/internal/presence"
	"github.com/and161185/gophchat/internal/session"
	"github.com/and161185/gophchat/internal/transport"
)

// ErrAlreadyLoggedIn is returned by Login while a session is active.
var ErrAlreadyLoggedIn = errors.New("already logged in")

// DefaultPollInterval is the refresh cadence of both pollers.
const DefaultPollInterval = 2 * time.Second

// Config tunes the controller.
type Config struct {
	// PollInterval is the cadence of message and roster polling (default DefaultPollInterval).
	PollInterval time.Duration
	// RequestTimeout bounds each transport call (default PollInterval).
	RequestTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = c.PollInterval
	}
	return c
}

// Controller owns the lifecycle of a chat session. The guard, tracker and synchronizer each own
// their state; the controller only reads snapshots of them.
type Controller struct {
	cfg Config
	log *zap.Logger

	guard    *session.Guard
	roster   *presence.Tracker
	feed     *feed.Synchronizer
	msgPoll  *poller.Task
	userPoll *poller.Task

	updates  chan model.ViewModel
	notifyMu sync.Mutex

	lifeMu  sync.Mutex // serializes Start/Login/Logout/Close
	baseCtx context.Context
	closed  bool
}

// New wires a controller over tr. Nothing runs until Start or Login.
func New(tr transport.Transport, cfg Config, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	c := &Controller{
		cfg:     cfg,
		log:     log,
		updates: make(chan model.ViewModel, 1),
		baseCtx: context.Background(),
	}
	c.guard = session.NewGuard(tr, cfg.RequestTimeout, log.Named("session"), c.publish)
	c.roster = presence.NewTracker(tr, cfg.RequestTimeout, log.Named("presence"), c.publish)
	c.feed = feed.NewSynchronizer(tr, cfg.RequestTimeout, log.Named("feed"), c.publish)

	c.msgPoll = poller.New("messages", cfg.PollInterval, func(ctx context.Context) error {
		_, err := c.feed.Refresh(ctx)
		return err
	}, log)
	c.userPoll = poller.New("users", cfg.PollInterval, func(ctx context.Context) error {
		_, err := c.roster.Refresh(ctx)
		return err
	}, log)
	return c
}

// Start resolves an existing session and, when one is found, starts polling.
// ctx also bounds the lifetime of pollers started later by Login.
func (c *Controller) Start(ctx context.Context) *model.Identity {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.closed {
		return nil
	}
	c.baseCtx = ctx

	id := c.guard.CheckSession(ctx)
	if id == nil {
		// the session may have been lost since an earlier Start
		c.stopPollers()
		c.feed.Reset()
		c.roster.Reset()
		return nil
	}
	c.startPollers()
	return id
}

// Login authenticates and starts polling on success. It fails with ErrAlreadyLoggedIn while a
// session is active; Logout first.
func (c *Controller) Login(ctx context.Context, creds model.Credentials) (model.Identity, error) {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.closed {
		return model.Identity{}, fmt.Errorf("login: controller closed")
	}
	if id := c.guard.Identity(); id != nil {
		return model.Identity{}, fmt.Errorf("login: %w as %s", ErrAlreadyLoggedIn, id.Username)
	}

	// a previous user's view must not leak into the new session
	c.stopPollers()
	c.feed.Reset()
	c.roster.Reset()

	id, err := c.guard.Login(ctx, creds)
	if err != nil {
		return model.Identity{}, err
	}
	c.startPollers()
	return id, nil
}

// Send posts a message for the authenticated user. Blank content fails with errs.ErrValidation
// without a network call; post failures are returned so the caller can keep its draft.
func (c *Controller) Send(ctx context.Context, content string) (model.Message, error) {
	if strings.TrimSpace(content) == "" {
		return model.Message{}, fmt.Errorf("send: %w: empty message", errs.ErrValidation)
	}
	c.lifeMu.Lock()
	authed := c.guard.State() == model.Authenticated
	epoch := c.feed.Epoch()
	c.lifeMu.Unlock()
	if !authed {
		return model.Message{}, fmt.Errorf("send: %w: not logged in", errs.ErrUnauthorized)
	}
	// a Logout after this point resets the feed, so the send is refused or its result dropped
	return c.feed.SendIn(ctx, epoch, content)
}

// Logout stops both pollers, drops the cached feed and roster, then logs out.
// Local state is cleared even when the remote logout fails.
func (c *Controller) Logout(ctx context.Context) {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.stopPollers()
	c.feed.Reset()
	c.roster.Reset()
	c.guard.Logout(ctx)
}

// Close stops polling. The session itself is kept. Idempotent.
func (c *Controller) Close() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.stopPollers()
}

// Polling reports whether both pollers are running.
func (c *Controller) Polling() bool {
	return c.msgPoll.Running() && c.userPoll.Running()
}

// ViewModel composes a read-only snapshot. Messages may be newer than the roster or vice versa.
func (c *Controller) ViewModel() model.ViewModel {
	return model.ViewModel{
		State:       c.guard.State(),
		Identity:    c.guard.Identity(),
		Messages:    c.feed.Messages(),
		Roster:      c.roster.Roster(),
		OnlineCount: c.roster.OnlineCount(),
		Pending:     c.feed.Pending(),
	}
}

// Updates delivers a fresh ViewModel after every state change. Only the latest snapshot is
// kept, so a slow reader skips intermediate states but never misses the final one.
func (c *Controller) Updates() <-chan model.ViewModel {
	return c.updates
}

func (c *Controller) publish() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	vm := c.ViewModel()
	select {
	case c.updates <- vm:
		return
	default:
	}
	select {
	case <-c.updates:
	default:
	}
	c.updates <- vm
}

func (c *Controller) startPollers() {
	c.msgPoll.Start(c.baseCtx)
	c.userPoll.Start(c.baseCtx)
	c.log.Debug("polling started", zap.Duration("interval", c.cfg.PollInterval))
}

func (c *Controller) stopPollers() {
	c.msgPoll.Stop()
	c.userPoll.Stop()
}
