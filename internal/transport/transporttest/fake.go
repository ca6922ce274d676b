// Package transporttest provides an in-memory chat backend implementing transport.Transport for tests.
package transporttest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/and161185/gophchat/internal/errs"
	"github.com/and161185/gophchat/internal/model"
	"github.com/and161185/gophchat/internal/transport"
)

// Method names a Transport operation for failure injection and call counting.
type Method string

const (
	GetSession   Method = "GetSession"
	Login        Method = "Login"
	Logout       Method = "Logout"
	ListMessages Method = "ListMessages"
	PostMessage  Method = "PostMessage"
	ListUsers    Method = "ListUsers"
)

// Hook runs after a call has been served and before its result is delivered.
// Returning an error replaces the result. Blocking in a hook simulates a slow network.
type Hook func(ctx context.Context) error

type account struct {
	id       int64
	password string
}

// Backend is shared state seen by every Client: accounts, the feed and the roster.
type Backend struct {
	mu       sync.Mutex
	accounts map[string]account
	messages []model.Message
	roster   []model.RosterEntry
	nextUser int64
	nextMsg  int64
	now      func() time.Time
}

// NewBackend returns an empty backend using the wall clock.
func NewBackend() *Backend {
	return &Backend{accounts: map[string]account{}, now: time.Now}
}

// SetClock overrides the clock used for message timestamps.
func (b *Backend) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// AddUser registers an offline account and returns its identity.
func (b *Backend) AddUser(username, password string) model.Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextUser++
	b.accounts[username] = account{id: b.nextUser, password: password}
	b.roster = append(b.roster, model.RosterEntry{ID: b.nextUser, Username: username})
	return model.Identity{ID: b.nextUser, Username: username}
}

// SetMessages replaces the feed verbatim.
func (b *Backend) SetMessages(ms []model.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append([]model.Message(nil), ms...)
	for _, m := range ms {
		if m.ID > b.nextMsg {
			b.nextMsg = m.ID
		}
	}
}

// SetRoster replaces the roster verbatim.
func (b *Backend) SetRoster(rs []model.RosterEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roster = append([]model.RosterEntry(nil), rs...)
}

// Messages returns a copy of the feed.
func (b *Backend) Messages() []model.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Message(nil), b.messages...)
}

func (b *Backend) setOnline(id int64, online bool) {
	for i := range b.roster {
		if b.roster[i].ID == id {
			b.roster[i].IsOnline = online
		}
	}
}

// Client returns a new client with its own session against b.
func (b *Backend) Client() *Client {
	return &Client{b: b, errs: map[Method]error{}, calls: map[Method]int{}, hooks: map[Method]Hook{}}
}

// Client is one device talking to a Backend. It implements transport.Transport.
type Client struct {
	b *Backend

	mu      sync.Mutex
	session *model.Identity
	errs    map[Method]error
	calls   map[Method]int
	hooks   map[Method]Hook
}

var _ transport.Transport = (*Client)(nil)

// SetErr makes every call to m fail with err until cleared with a nil err.
func (c *Client) SetErr(m Method, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.errs, m)
		return
	}
	c.errs[m] = err
}

// SetHook installs h for m; nil removes it.
func (c *Client) SetHook(m Method, h Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h == nil {
		delete(c.hooks, m)
		return
	}
	c.hooks[m] = h
}

// Calls returns how many times m was invoked.
func (c *Client) Calls(m Method) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[m]
}

// SignIn establishes a session for id without a Login call.
func (c *Client) SignIn(id model.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = &id
}

func (c *Client) begin(m Method) (*model.Identity, Hook, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[m]++
	var sess *model.Identity
	if c.session != nil {
		s := *c.session
		sess = &s
	}
	return sess, c.hooks[m], c.errs[m]
}

func deliver(ctx context.Context, h Hook) error {
	if h != nil {
		if err := h(ctx); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrNetwork, err)
	}
	return nil
}

// GetSession implements transport.Transport.
func (c *Client) GetSession(ctx context.Context) (*model.Identity, error) {
	sess, h, err := c.begin(GetSession)
	if err != nil {
		return nil, err
	}
	if err := deliver(ctx, h); err != nil {
		return nil, err
	}
	return sess, nil
}

// Login implements transport.Transport.
func (c *Client) Login(ctx context.Context, username, password string) (model.Identity, error) {
	_, h, err := c.begin(Login)
	if err != nil {
		return model.Identity{}, err
	}
	c.b.mu.Lock()
	acc, ok := c.b.accounts[username]
	if ok && acc.password == password {
		c.b.setOnline(acc.id, true)
	}
	c.b.mu.Unlock()
	if !ok || acc.password != password {
		return model.Identity{}, errs.ErrUnauthorized
	}
	if err := deliver(ctx, h); err != nil {
		return model.Identity{}, err
	}
	id := model.Identity{ID: acc.id, Username: username}
	c.SignIn(id)
	return id, nil
}

// Logout implements transport.Transport.
func (c *Client) Logout(ctx context.Context) error {
	sess, h, err := c.begin(Logout)
	if err != nil {
		return err
	}
	if err := deliver(ctx, h); err != nil {
		return err
	}
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	if sess != nil {
		c.b.mu.Lock()
		c.b.setOnline(sess.ID, false)
		c.b.mu.Unlock()
	}
	return nil
}

// ListMessages implements transport.Transport.
func (c *Client) ListMessages(ctx context.Context) ([]model.Message, error) {
	sess, h, err := c.begin(ListMessages)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errs.ErrUnauthorized
	}
	out := c.b.Messages()
	if err := deliver(ctx, h); err != nil {
		return nil, err
	}
	return out, nil
}

// PostMessage implements transport.Transport.
func (c *Client) PostMessage(ctx context.Context, content string) (model.Message, error) {
	sess, h, err := c.begin(PostMessage)
	if err != nil {
		return model.Message{}, err
	}
	if sess == nil {
		return model.Message{}, errs.ErrUnauthorized
	}
	if strings.TrimSpace(content) == "" {
		return model.Message{}, errs.ErrValidation
	}

	c.b.mu.Lock()
	c.b.nextMsg++
	ts := c.b.now().UTC()
	if n := len(c.b.messages); n > 0 && ts.Before(c.b.messages[n-1].Timestamp) {
		ts = c.b.messages[n-1].Timestamp
	}
	m := model.Message{ID: c.b.nextMsg, UserID: sess.ID, Username: sess.Username, Content: content, Timestamp: ts}
	c.b.messages = append(c.b.messages, m)
	c.b.mu.Unlock()

	if err := deliver(ctx, h); err != nil {
		return model.Message{}, err
	}
	return m, nil
}

// ListUsers implements transport.Transport.
func (c *Client) ListUsers(ctx context.Context) ([]model.RosterEntry, error) {
	sess, h, err := c.begin(ListUsers)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errs.ErrUnauthorized
	}
	c.b.mu.Lock()
	out := append([]model.RosterEntry(nil), c.b.roster...)
	c.b.mu.Unlock()
	if err := deliver(ctx, h); err != nil {
		return nil, err
	}
	return out, nil
}
