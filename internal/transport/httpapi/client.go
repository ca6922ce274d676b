// Package httpapi implements transport.Transport over the chat service REST API.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/gophchat/internal/api"
	"github.com/and161185/gophchat/internal/errs"
	"github.com/and161185/gophchat/internal/model"
	"github.com/and161185/gophchat/internal/tokenstore"
	"github.com/and161185/gophchat/internal/transport"
)

// maxBody caps how much of a response body is read.
const maxBody = 8 << 20

// Client talks to the chat backend. The session cookie is kept in a tokenstore.Store
// so a session survives process restarts when a file store is used.
type Client struct {
	base  *url.URL
	hc    *http.Client
	store tokenstore.Store
	log   *zap.Logger
}

var _ transport.Transport = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.hc = hc } }

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option { return func(c *Client) { c.log = log } }

// New constructs a client for baseURL (e.g. "http://localhost:5001").
func New(baseURL string, store tokenstore.Store, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	if store == nil {
		store = &tokenstore.Memory{}
	}
	c := &Client{base: u, hc: &http.Client{}, store: store, log: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// GetSession implements transport.Transport. A 401 answer means "no session".
func (c *Client) GetSession(ctx context.Context) (*model.Identity, error) {
	if _, err := c.store.Load(); errors.Is(err, tokenstore.ErrNoToken) {
		return nil, nil
	}
	var id model.Identity
	if err := c.do(ctx, http.MethodGet, api.PathMe, nil, &id); err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			return nil, nil
		}
		return nil, err
	}
	return &id, nil
}

// Register creates an account. It is not part of transport.Transport.
func (c *Client) Register(ctx context.Context, username, password string) (model.Identity, error) {
	var id model.Identity
	err := c.do(ctx, http.MethodPost, api.PathRegister, api.CredentialsRequest{Username: username, Password: password}, &id)
	return id, err
}

// Login implements transport.Transport.
func (c *Client) Login(ctx context.Context, username, password string) (model.Identity, error) {
	var id model.Identity
	err := c.do(ctx, http.MethodPost, api.PathLogin, api.CredentialsRequest{Username: username, Password: password}, &id)
	return id, err
}

// Logout implements transport.Transport. The stored token is dropped whatever the server answers.
func (c *Client) Logout(ctx context.Context) error {
	defer func() {
		if err := c.store.Clear(); err != nil {
			c.log.Warn("clear session token", zap.Error(err))
		}
	}()
	if _, err := c.store.Load(); errors.Is(err, tokenstore.ErrNoToken) {
		return nil
	}
	return c.do(ctx, http.MethodPost, api.PathLogout, nil, nil)
}

// ListMessages implements transport.Transport.
func (c *Client) ListMessages(ctx context.Context) ([]model.Message, error) {
	var out []model.Message
	if err := c.do(ctx, http.MethodGet, api.PathMessages, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PostMessage implements transport.Transport.
func (c *Client) PostMessage(ctx context.Context, content string) (model.Message, error) {
	var m model.Message
	err := c.do(ctx, http.MethodPost, api.PathMessages, api.PostMessageRequest{Content: content}, &m)
	return m, err
}

// ListUsers implements transport.Transport.
func (c *Client) ListUsers(ctx context.Context) ([]model.RosterEntry, error) {
	var out []model.RosterEntry
	if err := c.do(ctx, http.MethodGet, api.PathUsers, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s %s: encode: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok, err := c.store.Load(); err == nil {
		req.AddCookie(&http.Cookie{Name: api.SessionCookie, Value: tok})
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", errs.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()
	c.log.Debug("http",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("dur", time.Since(start)),
	)

	c.captureSession(resp)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("%w: %s %s: read body: %v", errs.ErrNetwork, method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method, path, resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s %s: decode: %v", errs.ErrNetwork, method, path, err)
	}
	return nil
}

// captureSession stores a session cookie set (or cleared) by the server.
func (c *Client) captureSession(resp *http.Response) {
	for _, ck := range resp.Cookies() {
		if ck.Name != api.SessionCookie {
			continue
		}
		var err error
		if ck.Value == "" || ck.MaxAge < 0 {
			err = c.store.Clear()
		} else {
			exp := ck.Expires
			if ck.MaxAge > 0 {
				exp = time.Now().Add(time.Duration(ck.MaxAge) * time.Second)
			}
			err = c.store.Save(ck.Value, exp)
		}
		if err != nil {
			c.log.Warn("store session token", zap.Error(err))
		}
	}
}

// statusError maps an HTTP status to the errs sentinels.
func statusError(method, path string, code int, body []byte) error {
	msg := http.StatusText(code)
	var er api.ErrorResponse
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		msg = er.Error
	}

	var sentinel error
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		sentinel = errs.ErrUnauthorized
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		sentinel = errs.ErrValidation
	case code == http.StatusNotFound:
		sentinel = errs.ErrNotFound
	case code == http.StatusConflict:
		sentinel = errs.ErrAlreadyExists
	case code == http.StatusTooManyRequests:
		sentinel = errs.ErrRateLimited
	default:
		sentinel = errs.ErrNetwork
	}
	return fmt.Errorf("%w: %s %s: %d %s", sentinel, method, path, code, msg)
}
