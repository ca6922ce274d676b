// Package tokenstore keeps the session token between client invocations.
package tokenstore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNoToken is returned when no usable token is stored.
var ErrNoToken = errors.New("no valid token (login required)")

// Store persists the session token issued by the server.
type Store interface {
	// Load returns the stored token, or ErrNoToken when missing or expired.
	Load() (string, error)
	// Save stores tok until exp.
	Save(tok string, exp time.Time) error
	// Clear removes the stored token.
	Clear() error
}

type tokenFile struct {
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// File stores the token as JSON at Path with 0600 permissions.
type File struct {
	Path string
}

// NewFile returns a file store at dir/session.json.
func NewFile(dir string) *File { return &File{Path: filepath.Join(dir, "session.json")} }

// Load implements Store.
func (f *File) Load() (string, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoToken
		}
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.SessionToken == "" || (!tf.ExpiresAt.IsZero() && time.Now().After(tf.ExpiresAt)) {
		return "", ErrNoToken
	}
	return tf.SessionToken, nil
}

// Save implements Store.
func (f *File) Save(tok string, exp time.Time) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(tokenFile{SessionToken: tok, ExpiresAt: exp}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, b, 0o600)
}

// Clear implements Store. A missing file is not an error.
func (f *File) Clear() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Memory keeps the token in process memory.
type Memory struct {
	mu  sync.Mutex
	tok string
	exp time.Time
}

// Load implements Store.
func (m *Memory) Load() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tok == "" || (!m.exp.IsZero() && time.Now().After(m.exp)) {
		return "", ErrNoToken
	}
	return m.tok, nil
}

// Save implements Store.
func (m *Memory) Save(tok string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tok, m.exp = tok, exp
	return nil
}

// Clear implements Store.
func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tok, m.exp = "", time.Time{}
	return nil
}
