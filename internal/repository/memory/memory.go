// Package memory implements the repository interfaces in process memory.
// State is lost on restart; it backs the server's -store=memory mode and tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/gophchat/internal/errs"
	"github.com/and161185/gophchat/internal/model"
	"github.com/and161185/gophchat/internal/repository"
)

// Store holds users, messages and sessions behind one lock.
type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	users    []*model.User
	messages []storedMessage
	sessions map[uuid.UUID]*model.Session
}

type storedMessage struct {
	room string
	msg  model.Message
}

// New returns an empty store using time.Now.
func New() *Store {
	return &Store{now: time.Now, sessions: make(map[uuid.UUID]*model.Session)}
}

// Users returns the user repository view.
func (s *Store) Users() *Users { return &Users{s} }

// Messages returns the message repository view.
func (s *Store) Messages() *Messages { return &Messages{s} }

// Sessions returns the session repository view.
func (s *Store) Sessions() *Sessions { return &Sessions{s} }

// Users implements repository.UserRepository.
type Users struct{ s *Store }

var _ repository.UserRepository = (*Users)(nil)

func (r *Users) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, x := range r.s.users {
		if x.Username == u.Username {
			return errs.ErrAlreadyExists
		}
	}
	u.ID = int64(len(r.s.users) + 1)
	u.CreatedAt = r.s.now()
	c := *u
	r.s.users = append(r.s.users, &c)
	return nil
}

func (r *Users) GetByID(_ context.Context, id int64) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := r.s.user(id)
	if u == nil {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (r *Users) GetByUsername(_ context.Context, username string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r *Users) SetOnline(_ context.Context, id int64, online bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := r.s.user(id)
	if u == nil {
		return errs.ErrNotFound
	}
	u.IsOnline = online
	return nil
}

func (r *Users) List(context.Context) ([]model.RosterEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.RosterEntry, 0, len(r.s.users))
	for _, u := range r.s.users {
		out = append(out, model.RosterEntry{ID: u.ID, Username: u.Username, IsOnline: u.IsOnline})
	}
	return out, nil
}

// user expects s.mu held. IDs are dense from 1.
func (s *Store) user(id int64) *model.User {
	if id < 1 || id > int64(len(s.users)) {
		return nil
	}
	return s.users[id-1]
}

// Messages implements repository.MessageRepository.
type Messages struct{ s *Store }

var _ repository.MessageRepository = (*Messages)(nil)

// Create stamps the message with a timestamp never earlier than the previous one.
func (r *Messages) Create(_ context.Context, room string, userID int64, content string) (model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := r.s.user(userID)
	if u == nil {
		return model.Message{}, errs.ErrNotFound
	}
	ts := r.s.now()
	if n := len(r.s.messages); n > 0 && ts.Before(r.s.messages[n-1].msg.Timestamp) {
		ts = r.s.messages[n-1].msg.Timestamp
	}
	m := model.Message{
		ID:        int64(len(r.s.messages) + 1),
		UserID:    userID,
		Username:  u.Username,
		Content:   content,
		Timestamp: ts,
	}
	r.s.messages = append(r.s.messages, storedMessage{room: room, msg: m})
	return m, nil
}

func (r *Messages) ListRecent(_ context.Context, room string, limit int) ([]model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Message, 0, limit)
	for i := len(r.s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if r.s.messages[i].room == room {
			out = append(out, r.s.messages[i].msg)
		}
	}
	slices.Reverse(out)
	return out, nil
}

// Sessions implements repository.SessionRepository.
type Sessions struct{ s *Store }

var _ repository.SessionRepository = (*Sessions)(nil)

func (r *Sessions) Create(_ context.Context, sess *model.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sessions[sess.ID]; ok {
		return errs.ErrAlreadyExists
	}
	c := *sess
	r.s.sessions[sess.ID] = &c
	return nil
}

func (r *Sessions) Get(_ context.Context, id uuid.UUID) (*model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *sess
	return &c, nil
}

func (r *Sessions) Revoke(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sess, ok := r.s.sessions[id]; ok && sess.RevokedAt == nil {
		t := r.s.now()
		sess.RevokedAt = &t
	}
	return nil
}

func (r *Sessions) CountActive(_ context.Context, userID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	n := 0
	for _, sess := range r.s.sessions {
		if sess.UserID == userID && sess.RevokedAt == nil && now.Before(sess.ExpiresAt) {
			n++
		}
	}
	return n, nil
}
