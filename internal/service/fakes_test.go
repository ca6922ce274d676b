package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/gophchat/internal/errs"
	"github.com/and161185/gophchat/internal/limiter"
	"github.com/and161185/gophchat/internal/model"
	"github.com/and161185/gophchat/internal/repository"
)

type fakeUsers struct {
	mu     sync.Mutex
	byID   map[int64]*model.User
	nextID int64

	createErr error
	getErr    error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func newFakeUsers() *fakeUsers { return &fakeUsers{byID: map[int64]*model.User{}} }

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, x := range f.byID {
		if x.Username == u.Username {
			return errs.ErrAlreadyExists
		}
	}
	f.nextID++
	u.ID = f.nextID
	u.CreatedAt = time.Now()
	cpy := *u
	f.byID[u.ID] = &cpy
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.byID {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeUsers) SetOnline(_ context.Context, id int64, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.IsOnline = online
	return nil
}

func (f *fakeUsers) List(context.Context) ([]model.RosterEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.RosterEntry, 0, len(f.byID))
	for _, u := range f.byID {
		out = append(out, model.RosterEntry{ID: u.ID, Username: u.Username, IsOnline: u.IsOnline})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeUsers) online(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id].IsOnline
}

type fakeSessions struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.Session
	now  func() time.Time

	getErr error
}

var _ repository.SessionRepository = (*fakeSessions)(nil)

func newFakeSessions(now func() time.Time) *fakeSessions {
	return &fakeSessions{byID: map[uuid.UUID]*model.Session{}, now: now}
}

func (f *fakeSessions) Create(_ context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *s
	f.byID[s.ID] = &c
	return nil
}

func (f *fakeSessions) Get(_ context.Context, id uuid.UUID) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (f *fakeSessions) Revoke(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.byID[id]; ok && s.RevokedAt == nil {
		t := f.now()
		s.RevokedAt = &t
	}
	return nil
}

func (f *fakeSessions) CountActive(_ context.Context, userID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.byID {
		if s.UserID == userID && s.RevokedAt == nil && f.now().Before(s.ExpiresAt) {
			n++
		}
	}
	return n, nil
}

type fakeMessages struct {
	mu   sync.Mutex
	msgs []model.Message
	room []string
	now  time.Time

	lastLimit int
	err       error
}

var _ repository.MessageRepository = (*fakeMessages)(nil)

func (f *fakeMessages) Create(_ context.Context, room string, userID int64, content string) (model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.Message{}, f.err
	}
	f.now = f.now.Add(time.Second)
	m := model.Message{ID: int64(len(f.msgs) + 1), UserID: userID, Content: content, Timestamp: f.now}
	f.msgs = append(f.msgs, m)
	f.room = append(f.room, room)
	return m, nil
}

func (f *fakeMessages) ListRecent(_ context.Context, _ string, limit int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	start := max(len(f.msgs)-limit, 0)
	return append([]model.Message(nil), f.msgs[start:]...), nil
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}

func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}

func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}
