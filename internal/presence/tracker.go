// Package presence keeps the user roster and derived online state, refreshed by polling.
package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/gophchat/internal/model"
	"github.com/and161185/gophchat/internal/transport"
)

// Tracker owns the roster. It is rebuilt wholesale from each successful fetch;
// a failed fetch leaves the previous roster in place.
type Tracker struct {
	tr      transport.Transport
	timeout time.Duration
	log     *zap.Logger
	notify  func()

	mu     sync.Mutex
	roster []model.RosterEntry
	online int

	epoch   uint64 // bumped by Reset
	issued  uint64 // fetches started
	applied uint64 // newest fetch applied
}

// NewTracker constructs an empty tracker. notify is called after every roster change and may be nil.
func NewTracker(tr transport.Transport, timeout time.Duration, log *zap.Logger, notify func()) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	if notify == nil {
		notify = func() {}
	}
	return &Tracker{tr: tr, timeout: timeout, log: log, notify: notify}
}

// Refresh fetches the roster once. On error the roster is untouched and the error is returned.
// A result that arrives after Reset, or after a newer fetch was applied, is discarded.
func (t *Tracker) Refresh(ctx context.Context) ([]model.RosterEntry, error) {
	t.mu.Lock()
	t.issued++
	epoch, seq := t.epoch, t.issued
	t.mu.Unlock()

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	users, err := t.tr.ListUsers(ctx)
	if err != nil {
		t.log.Warn("roster refresh failed, keeping previous roster", zap.Error(err))
		return nil, fmt.Errorf("list users: %w", err)
	}

	roster := dedupe(users)
	online := 0
	for _, r := range roster {
		if r.IsOnline {
			online++
		}
	}

	t.mu.Lock()
	if epoch != t.epoch || seq < t.applied {
		t.mu.Unlock()
		t.log.Debug("discarding stale roster", zap.Uint64("seq", seq))
		return t.Roster(), nil
	}
	t.roster, t.online, t.applied = roster, online, seq
	t.mu.Unlock()

	t.notify()
	return append([]model.RosterEntry(nil), roster...), nil
}

// Roster returns a copy of the current roster in fetch order.
func (t *Tracker) Roster() []model.RosterEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.RosterEntry(nil), t.roster...)
}

// OnlineCount returns the number of online entries of the current roster.
func (t *Tracker) OnlineCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.online
}

// Reset clears the roster and invalidates every fetch already in flight.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.epoch++
	t.roster, t.online = nil, 0
	t.mu.Unlock()
	t.notify()
}

// dedupe keeps the first entry per id, preserving fetch order.
func dedupe(in []model.RosterEntry) []model.RosterEntry {
	seen := make(map[int64]struct{}, len(in))
	out := make([]model.RosterEntry, 0, len(in))
	for _, r := range in {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}
