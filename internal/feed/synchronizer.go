// Package feed keeps the local copy of the shared message feed and reconciles optimistic sends.
//
// The server always answers with the full ordered feed, so every successful refresh replaces the
// local copy wholesale. Responses are sequence-numbered: when a scheduled tick and an out-of-band
// refresh overlap, a response older than one already applied is dropped, which keeps the local
// list a snapshot of exactly one fetch.
package feed

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/gophchat/internal/errs"
	"github.com/and161185/gophchat/internal/model"
	"github.com/and161185/gophchat/internal/transport"
)

// Synchronizer owns the message cache and the set of pending sends.
type Synchronizer struct {
	tr      transport.Transport
	timeout time.Duration
	log     *zap.Logger
	notify  func()
	now     func() time.Time

	mu       sync.Mutex
	messages []model.Message
	pending  []model.PendingSend

	epoch   uint64 // bumped by Reset
	issued  uint64 // fetches started
	applied uint64 // newest fetch applied
}

// NewSynchronizer constructs an empty synchronizer. notify is called after every change and may be nil.
func NewSynchronizer(tr transport.Transport, timeout time.Duration, log *zap.Logger, notify func()) *Synchronizer {
	if log == nil {
		log = zap.NewNop()
	}
	if notify == nil {
		notify = func() {}
	}
	return &Synchronizer{tr: tr, timeout: timeout, log: log, notify: notify, now: time.Now}
}

// Refresh fetches the feed once and replaces the local copy. On error the local copy is untouched.
func (s *Synchronizer) Refresh(ctx context.Context) ([]model.Message, error) {
	return s.refresh(ctx, s.Epoch())
}

// refresh applies the fetched feed only while the feed is still at epoch.
func (s *Synchronizer) refresh(ctx context.Context, epoch uint64) ([]model.Message, error) {
	s.mu.Lock()
	s.issued++
	seq := s.issued
	s.mu.Unlock()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	fetched, err := s.tr.ListMessages(ctx)
	if err != nil {
		s.log.Warn("message refresh failed, keeping previous feed", zap.Error(err))
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs := normalize(fetched)

	s.mu.Lock()
	if epoch != s.epoch || seq < s.applied {
		s.mu.Unlock()
		s.log.Debug("discarding stale feed", zap.Uint64("seq", seq), zap.Int("len", len(msgs)))
		return s.Messages(), nil
	}
	s.messages, s.applied = msgs, seq
	s.pending = confirm(s.pending, msgs)
	s.mu.Unlock()

	s.notify()
	return slices.Clone(msgs), nil
}

// Send posts content and, on success, refreshes the feed immediately.
// Whitespace-only content fails with errs.ErrValidation before any network call.
// Post failures are returned; the pending entry is dropped and the caller keeps its draft.
func (s *Synchronizer) Send(ctx context.Context, content string) (model.Message, error) {
	return s.SendIn(ctx, s.Epoch(), content)
}

// SendIn is Send bound to a feed generation read earlier with Epoch. If Reset ran since,
// nothing is posted and errs.ErrUnauthorized is returned.
func (s *Synchronizer) SendIn(ctx context.Context, epoch uint64, content string) (model.Message, error) {
	if strings.TrimSpace(content) == "" {
		return model.Message{}, fmt.Errorf("send: %w: empty message", errs.ErrValidation)
	}
	localID, err := uuid.NewV4()
	if err != nil {
		return model.Message{}, fmt.Errorf("send: local id: %w", err)
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return model.Message{}, fmt.Errorf("send: %w: session ended", errs.ErrUnauthorized)
	}
	s.pending = append(s.pending, model.PendingSend{LocalID: localID, Content: content, StartedAt: s.now()})
	s.mu.Unlock()
	s.notify()

	pctx, cancel := s.withTimeout(ctx)
	msg, err := s.tr.PostMessage(pctx, content)
	cancel()

	s.mu.Lock()
	if epoch != s.epoch {
		// reset while posting: the pending set is already gone
		s.mu.Unlock()
		if err != nil {
			return model.Message{}, fmt.Errorf("send: %w", err)
		}
		return msg, nil
	}
	if err != nil {
		s.pending = drop(s.pending, localID)
	} else {
		s.pending = markPosted(s.pending, localID, msg.ID)
		s.pending = confirm(s.pending, s.messages)
	}
	s.mu.Unlock()
	s.notify()

	if err != nil {
		s.log.Warn("send failed", zap.Error(err))
		return model.Message{}, fmt.Errorf("send: %w", err)
	}
	s.log.Debug("sent", zap.Int64("message_id", msg.ID))

	if _, rerr := s.refresh(ctx, epoch); rerr != nil {
		// the next scheduled tick confirms the message instead
		s.log.Debug("refresh after send failed", zap.Error(rerr))
	}
	return msg, nil
}

// Messages returns a copy of the current feed.
func (s *Synchronizer) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Pending returns a copy of the sends not yet seen in the feed.
func (s *Synchronizer) Pending() []model.PendingSend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.pending)
}

// Epoch identifies the current feed generation. Reset advances it.
func (s *Synchronizer) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Reset clears the feed and pending sends and invalidates every request already in flight.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	s.epoch++
	s.messages, s.pending = nil, nil
	s.mu.Unlock()
	s.notify()
}

func (s *Synchronizer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// normalize drops repeated ids (first occurrence wins) and restores (timestamp, id) order
// only when the server answer is out of order, so a well-formed answer is kept verbatim.
func normalize(in []model.Message) []model.Message {
	seen := make(map[int64]struct{}, len(in))
	out := make([]model.Message, 0, len(in))
	for _, m := range in {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	if !slices.IsSortedFunc(out, model.Message.Compare) {
		slices.SortStableFunc(out, model.Message.Compare)
	}
	return out
}

// confirm drops posted sends whose message is present in msgs.
func confirm(pending []model.PendingSend, msgs []model.Message) []model.PendingSend {
	if len(pending) == 0 {
		return pending
	}
	ids := make(map[int64]struct{}, len(msgs))
	for _, m := range msgs {
		ids[m.ID] = struct{}{}
	}
	return slices.DeleteFunc(pending, func(p model.PendingSend) bool {
		_, ok := ids[p.MessageID]
		return p.MessageID != 0 && ok
	})
}

func drop(pending []model.PendingSend, id uuid.UUID) []model.PendingSend {
	return slices.DeleteFunc(pending, func(p model.PendingSend) bool { return p.LocalID == id })
}

func markPosted(pending []model.PendingSend, id uuid.UUID, msgID int64) []model.PendingSend {
	for i := range pending {
		if pending[i].LocalID == id {
			pending[i].MessageID = msgID
		}
	}
	return pending
}
