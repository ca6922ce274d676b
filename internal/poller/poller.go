// Package poller runs a function on a fixed interval with an explicit start/stop lifecycle.
package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Func is one poll tick. Errors are logged and never stop the task; the next tick is the retry.
type Func func(ctx context.Context) error

// Task is a cancellable periodic task. Ticks of one task never overlap.
// The zero value is not usable; construct with New.
type Task struct {
	name     string
	interval time.Duration
	fn       Func
	log      *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a stopped task.
func New(name string, interval time.Duration, fn Func, log *zap.Logger) *Task {
	if log == nil {
		log = zap.NewNop()
	}
	return &Task{name: name, interval: interval, fn: fn, log: log.With(zap.String("poller", name))}
}

// Start launches the task: one tick immediately, then one per interval.
// Starting a running task is a no-op. The task stops when ctx is done or Stop is called.
func (t *Task) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.cancel, t.done = cancel, done

	go t.run(ctx, done)
	t.log.Debug("started", zap.Duration("interval", t.interval))
}

// Stop cancels the task and waits until the running tick, if any, has returned.
// After Stop returns fn is not invoked again until the next Start. Idempotent.
func (t *Task) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	t.log.Debug("stopped")
}

// Running reports whether the task has been started and not stopped.
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

func (t *Task) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (t *Task) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := t.fn(ctx); err != nil && ctx.Err() == nil {
		t.log.Warn("tick failed", zap.Error(err))
	}
}
