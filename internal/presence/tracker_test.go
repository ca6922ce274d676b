package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/gophchat/internal/errs"
	"github.com/and161185/gophchat/internal/model"
	"github.com/and161185/gophchat/internal/transport/transporttest"
)

func newTracker(t *testing.T) (*Tracker, *transporttest.Backend, *transporttest.Client) {
	t.Helper()
	b := transporttest.NewBackend()
	c := b.Client()
	c.SignIn(model.Identity{ID: 1, Username: "a"})
	return NewTracker(c, time.Second, zaptest.NewLogger(t), nil), b, c
}

func TestTracker_Refresh_OnlineCountAndOrder(t *testing.T) {
	t.Parallel()
	tr, b, _ := newTracker(t)
	want := []model.RosterEntry{
		{ID: 1, Username: "a", IsOnline: true},
		{ID: 2, Username: "b", IsOnline: false},
	}
	b.SetRoster(want)

	got, err := tr.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, want, tr.Roster())
	require.Equal(t, 1, tr.OnlineCount())
}

func TestTracker_Refresh_FailureKeepsPreviousRoster(t *testing.T) {
	t.Parallel()
	tr, b, c := newTracker(t)
	b.SetRoster([]model.RosterEntry{{ID: 1, Username: "a", IsOnline: true}})
	_, err := tr.Refresh(context.Background())
	require.NoError(t, err)

	b.SetRoster(nil)
	c.SetErr(transporttest.ListUsers, errs.ErrNetwork)
	_, err = tr.Refresh(context.Background())
	require.ErrorIs(t, err, errs.ErrNetwork)

	require.Equal(t, []model.RosterEntry{{ID: 1, Username: "a", IsOnline: true}}, tr.Roster())
	require.Equal(t, 1, tr.OnlineCount())
}

func TestTracker_Refresh_RecomputesCountWholesale(t *testing.T) {
	t.Parallel()
	tr, b, _ := newTracker(t)

	b.SetRoster([]model.RosterEntry{{ID: 1, IsOnline: true}, {ID: 2, IsOnline: true}})
	_, err := tr.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, tr.OnlineCount())

	b.SetRoster([]model.RosterEntry{{ID: 2, IsOnline: false}})
	_, err = tr.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, tr.OnlineCount())
	require.Len(t, tr.Roster(), 1)
}

func TestTracker_Refresh_DuplicateIDsCollapsed(t *testing.T) {
	t.Parallel()
	tr, b, _ := newTracker(t)
	b.SetRoster([]model.RosterEntry{
		{ID: 1, Username: "a", IsOnline: true},
		{ID: 1, Username: "a", IsOnline: true},
		{ID: 2, Username: "b"},
	})

	_, err := tr.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, tr.Roster(), 2)
	require.Equal(t, 1, tr.OnlineCount())
}

func TestTracker_Reset_DiscardsInFlight(t *testing.T) {
	t.Parallel()
	tr, b, c := newTracker(t)
	b.SetRoster([]model.RosterEntry{{ID: 1, Username: "a", IsOnline: true}})

	entered := make(chan struct{})
	release := make(chan struct{})
	c.SetHook(transporttest.ListUsers, func(context.Context) error {
		close(entered)
		<-release
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = tr.Refresh(context.Background())
	}()
	<-entered
	tr.Reset()
	close(release)
	<-done

	require.Empty(t, tr.Roster())
	require.Zero(t, tr.OnlineCount())
}

func TestTracker_Notify(t *testing.T) {
	t.Parallel()
	b := transporttest.NewBackend()
	c := b.Client()
	c.SignIn(model.Identity{ID: 1})
	n := 0
	tr := NewTracker(c, 0, nil, func() { n++ })

	_, err := tr.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	c.SetErr(transporttest.ListUsers, errs.ErrNetwork)
	_, _ = tr.Refresh(context.Background())
	require.Equal(t, 1, n, "failed refresh must not notify")
}

func TestTracker_Refresh_HungFetchTimesOut(t *testing.T) {
	t.Parallel()
	b := transporttest.NewBackend()
	c := b.Client()
	c.SignIn(model.Identity{ID: 1, Username: "a"})
	tr := NewTracker(c, 20*time.Millisecond, zaptest.NewLogger(t), nil)

	b.SetRoster([]model.RosterEntry{{ID: 1, Username: "a", IsOnline: true}})
	_, err := tr.Refresh(context.Background())
	require.NoError(t, err)

	b.SetRoster(nil)
	c.SetHook(transporttest.ListUsers, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	start := time.Now()
	_, err = tr.Refresh(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 500*time.Millisecond)
	require.Equal(t, []model.RosterEntry{{ID: 1, Username: "a", IsOnline: true}}, tr.Roster())
	require.Equal(t, 1, tr.OnlineCount())
}
