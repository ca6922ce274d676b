package memory

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/gophchat/internal/errs"
	"github.com/and161185/gophchat/internal/model"
	"github.com/and161185/gophchat/internal/repository"
)

func TestUsers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	users := New().Users()

	a := &model.User{Username: "alice", PwdHash: "h"}
	require.NoError(t, users.Create(ctx, a))
	require.Equal(t, int64(1), a.ID)
	require.ErrorIs(t, users.Create(ctx, &model.User{Username: "alice"}), errs.ErrAlreadyExists)
	require.NoError(t, users.Create(ctx, &model.User{Username: "bob"}))

	got, err := users.GetByUsername(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, int64(2), got.ID)
	_, err = users.GetByUsername(ctx, "carol")
	require.ErrorIs(t, err, errs.ErrNotFound)
	_, err = users.GetByID(ctx, 3)
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, users.SetOnline(ctx, 2, true))
	require.ErrorIs(t, users.SetOnline(ctx, 0, true), errs.ErrNotFound)

	roster, err := users.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []model.RosterEntry{{ID: 1, Username: "alice"}, {ID: 2, Username: "bob", IsOnline: true}}, roster)

	got.Username = "mutated"
	again, err := users.GetByID(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "bob", again.Username, "returned users are copies")
}

func TestMessages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := New()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := t0
	st.now = func() time.Time { return clock }
	require.NoError(t, st.Users().Create(ctx, &model.User{Username: "alice"}))
	msgs := st.Messages()

	_, err := msgs.Create(ctx, repository.DefaultRoom, 9, "x")
	require.ErrorIs(t, err, errs.ErrNotFound)

	for _, c := range []string{"a", "b", "c"} {
		_, err := msgs.Create(ctx, repository.DefaultRoom, 1, c)
		require.NoError(t, err)
	}
	_, err = msgs.Create(ctx, "other", 1, "elsewhere")
	require.NoError(t, err)

	clock = t0.Add(-time.Hour)
	m, err := msgs.Create(ctx, repository.DefaultRoom, 1, "d")
	require.NoError(t, err)
	require.Equal(t, t0, m.Timestamp, "timestamps never go backwards")
	require.Equal(t, "alice", m.Username)

	got, err := msgs.ListRecent(ctx, repository.DefaultRoom, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "c", got[0].Content)
	require.Equal(t, "d", got[1].Content)

	got, err = msgs.ListRecent(ctx, repository.DefaultRoom, 100)
	require.NoError(t, err)
	require.Len(t, got, 4)
}

func TestSessions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := New()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return now }
	sessions := st.Sessions()

	live := &model.Session{ID: uuid.Must(uuid.NewV4()), UserID: 1, ExpiresAt: now.Add(time.Hour)}
	expired := &model.Session{ID: uuid.Must(uuid.NewV4()), UserID: 1, ExpiresAt: now.Add(-time.Hour)}
	require.NoError(t, sessions.Create(ctx, live))
	require.NoError(t, sessions.Create(ctx, expired))
	require.ErrorIs(t, sessions.Create(ctx, live), errs.ErrAlreadyExists)

	n, err := sessions.CountActive(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, sessions.Revoke(ctx, live.ID))
	require.NoError(t, sessions.Revoke(ctx, uuid.Must(uuid.NewV4())))
	got, err := sessions.Get(ctx, live.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)

	n, err = sessions.CountActive(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = sessions.Get(ctx, uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, errs.ErrNotFound)
}
