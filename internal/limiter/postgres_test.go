package limiter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeRow struct{ scan func(dest ...any) error }

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

// fakeQuerier answers the two limiter queries from fields.
type fakeQuerier struct {
	rowErr       error
	blockedUntil time.Time
	fails        int

	execSQL  []string
	execArgs [][]any
	execErr  error
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakeQuerier) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	return fakeRow{scan: func(dest ...any) error {
		if f.rowErr != nil {
			return f.rowErr
		}
		switch {
		case strings.Contains(sql, "SELECT blocked_until"):
			*(dest[0].(*time.Time)) = f.blockedUntil
		case strings.Contains(sql, "RETURNING fail_count"):
			*(dest[0].(*int)) = f.fails
		default:
			return errors.New("unexpected query")
		}
		return nil
	}}
}

var now0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newPG(q Querier, cfg Config) *PG {
	l := NewPG(q, cfg)
	l.now = func() time.Time { return now0 }
	return l
}

func TestNewPG_Defaults(t *testing.T) {
	l := NewPG(&fakeQuerier{}, Config{})
	require.Equal(t, DefaultConfig, l.cfg)
}

func TestAllow(t *testing.T) {
	ctx := context.Background()

	ok, wait, err := newPG(&fakeQuerier{rowErr: pgx.ErrNoRows}, DefaultConfig).Allow(ctx, "u", []byte("h"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, wait)

	ok, wait, err = newPG(&fakeQuerier{blockedUntil: now0.Add(10 * time.Minute)}, DefaultConfig).Allow(ctx, "u", []byte("h"))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 10*time.Minute, wait)

	ok, _, err = newPG(&fakeQuerier{blockedUntil: now0.Add(-time.Minute)}, DefaultConfig).Allow(ctx, "u", []byte("h"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = newPG(&fakeQuerier{rowErr: errors.New("db boom")}, DefaultConfig).Allow(ctx, "u", []byte("h"))
	require.Error(t, err)
	require.False(t, ok)
}

func TestSuccess(t *testing.T) {
	fq := &fakeQuerier{}
	require.NoError(t, newPG(fq, DefaultConfig).Success(context.Background(), "u", []byte("h")))
	require.Len(t, fq.execSQL, 1)
	require.Contains(t, fq.execSQL[0], "INSERT INTO login_attempts")

	fq = &fakeQuerier{execErr: errors.New("exec fail")}
	require.Error(t, newPG(fq, DefaultConfig).Success(context.Background(), "u", []byte("h")))
}

func TestFailure_BelowThreshold(t *testing.T) {
	fq := &fakeQuerier{fails: 2}
	blocked, wait, err := newPG(fq, Config{Window: time.Minute, MaxFails: 3, BlockFor: time.Hour}).Failure(context.Background(), "u", []byte("h"))
	require.NoError(t, err)
	require.False(t, blocked)
	require.Zero(t, wait)
	require.Empty(t, fq.execSQL)
}

func TestFailure_BlocksAtThreshold(t *testing.T) {
	fq := &fakeQuerier{fails: 3}
	blocked, wait, err := newPG(fq, Config{Window: time.Minute, MaxFails: 3, BlockFor: time.Hour}).Failure(context.Background(), "u", []byte("h"))
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, time.Hour, wait)
	require.Len(t, fq.execSQL, 1)
	require.Contains(t, fq.execSQL[0], "UPDATE login_attempts SET blocked_until")
	require.Equal(t, now0.Add(time.Hour), fq.execArgs[0][2])
}

func TestFailure_Errors(t *testing.T) {
	_, _, err := newPG(&fakeQuerier{rowErr: errors.New("query")}, DefaultConfig).Failure(context.Background(), "u", []byte("h"))
	require.Error(t, err)

	fq := &fakeQuerier{fails: 99, execErr: errors.New("exec")}
	blocked, _, err := newPG(fq, DefaultConfig).Failure(context.Background(), "u", []byte("h"))
	require.Error(t, err)
	require.False(t, blocked)
}

func TestHashIP(t *testing.T) {
	a := HashIP("10.0.0.1")
	require.Len(t, a, 32)
	require.Equal(t, a, HashIP("10.0.0.1"))
	require.NotEqual(t, a, HashIP("10.0.0.2"))
}

func TestNop(t *testing.T) {
	var l Limiter = Nop{}
	ok, _, err := l.Allow(context.Background(), "u", nil)
	require.NoError(t, err)
	require.True(t, ok)
	blocked, _, err := l.Failure(context.Background(), "u", nil)
	require.NoError(t, err)
	require.False(t, blocked)
	require.NoError(t, l.Success(context.Background(), "u", nil))
}
