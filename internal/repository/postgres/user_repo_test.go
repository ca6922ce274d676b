package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/gophchat/internal/errs"
	"github.com/and161185/gophchat/internal/model"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

var userCols = []string{"id", "username", "pwd_hash", "is_online", "created_at"}

func TestUserRepo_Create_OK_and_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	u := &model.User{Username: "alice", PwdHash: "$argon2id$h"}
	mock.ExpectQuery(`INSERT INTO users \(username, pwd_hash\) VALUES \(\$1, \$2\) RETURNING id, created_at`).
		WithArgs("alice", "$argon2id$h").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), created))
	require.NoError(t, r.Create(ctx, u))
	require.Equal(t, int64(7), u.ID)
	require.Equal(t, created, u.CreatedAt)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("alice", "$argon2id$h").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, &model.User{Username: "alice", PwdHash: "$argon2id$h"}), errs.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByID(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, username, pwd_hash, is_online, created_at FROM users WHERE id=\$1`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(userCols).AddRow(int64(1), "alice", "h", true, now))
	u, err := r.GetByID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, &model.User{ID: 1, Username: "alice", PwdHash: "h", IsOnline: true, CreatedAt: now}, u)

	mock.ExpectQuery(`FROM users WHERE id=\$1`).
		WithArgs(int64(2)).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByID(ctx, 2)
	require.ErrorIs(t, err, errs.ErrNotFound)

	boom := errors.New("conn reset")
	mock.ExpectQuery(`FROM users WHERE id=\$1`).
		WithArgs(int64(3)).
		WillReturnError(boom)
	_, err = r.GetByID(ctx, 3)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, errs.ErrNotFound)
}

func TestUserRepo_GetByUsername(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT id, username, pwd_hash, is_online, created_at FROM users WHERE username=\$1`).
		WithArgs("bob").
		WillReturnRows(pgxmock.NewRows(userCols).AddRow(int64(2), "bob", "h", false, time.Now()))
	u, err := r.GetByUsername(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, int64(2), u.ID)

	mock.ExpectQuery(`FROM users WHERE username=\$1`).
		WithArgs("nobody").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByUsername(ctx, "nobody")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUserRepo_SetOnline(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE users SET is_online=\$2 WHERE id=\$1`).
		WithArgs(int64(1), true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.SetOnline(ctx, 1, true))

	mock.ExpectExec(`UPDATE users SET is_online=\$2 WHERE id=\$1`).
		WithArgs(int64(9), false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.SetOnline(ctx, 9, false), errs.ErrNotFound)
}

func TestUserRepo_List(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)

	mock.ExpectQuery(`SELECT id, username, is_online FROM users ORDER BY id`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "is_online"}).
			AddRow(int64(1), "alice", true).
			AddRow(int64(2), "bob", false))
	got, err := r.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, []model.RosterEntry{
		{ID: 1, Username: "alice", IsOnline: true},
		{ID: 2, Username: "bob"},
	}, got)

	mock.ExpectQuery(`FROM users ORDER BY id`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "is_online"}))
	got, err = r.List(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}
