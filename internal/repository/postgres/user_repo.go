package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/gophchat/internal/errs"
	"github.com/and161185/gophchat/internal/model"
	"github.com/and161185/gophchat/internal/repository"
)

// UserRepo implements repository.UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

var _ repository.UserRepository = (*UserRepo)(nil)

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (username, pwd_hash)
VALUES ($1, $2)
RETURNING id, created_at`
	err := r.db.Pool.QueryRow(ctx, q, u.Username, u.PwdHash).Scan(&u.ID, &u.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	const q = `
SELECT id, username, pwd_hash, is_online, created_at
FROM users WHERE id=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByUsername selects a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	const q = `
SELECT id, username, pwd_hash, is_online, created_at
FROM users WHERE username=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, username))
}

// SetOnline flips the presence flag.
func (r *UserRepo) SetOnline(ctx context.Context, id int64, online bool) error {
	const q = `UPDATE users SET is_online=$2 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, online)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// List returns the roster ordered by ID.
func (r *UserRepo) List(ctx context.Context) ([]model.RosterEntry, error) {
	const q = `SELECT id, username, is_online FROM users ORDER BY id`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.RosterEntry, 0)
	for rows.Next() {
		var e model.RosterEntry
		if err := rows.Scan(&e.ID, &e.Username, &e.IsOnline); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Username, &u.PwdHash, &u.IsOnline, &u.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}
