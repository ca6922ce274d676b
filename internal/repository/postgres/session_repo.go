package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/gophchat/internal/model"
	"github.com/and161185/gophchat/internal/repository"
)

// SessionRepo implements repository.SessionRepository using PostgreSQL.
type SessionRepo struct{ db *DB }

var _ repository.SessionRepository = (*SessionRepo)(nil)

// NewSessionRepo constructs a session repository.
func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

// Create inserts a session row.
func (r *SessionRepo) Create(ctx context.Context, s *model.Session) error {
	const q = `INSERT INTO sessions (id, user_id, expires_at) VALUES ($1, $2, $3)`
	_, err := r.db.Pool.Exec(ctx, q, s.ID, s.UserID, s.ExpiresAt)
	return err
}

// Get selects a session by ID.
func (r *SessionRepo) Get(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	const q = `SELECT id, user_id, expires_at, revoked_at FROM sessions WHERE id=$1`
	var s model.Session
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&s.ID, &s.UserID, &s.ExpiresAt, &s.RevokedAt); err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// Revoke stamps revoked_at once; later calls leave the first stamp.
func (r *SessionRepo) Revoke(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE sessions SET revoked_at=now() WHERE id=$1 AND revoked_at IS NULL`
	_, err := r.db.Pool.Exec(ctx, q, id)
	return err
}

// CountActive counts unrevoked, unexpired sessions of userID.
func (r *SessionRepo) CountActive(ctx context.Context, userID int64) (int, error) {
	const q = `
SELECT count(*) FROM sessions
WHERE user_id=$1 AND revoked_at IS NULL AND expires_at > now()`
	var n int
	if err := r.db.Pool.QueryRow(ctx, q, userID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
