package postgres

import (
	"context"

	"github.com/and161185/gophchat/internal/model"
	"github.com/and161185/gophchat/internal/repository"
)

// MessageRepo implements repository.MessageRepository using PostgreSQL.
type MessageRepo struct{ db *DB }

var _ repository.MessageRepository = (*MessageRepo)(nil)

// NewMessageRepo constructs a message repository.
func NewMessageRepo(db *DB) *MessageRepo { return &MessageRepo{db: db} }

// Create inserts a message and returns it joined with the author's username.
func (r *MessageRepo) Create(ctx context.Context, room string, userID int64, content string) (model.Message, error) {
	const q = `
WITH ins AS (
  INSERT INTO messages (room_id, user_id, content)
  VALUES ($1, $2, $3)
  RETURNING id, user_id, content, created_at
)
SELECT ins.id, ins.user_id, u.username, ins.content, ins.created_at
FROM ins JOIN users u ON u.id = ins.user_id`
	var m model.Message
	err := r.db.Pool.QueryRow(ctx, q, room, userID, content).
		Scan(&m.ID, &m.UserID, &m.Username, &m.Content, &m.Timestamp)
	if err != nil {
		return model.Message{}, notFound(err)
	}
	return m, nil
}

// ListRecent selects the newest limit messages and returns them oldest first.
func (r *MessageRepo) ListRecent(ctx context.Context, room string, limit int) ([]model.Message, error) {
	const q = `
SELECT id, user_id, username, content, created_at FROM (
  SELECT m.id, m.user_id, u.username, m.content, m.created_at
  FROM messages m JOIN users u ON u.id = m.user_id
  WHERE m.room_id=$1
  ORDER BY m.created_at DESC, m.id DESC
  LIMIT $2
) recent
ORDER BY created_at, id`
	rows, err := r.db.Pool.Query(ctx, q, room, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Message, 0, limit)
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.Username, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
