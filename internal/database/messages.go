package database

import (
	"context"
	"time"
)

// MessageRow is a chat message as read for aggregation. Messages are
// written by the chat service; this engine only reads them.
type MessageRow struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Side      *string   `json:"side,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ListMessages returns all chat messages for a room ordered by creation
// time ascending.
func (db *DB) ListMessages(ctx context.Context, roomID string) ([]MessageRow, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, room_id, user_id, side, content, created_at
		FROM messages
		WHERE room_id = $1
		ORDER BY created_at ASC
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []MessageRow
	for rows.Next() {
		var m MessageRow
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.Side, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if result == nil {
		result = []MessageRow{}
	}
	return result, rows.Err()
}
