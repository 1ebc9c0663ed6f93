package database

import (
	"context"
	"time"
)

// RoomRow is the room view this engine needs: topic, side labels, and the
// timestamps used to compute debate duration. Room lifecycle itself is
// owned by the room service.
type RoomRow struct {
	ID         string     `json:"id"`
	Topic      string     `json:"topic"`
	SideALabel string     `json:"side_a_label"`
	SideBLabel string     `json:"side_b_label"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// GetRoom returns a single room by id.
func (db *DB) GetRoom(ctx context.Context, roomID string) (*RoomRow, error) {
	var r RoomRow
	err := db.Pool.QueryRow(ctx, `
		SELECT id, topic, side_a_label, side_b_label, status,
			created_at, started_at, ended_at
		FROM rooms
		WHERE id = $1
	`, roomID).Scan(
		&r.ID, &r.Topic, &r.SideALabel, &r.SideBLabel, &r.Status,
		&r.CreatedAt, &r.StartedAt, &r.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
