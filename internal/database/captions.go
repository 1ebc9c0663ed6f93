package database

import (
	"context"
	"fmt"
	"time"
)

// CaptionRow is the input for inserting a finalized caption.
// Interim recognizer text never reaches this type — only final
// segments are persisted.
type CaptionRow struct {
	RoomID     string
	UserID     string
	Side       string
	Content    string
	Confidence float32
	Timestamp  time.Time
}

// CaptionAPI is the caption representation for API responses and the
// live caption feed.
type CaptionAPI struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	UserID     string    `json:"user_id"`
	Side       string    `json:"side"`
	Content    string    `json:"content"`
	Confidence float32   `json:"confidence"`
	Timestamp  time.Time `json:"ts"`
	IsFinal    bool      `json:"is_final"`
}

// InsertCaption writes one finalized caption and returns its id.
func (db *DB) InsertCaption(ctx context.Context, row *CaptionRow) (string, error) {
	ts := row.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	var id string
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO captions (room_id, user_id, side, content, confidence, ts, is_final)
		VALUES ($1, $2, $3, $4, $5, $6, true)
		RETURNING id
	`, row.RoomID, row.UserID, row.Side, row.Content, row.Confidence, ts).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert caption: %w", err)
	}
	return id, nil
}

// ListCaptions returns all final captions for a room ordered by timestamp
// ascending, the order the live feed appends to.
func (db *DB) ListCaptions(ctx context.Context, roomID string) ([]CaptionAPI, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, room_id, user_id, side, content, confidence, ts, is_final
		FROM captions
		WHERE room_id = $1 AND is_final = true
		ORDER BY ts ASC
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []CaptionAPI
	for rows.Next() {
		var c CaptionAPI
		if err := rows.Scan(
			&c.ID, &c.RoomID, &c.UserID, &c.Side, &c.Content,
			&c.Confidence, &c.Timestamp, &c.IsFinal,
		); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if result == nil {
		result = []CaptionAPI{}
	}
	return result, rows.Err()
}

// ListCaptionsPage returns a window of final captions for a room with the
// total count, for the history endpoint.
func (db *DB) ListCaptionsPage(ctx context.Context, roomID string, limit, offset int) ([]CaptionAPI, int, error) {
	var total int
	err := db.Pool.QueryRow(ctx, `
		SELECT count(*) FROM captions WHERE room_id = $1 AND is_final = true
	`, roomID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT id, room_id, user_id, side, content, confidence, ts, is_final
		FROM captions
		WHERE room_id = $1 AND is_final = true
		ORDER BY ts ASC
		LIMIT $2 OFFSET $3
	`, roomID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []CaptionAPI
	for rows.Next() {
		var c CaptionAPI
		if err := rows.Scan(
			&c.ID, &c.RoomID, &c.UserID, &c.Side, &c.Content,
			&c.Confidence, &c.Timestamp, &c.IsFinal,
		); err != nil {
			return nil, 0, err
		}
		result = append(result, c)
	}
	if result == nil {
		result = []CaptionAPI{}
	}
	return result, total, rows.Err()
}
