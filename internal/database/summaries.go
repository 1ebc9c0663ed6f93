package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SummaryRow is the input for inserting a synthesized summary.
type SummaryRow struct {
	RoomID          string
	Kind            string // "live", "periodic", "final"
	Content         string
	VoteResults     json.RawMessage
	KeyPoints       json.RawMessage
	SideAArguments  json.RawMessage
	SideBArguments  json.RawMessage
	MessageCount    int
	CaptionCount    int
	DurationMinutes int
}

// SummaryAPI is the summary representation for API responses.
type SummaryAPI struct {
	ID              string          `json:"id"`
	RoomID          string          `json:"room_id"`
	Kind            string          `json:"kind"`
	Content         string          `json:"content"`
	VoteResults     json.RawMessage `json:"vote_results,omitempty"`
	KeyPoints       json.RawMessage `json:"key_points,omitempty"`
	SideAArguments  json.RawMessage `json:"side_a_arguments,omitempty"`
	SideBArguments  json.RawMessage `json:"side_b_arguments,omitempty"`
	MessageCount    int             `json:"message_count"`
	CaptionCount    int             `json:"caption_count"`
	DurationMinutes int             `json:"duration_minutes"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

var validSummaryKinds = map[string]bool{"live": true, "periodic": true, "final": true}

// InsertSummary writes one synthesized summary and returns its id.
// Summaries are insert-only; duplicates for a room are allowed and the
// most recent generated_at wins for display.
func (db *DB) InsertSummary(ctx context.Context, row *SummaryRow) (string, error) {
	if !validSummaryKinds[row.Kind] {
		return "", fmt.Errorf("invalid summary kind: %s", row.Kind)
	}

	var id string
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO summaries (
			room_id, kind, content, vote_results, key_points,
			side_a_arguments, side_b_arguments,
			message_count, caption_count, duration_minutes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`,
		row.RoomID, row.Kind, row.Content, row.VoteResults, row.KeyPoints,
		row.SideAArguments, row.SideBArguments,
		row.MessageCount, row.CaptionCount, row.DurationMinutes,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert summary: %w", err)
	}
	return id, nil
}

// ListSummaries returns all summaries for a room, most recent first.
func (db *DB) ListSummaries(ctx context.Context, roomID string) ([]SummaryAPI, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, room_id, kind, content, vote_results, key_points,
			side_a_arguments, side_b_arguments,
			message_count, caption_count, duration_minutes, generated_at
		FROM summaries
		WHERE room_id = $1
		ORDER BY generated_at DESC
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []SummaryAPI
	for rows.Next() {
		var s SummaryAPI
		if err := rows.Scan(
			&s.ID, &s.RoomID, &s.Kind, &s.Content, &s.VoteResults, &s.KeyPoints,
			&s.SideAArguments, &s.SideBArguments,
			&s.MessageCount, &s.CaptionCount, &s.DurationMinutes, &s.GeneratedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if result == nil {
		result = []SummaryAPI{}
	}
	return result, rows.Err()
}

// GetLatestSummary returns the most recent summary of the given kind for a
// room, or nil if none exists.
func (db *DB) GetLatestSummary(ctx context.Context, roomID, kind string) (*SummaryAPI, error) {
	var s SummaryAPI
	err := db.Pool.QueryRow(ctx, `
		SELECT id, room_id, kind, content, vote_results, key_points,
			side_a_arguments, side_b_arguments,
			message_count, caption_count, duration_minutes, generated_at
		FROM summaries
		WHERE room_id = $1 AND kind = $2
		ORDER BY generated_at DESC
		LIMIT 1
	`, roomID, kind).Scan(
		&s.ID, &s.RoomID, &s.Kind, &s.Content, &s.VoteResults, &s.KeyPoints,
		&s.SideAArguments, &s.SideBArguments,
		&s.MessageCount, &s.CaptionCount, &s.DurationMinutes, &s.GeneratedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
