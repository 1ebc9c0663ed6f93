package database

import "context"

// VoteTally is the per-side vote count for a room.
type VoteTally struct {
	SideA int `json:"side_a"`
	SideB int `json:"side_b"`
}

// Total returns the combined vote count.
func (t VoteTally) Total() int { return t.SideA + t.SideB }

// Percentages returns each side's share of the total vote as a
// percentage. Zero total votes yields 0/0 rather than a division error.
func (t VoteTally) Percentages() (a, b float64) {
	total := t.Total()
	if total == 0 {
		return 0, 0
	}
	return float64(t.SideA) / float64(total) * 100,
		float64(t.SideB) / float64(total) * 100
}

// CountVotes tallies votes by side for a room.
func (db *DB) CountVotes(ctx context.Context, roomID string) (VoteTally, error) {
	var t VoteTally
	err := db.Pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE side = 'side_a'),
			count(*) FILTER (WHERE side = 'side_b')
		FROM votes
		WHERE room_id = $1
	`, roomID).Scan(&t.SideA, &t.SideB)
	if err != nil {
		return VoteTally{}, err
	}
	return t, nil
}
