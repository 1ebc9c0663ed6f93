package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/podium/internal/database"
)

// SourceKind tags where an aggregated entry came from.
type SourceKind string

const (
	SourceSpeech SourceKind = "speech"
	SourceChat   SourceKind = "chat"
)

// Side values as stored. Entries with any other (or empty) side are
// kept in the chronological merge but belong to neither partition.
const (
	SideA = "side_a"
	SideB = "side_b"
)

// Entry is one normalized unit of debate content, derived from either a
// chat message or a finalized caption.
type Entry struct {
	Text       string     `json:"text"`
	Side       string     `json:"side,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	SourceKind SourceKind `json:"source_kind"`
	Confidence *float32   `json:"confidence,omitempty"` // speech only
}

// Transcript is the merged, ordered view of a room's content handed to
// the synthesizer.
type Transcript struct {
	Room            *database.RoomRow
	Entries         []Entry // ascending by timestamp
	SideAEntries    []Entry // relative order preserved
	SideBEntries    []Entry
	Votes           database.VoteTally
	MessageCount    int
	CaptionCount    int
	DurationMinutes int
}

// Store is the read surface the aggregator needs.
type Store interface {
	GetRoom(ctx context.Context, roomID string) (*database.RoomRow, error)
	ListMessages(ctx context.Context, roomID string) ([]database.MessageRow, error)
	ListCaptions(ctx context.Context, roomID string) ([]database.CaptionAPI, error)
	CountVotes(ctx context.Context, roomID string) (database.VoteTally, error)
}

// Aggregator builds transcripts from the durable store.
type Aggregator struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time // injectable for duration tests
}

// New creates an aggregator.
func New(store Store, log zerolog.Logger) *Aggregator {
	return &Aggregator{store: store, log: log, now: time.Now}
}

// Collect fetches a room's messages, final captions and votes and
// produces the merged transcript. It works on a still-active debate:
// the effective end time falls back to now when the room hasn't ended.
func (a *Aggregator) Collect(ctx context.Context, roomID string) (*Transcript, error) {
	room, err := a.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("fetch room: %w", err)
	}
	messages, err := a.store.ListMessages(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	captions, err := a.store.ListCaptions(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("fetch captions: %w", err)
	}
	votes, err := a.store.CountVotes(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("count votes: %w", err)
	}

	t := &Transcript{
		Room:         room,
		Entries:      Merge(messages, captions),
		Votes:        votes,
		MessageCount: len(messages),
		CaptionCount: len(captions),
	}

	for _, e := range t.Entries {
		switch e.Side {
		case SideA:
			t.SideAEntries = append(t.SideAEntries, e)
		case SideB:
			t.SideBEntries = append(t.SideBEntries, e)
		}
	}

	t.DurationMinutes = a.durationMinutes(room)

	a.log.Debug().
		Str("room_id", roomID).
		Int("messages", t.MessageCount).
		Int("captions", t.CaptionCount).
		Int("votes", votes.Total()).
		Msg("transcript collected")

	return t, nil
}

// Merge combines pre-sorted messages and captions into one sequence
// ordered ascending by timestamp. The merge is stable; on equal
// timestamps messages precede captions, matching their fetch order.
func Merge(messages []database.MessageRow, captions []database.CaptionAPI) []Entry {
	merged := make([]Entry, 0, len(messages)+len(captions))
	i, j := 0, 0
	for i < len(messages) && j < len(captions) {
		// <= keeps messages ahead of captions on ties.
		if !captions[j].Timestamp.Before(messages[i].CreatedAt) {
			merged = append(merged, messageEntry(messages[i]))
			i++
		} else {
			merged = append(merged, captionEntry(captions[j]))
			j++
		}
	}
	for ; i < len(messages); i++ {
		merged = append(merged, messageEntry(messages[i]))
	}
	for ; j < len(captions); j++ {
		merged = append(merged, captionEntry(captions[j]))
	}
	return merged
}

func messageEntry(m database.MessageRow) Entry {
	e := Entry{
		Text:       m.Content,
		Timestamp:  m.CreatedAt,
		SourceKind: SourceChat,
	}
	if m.Side != nil {
		e.Side = *m.Side
	}
	return e
}

func captionEntry(c database.CaptionAPI) Entry {
	conf := c.Confidence
	return Entry{
		Text:       c.Content,
		Side:       c.Side,
		Timestamp:  c.Timestamp,
		SourceKind: SourceSpeech,
		Confidence: &conf,
	}
}

// durationMinutes computes the debate duration from the room's
// effective bounds: started_at (else created_at) to ended_at (else
// now), so an in-progress debate still aggregates.
func (a *Aggregator) durationMinutes(room *database.RoomRow) int {
	start := room.CreatedAt
	if room.StartedAt != nil {
		start = *room.StartedAt
	}
	end := a.now()
	if room.EndedAt != nil {
		end = *room.EndedAt
	}
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Minutes())
}
