package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/podium/internal/aggregate"
	"github.com/snarg/podium/internal/database"
	"github.com/snarg/podium/internal/metrics"
)

const (
	keyPointCount     = 5
	sideArgumentCount = 5
)

// Generator produces summary text from a prompt. Nil is a valid
// generator: the synthesizer then always takes the fallback branch.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Collector produces the aggregated transcript for a room.
type Collector interface {
	Collect(ctx context.Context, roomID string) (*aggregate.Transcript, error)
}

// SummaryStore persists synthesized summaries.
type SummaryStore interface {
	InsertSummary(ctx context.Context, row *database.SummaryRow) (string, error)
}

// Result is what a synthesis invocation returns to the caller. It is
// populated even when persisting the summary failed: a generated
// summary is never masked by a save error.
type Result struct {
	Summary database.SummaryAPI `json:"summary"`
	Source  string              `json:"source"` // "remote" or "fallback"
	Saved   bool                `json:"saved"`
}

// Synthesizer turns a room's aggregated content into one persisted
// final summary per invocation. Concurrent invocations for the same
// room may both persist; the most recent generated_at wins for display.
type Synthesizer struct {
	collector Collector
	generator Generator
	store     SummaryStore
	log       zerolog.Logger
}

// New creates a synthesizer. generator may be nil (fallback only).
func New(collector Collector, generator Generator, store SummaryStore, log zerolog.Logger) *Synthesizer {
	return &Synthesizer{collector: collector, generator: generator, store: store, log: log}
}

// Synthesize aggregates the room, generates summary content (remote
// with local fallback), and persists one final summary record. Only an
// aggregation failure is returned as an error; generation and save
// failures degrade instead.
func (s *Synthesizer) Synthesize(ctx context.Context, roomID string) (*Result, error) {
	t, err := s.collector.Collect(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("aggregate room: %w", err)
	}

	content, source := s.generate(ctx, t)
	metrics.SynthesisTotal.WithLabelValues(source).Inc()

	voteResults, _ := json.Marshal(map[string]int{
		"side_a": t.Votes.SideA,
		"side_b": t.Votes.SideB,
	})
	keyPoints, _ := json.Marshal(KeyPoints(t, keyPointCount))
	sideA, _ := json.Marshal(SideArguments(t.SideAEntries, sideArgumentCount))
	sideB, _ := json.Marshal(SideArguments(t.SideBEntries, sideArgumentCount))

	row := &database.SummaryRow{
		RoomID:          roomID,
		Kind:            "final",
		Content:         content,
		VoteResults:     voteResults,
		KeyPoints:       keyPoints,
		SideAArguments:  sideA,
		SideBArguments:  sideB,
		MessageCount:    t.MessageCount,
		CaptionCount:    t.CaptionCount,
		DurationMinutes: t.DurationMinutes,
	}

	result := &Result{
		Summary: database.SummaryAPI{
			RoomID:          roomID,
			Kind:            row.Kind,
			Content:         content,
			VoteResults:     voteResults,
			KeyPoints:       keyPoints,
			SideAArguments:  sideA,
			SideBArguments:  sideB,
			MessageCount:    t.MessageCount,
			CaptionCount:    t.CaptionCount,
			DurationMinutes: t.DurationMinutes,
			GeneratedAt:     time.Now().UTC(),
		},
		Source: source,
	}

	id, err := s.store.InsertSummary(ctx, row)
	if err != nil {
		// The caller still gets the content; losing the record is
		// recoverable by re-running synthesis.
		metrics.SynthesisSaveFailuresTotal.Inc()
		s.log.Error().Err(err).Str("room_id", roomID).Msg("summary generated but not saved")
		return result, nil
	}
	result.Summary.ID = id
	result.Saved = true

	s.log.Info().
		Str("room_id", roomID).
		Str("source", source).
		Int("messages", t.MessageCount).
		Int("captions", t.CaptionCount).
		Msg("summary synthesized")

	return result, nil
}

// generate tries the remote generator and falls back to the local
// template on any failure or empty output.
func (s *Synthesizer) generate(ctx context.Context, t *aggregate.Transcript) (content, source string) {
	if s.generator != nil {
		prompt := BuildPrompt(t)
		out, err := s.generator.Generate(ctx, prompt)
		if err == nil && out != "" {
			return out, "remote"
		}
		s.log.Warn().Err(err).Str("room_id", t.Room.ID).Msg("generative service failed, using fallback")
	}
	return Fallback(t), "fallback"
}
