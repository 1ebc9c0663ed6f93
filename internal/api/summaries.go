package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/snarg/podium/internal/database"
	"github.com/snarg/podium/internal/synthesis"
)

// SummarySynthesizer produces and persists one summary for a room.
type SummarySynthesizer interface {
	Synthesize(ctx context.Context, roomID string) (*synthesis.Result, error)
}

// SummaryStore is the read surface for stored summaries.
type SummaryStore interface {
	ListSummaries(ctx context.Context, roomID string) ([]database.SummaryAPI, error)
	GetLatestSummary(ctx context.Context, roomID, kind string) (*database.SummaryAPI, error)
}

type SummariesHandler struct {
	synth SummarySynthesizer
	store SummaryStore
}

func NewSummariesHandler(synth SummarySynthesizer, store SummaryStore) *SummariesHandler {
	return &SummariesHandler{synth: synth, store: store}
}

func (h *SummariesHandler) Routes(r chi.Router) {
	r.Post("/rooms/{roomID}/summaries", h.Synthesize)
	r.Get("/rooms/{roomID}/summaries", h.ListSummaries)
	r.Get("/rooms/{roomID}/summaries/latest", h.GetLatestSummary)
}

// Synthesize aggregates the room's content and generates a final summary.
// A degraded result (fallback content, or a summary that could not be
// saved) is still a 200: the caller always gets summary text.
func (h *SummariesHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	roomID, err := PathString(r, "roomID")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid room ID")
		return
	}

	result, err := h.synth.Synthesize(r.Context(), roomID)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("room_id", roomID).Msg("synthesis failed")
		WriteError(w, http.StatusInternalServerError, "failed to synthesize summary")
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// ListSummaries returns all stored summaries for a room, most recent first.
func (h *SummariesHandler) ListSummaries(w http.ResponseWriter, r *http.Request) {
	roomID, err := PathString(r, "roomID")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid room ID")
		return
	}

	summaries, err := h.store.ListSummaries(r.Context(), roomID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to list summaries")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"summaries": summaries,
		"total":     len(summaries),
	})
}

// GetLatestSummary returns the most recent summary of a kind (default
// final) for a room.
func (h *SummariesHandler) GetLatestSummary(w http.ResponseWriter, r *http.Request) {
	roomID, err := PathString(r, "roomID")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid room ID")
		return
	}

	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = "final"
	}

	s, err := h.store.GetLatestSummary(r.Context(), roomID, kind)
	if err != nil {
		WriteError(w, http.StatusNotFound, "no summary found")
		return
	}
	WriteJSON(w, http.StatusOK, s)
}
