package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/snarg/podium/internal/database"
)

// CaptionStore is the storage surface the caption endpoints need.
type CaptionStore interface {
	ListCaptionsPage(ctx context.Context, roomID string, limit, offset int) ([]database.CaptionAPI, int, error)
}

// CaptionStreamer opens a live, ordered caption feed for a room:
// existing captions first, then new inserts as they land.
type CaptionStreamer interface {
	Stream(ctx context.Context, roomID string) (<-chan database.CaptionAPI, func(), error)
}

type CaptionsHandler struct {
	store    CaptionStore
	streamer CaptionStreamer
}

func NewCaptionsHandler(store CaptionStore, streamer CaptionStreamer) *CaptionsHandler {
	return &CaptionsHandler{store: store, streamer: streamer}
}

func (h *CaptionsHandler) Routes(r chi.Router) {
	r.Get("/rooms/{roomID}/captions", h.ListCaptions)
	r.Get("/rooms/{roomID}/captions/stream", h.StreamCaptions)
}

// ListCaptions returns a page of a room's final captions in timestamp order.
func (h *CaptionsHandler) ListCaptions(w http.ResponseWriter, r *http.Request) {
	roomID, err := PathString(r, "roomID")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid room ID")
		return
	}

	p, err := ParsePagination(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	captions, total, err := h.store.ListCaptionsPage(r.Context(), roomID, p.Limit, p.Offset)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to list captions")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"captions": captions,
		"total":    total,
		"limit":    p.Limit,
		"offset":   p.Offset,
	})
}

// StreamCaptions opens an SSE connection that replays the room's existing
// captions and then pushes new ones as they are inserted.
func (h *CaptionsHandler) StreamCaptions(w http.ResponseWriter, r *http.Request) {
	roomID, err := PathString(r, "roomID")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid room ID")
		return
	}

	if h.streamer == nil {
		WriteError(w, http.StatusServiceUnavailable, "caption streaming not available")
		return
	}

	ch, cancel, err := h.streamer.Stream(r.Context(), roomID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to open caption stream")
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Works through wrapping middleware writers via Unwrap.
	rc := http.NewResponseController(w)
	rc.Flush()

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	log := hlog.FromRequest(r)
	log.Info().Str("room_id", roomID).Msg("caption stream client connected")

	for {
		select {
		case <-r.Context().Done():
			log.Info().Str("room_id", roomID).Msg("caption stream client disconnected")
			return
		case c, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(c)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: caption\ndata: %s\n\n", c.ID, data)
			rc.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			rc.Flush()
		}
	}
}
