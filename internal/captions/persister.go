package captions

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/podium/internal/database"
	"github.com/snarg/podium/internal/metrics"
	"github.com/snarg/podium/internal/recognition"
)

// CaptionStore is the storage surface the persister needs.
type CaptionStore interface {
	InsertCaption(ctx context.Context, row *database.CaptionRow) (string, error)
}

// Persister writes finalized captions with at-most-once, lossy-on-failure
// semantics: a failed write is logged and dropped so a transient storage
// error can never stall or kill the live recognition session. There is
// no retry queue.
type Persister struct {
	store   CaptionStore
	log     zerolog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewPersister creates a persister with a per-write timeout.
func NewPersister(store CaptionStore, timeout time.Duration, log zerolog.Logger) *Persister {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Persister{store: store, log: log, timeout: timeout}
}

// Persist accepts a caption creation request and writes it in the
// background. Requests without non-empty trimmed text or a resolved
// side are rejected up front.
func (p *Persister) Persist(req recognition.PersistRequest) {
	text := strings.TrimSpace(req.Text)
	if text == "" || req.Side == "" {
		return
	}

	row := &database.CaptionRow{
		RoomID:     req.RoomID,
		UserID:     req.SpeakerID,
		Side:       req.Side,
		Content:    text,
		Confidence: clamp01(req.Confidence),
		Timestamp:  time.Now().UTC(),
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		// Detached from the session's context: a closing speaker
		// socket must not abort an in-flight caption write.
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		if _, err := p.store.InsertCaption(ctx, row); err != nil {
			metrics.CaptionPersistFailuresTotal.Inc()
			p.log.Warn().Err(err).
				Str("room_id", row.RoomID).
				Str("speaker_id", row.UserID).
				Msg("caption write failed, dropping")
			return
		}
		metrics.CaptionsPersistedTotal.Inc()
	}()
}

// Wait blocks until all in-flight writes complete. Used on shutdown and
// in tests.
func (p *Persister) Wait() {
	p.wg.Wait()
}

func clamp01(c float32) float32 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
