package captions

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/snarg/podium/internal/database"
)

// CaptionLister is the bulk-fetch surface the reader needs.
type CaptionLister interface {
	ListCaptions(ctx context.Context, roomID string) ([]database.CaptionAPI, error)
}

// Feed delivers live caption inserts for a room.
type Feed interface {
	Subscribe(roomID string) (<-chan database.CaptionAPI, func())
}

// Reader presents a room's captions as a live, ordered sequence:
// one bulk fetch of existing final captions (timestamp ascending)
// followed by new inserts in arrival order.
type Reader struct {
	store CaptionLister
	feed  Feed
	log   zerolog.Logger
}

// NewReader creates a reader over the given store and live feed.
func NewReader(store CaptionLister, feed Feed, log zerolog.Logger) *Reader {
	return &Reader{store: store, feed: feed, log: log}
}

// Stream subscribes to a room's captions. The live subscription is
// taken out before the bulk fetch so no insert can fall between the
// two; captions already covered by the fetch are de-duplicated by id.
// The returned cancel releases the feed subscription; it is safe to
// call more than once. The output channel closes when ctx is done or
// cancel is called.
func (r *Reader) Stream(ctx context.Context, roomID string) (<-chan database.CaptionAPI, func(), error) {
	live, unsubscribe := r.feed.Subscribe(roomID)

	backlog, err := r.store.ListCaptions(ctx, roomID)
	if err != nil {
		unsubscribe()
		return nil, nil, err
	}

	seen := make(map[string]bool, len(backlog))
	for _, c := range backlog {
		seen[c.ID] = true
	}

	out := make(chan database.CaptionAPI, 64)
	done := make(chan struct{})

	go func() {
		defer close(out)
		for _, c := range backlog {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
		for {
			select {
			case c := <-live:
				if seen[c.ID] {
					// Covered by the bulk fetch; the subscription
					// predates it, so overlap is expected.
					continue
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return
				case <-done:
					return
				}
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			unsubscribe()
			close(done)
		})
	}
	return out, cancel, nil
}
