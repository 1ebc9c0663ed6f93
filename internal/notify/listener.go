package notify

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/snarg/podium/internal/database"
	"github.com/snarg/podium/internal/metrics"
)

const captionChannel = "caption_inserted"

// Listener holds one dedicated connection in LISTEN mode on the caption
// insert channel and republishes decoded rows onto the Bus. The insert
// trigger ships the full row as JSON, so no re-fetch is needed.
type Listener struct {
	pool    *pgxpool.Pool
	bus     *Bus
	log     zerolog.Logger
	healthy atomic.Bool
}

// NewListener creates a listener publishing to bus.
func NewListener(pool *pgxpool.Pool, bus *Bus, log zerolog.Logger) *Listener {
	return &Listener{pool: pool, bus: bus, log: log}
}

// Run blocks until ctx is cancelled, maintaining the LISTEN connection
// and reconnecting with a fixed backoff after connection loss.
func (l *Listener) Run(ctx context.Context) {
	for {
		if err := l.listen(ctx); err != nil {
			l.healthy.Store(false)
			if ctx.Err() != nil {
				return
			}
			l.log.Warn().Err(err).Msg("caption listener disconnected, retrying")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

// Healthy reports whether the LISTEN connection is currently up.
func (l *Listener) Healthy() bool {
	return l.healthy.Load()
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+captionChannel); err != nil {
		return err
	}
	l.healthy.Store(true)
	l.log.Info().Str("channel", captionChannel).Msg("caption listener attached")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		metrics.CaptionNotificationsTotal.Inc()

		var c captionPayload
		if err := json.Unmarshal([]byte(n.Payload), &c); err != nil {
			l.log.Warn().Err(err).Str("payload", n.Payload).Msg("undecodable caption notification, skipping")
			continue
		}
		l.bus.Publish(c.toAPI())
	}
}

// captionPayload mirrors the row_to_json output of the insert trigger.
type captionPayload struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	UserID     string    `json:"user_id"`
	Side       string    `json:"side"`
	Content    string    `json:"content"`
	Confidence float32   `json:"confidence"`
	Timestamp  time.Time `json:"ts"`
	IsFinal    bool      `json:"is_final"`
}

func (p captionPayload) toAPI() database.CaptionAPI {
	return database.CaptionAPI{
		ID:         p.ID,
		RoomID:     p.RoomID,
		UserID:     p.UserID,
		Side:       p.Side,
		Content:    p.Content,
		Confidence: p.Confidence,
		Timestamp:  p.Timestamp,
		IsFinal:    p.IsFinal,
	}
}
