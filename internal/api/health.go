package api

import (
	"context"
	"net/http"
	"time"
)

// DBHealth is the database surface the health check needs.
type DBHealth interface {
	HealthCheck(ctx context.Context) error
}

// FeedHealth reports whether the live caption feed is attached to the
// store's notification channel.
type FeedHealth interface {
	Healthy() bool
}

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

type HealthHandler struct {
	db        DBHealth
	feed      FeedHealth
	version   string
	startTime time.Time
}

func NewHealthHandler(db DBHealth, feed FeedHealth, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		db:        db,
		feed:      feed,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	// Database check
	if err := h.db.HealthCheck(r.Context()); err != nil {
		checks["database"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	// Live caption feed check. A reconnecting feed degrades streaming but
	// reads and writes still work, so the service stays up.
	if h.feed != nil {
		if h.feed.Healthy() {
			checks["caption_feed"] = "ok"
		} else {
			checks["caption_feed"] = "reconnecting"
			if status == "healthy" {
				status = "degraded"
			}
		}
	} else {
		checks["caption_feed"] = "not_configured"
	}

	WriteJSON(w, httpStatus, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	})
}
