package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/podium/internal/config"
	"github.com/snarg/podium/internal/database"
	"github.com/snarg/podium/internal/metrics"
	"github.com/snarg/podium/internal/recognition"
)

// Deps bundles the wired components the HTTP surface exposes.
type Deps struct {
	DB        *database.DB
	Feed      FeedHealth
	Streamer  CaptionStreamer
	Persist   recognition.PersistFunc
	Registry  *SessionRegistry
	Synth     SummarySynthesizer
	Version   string
	StartTime time.Time
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(cfg *config.Config, deps Deps, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(CORS)
	r.Use(metrics.InstrumentHandler)

	health := NewHealthHandler(deps.DB, deps.Feed, deps.Version, deps.StartTime)
	tuning := recognition.Options{
		BaseRestartDelay: cfg.RestartBaseDelay,
		RestartDelayStep: cfg.RestartDelayStep,
		MaxAttempts:      cfg.RestartMaxRetries,
	}
	captions := NewCaptionsHandler(deps.DB, deps.Streamer)
	speech := NewSpeechHandler(deps.Persist, deps.Registry, tuning, log)
	summaries := NewSummariesHandler(deps.Synth, deps.DB)

	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api/v1", func(r chi.Router) {
		// Health stays outside auth for load balancer probes
		r.Get("/health", health.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(cfg.AuthToken))
			captions.Routes(r)
			speech.Routes(r)
			summaries.Routes(r)
		})
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
