package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/snarg/podium"
	"github.com/snarg/podium/internal/aggregate"
	"github.com/snarg/podium/internal/api"
	"github.com/snarg/podium/internal/captions"
	"github.com/snarg/podium/internal/config"
	"github.com/snarg/podium/internal/database"
	"github.com/snarg/podium/internal/metrics"
	"github.com/snarg/podium/internal/notify"
	"github.com/snarg/podium/internal/synthesis"
)

var version = "dev"

// liveStats feeds the scrape-time gauges from the live components.
type liveStats struct {
	registry *api.SessionRegistry
	bus      *notify.Bus
}

func (s liveStats) ActiveSessionCount() int    { return s.registry.Count() }
func (s liveStats) StreamSubscriberCount() int { return s.bus.SubscriberCount() }

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file")
	flag.StringVar(&overrides.HTTPAddr, "http-addr", "", "HTTP listen address")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	flag.StringVar(&overrides.DatabaseURL, "db-url", "", "database connection URL")
	flag.Parse()

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("podium starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.DatabaseURL, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.InitSchema(ctx, podium.SchemaSQL); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize schema")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Live caption feed: insert trigger -> LISTEN -> bus
	bus := notify.NewBus()
	listener := notify.NewListener(db.Pool, bus, log.With().Str("component", "notify").Logger())
	go listener.Run(ctx)

	// Caption pipeline
	persister := captions.NewPersister(db, cfg.PersistTimeout, log.With().Str("component", "persister").Logger())
	reader := captions.NewReader(db, bus, log.With().Str("component", "reader").Logger())

	// Summary synthesis
	generator, err := synthesis.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create generative client")
	}
	if generator == nil {
		log.Info().Msg("no generative API key configured, summaries use the local fallback")
	}
	aggregator := aggregate.New(db, log.With().Str("component", "aggregate").Logger())
	synthesizer := synthesis.New(aggregator, genOrNil(generator), db, log.With().Str("component", "synthesis").Logger())

	// HTTP server
	registry := api.NewSessionRegistry()
	prometheus.MustRegister(metrics.NewCollector(db.Pool, liveStats{registry: registry, bus: bus}))

	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, api.Deps{
		DB:        db,
		Feed:      listener,
		Streamer:  reader,
		Persist:   persister.Persist,
		Registry:  registry,
		Synth:     synthesizer,
		Version:   version,
		StartTime: startTime,
	}, httpLog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	registry.StopAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	persister.Wait()

	log.Info().Msg("podium stopped")
}

// genOrNil keeps a typed-nil *GeminiGenerator out of the Generator
// interface so the synthesizer's nil check works.
func genOrNil(g *synthesis.GeminiGenerator) synthesis.Generator {
	if g == nil {
		return nil
	}
	return g
}
