package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/incident-feed/internal/cluster"
	"github.com/couchcryptid/incident-feed/internal/config"
	"github.com/couchcryptid/incident-feed/internal/dedup"
	"github.com/couchcryptid/incident-feed/internal/fetch"
	"github.com/couchcryptid/incident-feed/internal/geotag"
	"github.com/couchcryptid/incident-feed/internal/health"
	"github.com/couchcryptid/incident-feed/internal/httpapi"
	"github.com/couchcryptid/incident-feed/internal/lifecycle"
	"github.com/couchcryptid/incident-feed/internal/observability"
	"github.com/couchcryptid/incident-feed/internal/publish"
	"github.com/couchcryptid/incident-feed/internal/scheduler"
	"github.com/couchcryptid/incident-feed/internal/source"
	"github.com/couchcryptid/incident-feed/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	plugins := source.Catalog(source.CatalogConfig{
		FirmsAPIKey: cfg.FirmsAPIKey,
		NVDAPIKey:   cfg.NVDAPIKey,
	})
	if cfg.FeedsDir != "" {
		packs, err := source.LoadFeedPacks(cfg.FeedsDir)
		if err != nil {
			logger.Error("failed to load feed packs", "dir", cfg.FeedsDir, "error", err)
			os.Exit(1)
		}
		plugins = append(plugins, packs...)
	}

	bus := publish.NewBus(0, metrics)
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Kafka sink is feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS.
	if cfg.KafkaEnabled {
		sink := publish.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer sink.Close()
		go sink.Run(ctx, bus)
		logger.Info("kafka event sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka event sink disabled")
	}

	sched := scheduler.New(
		scheduler.Options{MaxConcurrency: cfg.MaxConcurrency, MaxDuePerTick: cfg.MaxDuePerTick},
		st,
		fetch.NewClient(cfg.UserAgent, logger),
		geotag.NewResolver(st, logger),
		dedup.NewEngine(st),
		cluster.NewEngine(st, logger),
		health.NewTracker(st, logger),
		lifecycle.NewManager(st, logger,
			time.Duration(cfg.ItemsRetentionDays)*24*time.Hour,
			time.Duration(cfg.IncidentsRetentionDays)*24*time.Hour),
		bus,
		metrics,
		logger,
	)
	if err := sched.Register(ctx, plugins); err != nil {
		logger.Error("failed to register sources", "error", err)
		os.Exit(1)
	}

	srv := httpapi.NewServer(cfg.HTTPAddr, st, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the polling loop.
	if cfg.PollingEnabled {
		go func() {
			if err := sched.Run(ctx); err != nil {
				logger.Error("scheduler error", "error", err)
			}
		}()
	} else {
		logger.Info("polling disabled, serving stored data only")
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
