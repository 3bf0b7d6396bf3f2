package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/YassChaai/SmartCare-Analytics/internal/api"
	"github.com/YassChaai/SmartCare-Analytics/internal/artifacts"
	"github.com/YassChaai/SmartCare-Analytics/internal/cache"
	"github.com/YassChaai/SmartCare-Analytics/internal/config"
	"github.com/YassChaai/SmartCare-Analytics/internal/forecast"
	"github.com/YassChaai/SmartCare-Analytics/internal/logging"
	"github.com/YassChaai/SmartCare-Analytics/internal/metrics"
	"github.com/YassChaai/SmartCare-Analytics/internal/resources"
	"github.com/YassChaai/SmartCare-Analytics/internal/series"
	"github.com/YassChaai/SmartCare-Analytics/internal/store"
	"github.com/YassChaai/SmartCare-Analytics/internal/wal"
	"github.com/YassChaai/SmartCare-Analytics/pkg/otel"
)

const serviceVersion = "1.0.0"

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	tp, err := otel.InitTracer(ctx, cfg.OtelConfig(serviceVersion))
	if err != nil {
		return err
	}
	defer otel.Shutdown(context.Background(), tp)

	hist, err := cfg.LoadSeries(ctx)
	if err != nil {
		return err
	}
	logger.Info("history loaded",
		zap.Int("records", hist.Len()),
		zap.String("first", hist.First().Date.Format(series.DateLayout)),
		zap.String("last", hist.Last().Date.Format(series.DateLayout)),
	)

	m := metrics.New(prometheus.DefaultRegisterer)
	arts := artifacts.NewStore(cfg.Artifacts.Dir, logger)
	forecaster := forecast.New(hist, arts, cfg.ForecastConfig(), logger, m)
	if cfg.Similarity.CacheSize > 0 {
		c, err := cache.NewNeighbours(cfg.Similarity.CacheSize, cfg.Similarity.CacheTTL.Duration)
		if err != nil {
			return err
		}
		forecaster.WithCache(c)
	}

	// A mismatched manifest would corrupt every prediction, so refuse to
	// serve. A missing model only degrades to statistics.
	warnings, err := forecaster.Validate(ctx)
	switch {
	case errors.Is(err, artifacts.ErrMissingArtifact):
		logger.Warn("no trained model, serving statistical estimates", zap.Error(err))
	case err != nil:
		return err
	}
	for _, w := range warnings {
		logger.Warn("feature validation", zap.String("warning", w))
	}

	st, err := store.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return err
	}
	defer st.Close()

	restored, err := wal.Restore(ctx, cfg.Store.JournalDir, st)
	if err != nil {
		logger.Warn("journal restore incomplete", zap.Int("restored", restored), zap.Error(err))
	} else if restored > 0 {
		logger.Info("journal restored", zap.Int("records", restored))
	}

	journal, err := wal.Open(cfg.Store.JournalDir)
	if err != nil {
		return err
	}
	defer journal.Close()

	capacity := resources.CapacityFrom(hist)
	if cfg.Resources.BedsTotal > 0 {
		capacity.BedsTotal = cfg.Resources.BedsTotal
	}

	srv := api.NewServer(api.Deps{
		Forecaster: forecaster,
		Artifacts:  arts,
		Store:      st,
		Journal:    journal,
		Capacity:   capacity,
		Logger:     logger,
		Metrics:    m,
	}, api.Options{
		TokenRate:       cfg.Server.TokenRate,
		MetricsUser:     cfg.Server.MetricsUser,
		MetricsPassword: cfg.Server.MetricsPassword,
		DefaultModel:    cfg.Inference.Model,
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Backend),
			zap.String("journal", journal.Path()),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-shutdown:
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
	return nil
}
