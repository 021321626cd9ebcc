// Package main provides the entrypoint for the Kilamate alert worker.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kilamate/kilamate/internal/api/middleware"
	"github.com/kilamate/kilamate/internal/api/response"
	"github.com/kilamate/kilamate/internal/app"
	"github.com/kilamate/kilamate/internal/config"
	"github.com/kilamate/kilamate/internal/observability"
	"github.com/kilamate/kilamate/internal/telemetry"
	"github.com/kilamate/kilamate/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "kilamate-worker"

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := app.NewLogger(cfg.App, serviceName, Version)
	log.Info().Str("build_time", BuildTime).Msg("starting Kilamate worker")

	if err := cfg.RequireAPIKey(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.App.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()

	metrics := observability.NewMetrics()

	components, err := app.New(ctx, cfg, log, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize services")
	}
	defer func() {
		if err := components.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close services")
		}
	}()

	job := worker.NewWatchJob(worker.WatchJobConfig{
		Config: worker.WatchConfig{
			Targets:     watchTargets(cfg.Worker.Targets),
			Concurrency: cfg.Worker.Concurrency,
			Timeout:     cfg.Worker.Timeout,
		},
		Evaluator: components.Dashboard,
		Notifier:  components.Notifier,
		Logger:    log,
		Metrics:   metrics,
	})

	// Worker also exposes a health endpoint for Cloud Run
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      healthRouter(job, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	if cfg.Notify.PubSub.ProjectID != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.Notify.PubSub.ProjectID,
			SubscriptionName: cfg.Notify.PubSub.Subscription,
			Job:              job,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer handler.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		runLoop(ctx, job, cfg.Worker.Interval, log)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}
	wg.Wait()

	log.Info().Msg("worker stopped")
}

// runLoop evaluates every target once at start and then on each tick.
func runLoop(ctx context.Context, job *worker.WatchJob, interval time.Duration, log zerolog.Logger) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job.Run(ctx)

		select {
		case <-ctx.Done():
			log.Info().Msg("watch loop stopped")
			return
		case <-ticker.C:
		}
	}
}

func healthRouter(job *worker.WatchJob, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]any{
			"status":  "healthy",
			"version": Version,
			"watch":   job.Status(),
		})
	})
	r.Method(http.MethodGet, "/metrics", observability.Handler())
	return r
}

func watchTargets(targets []config.WatchTarget) []worker.WatchTarget {
	out := make([]worker.WatchTarget, 0, len(targets))
	for _, t := range targets {
		out = append(out, worker.WatchTarget{Name: t.Name, Lat: t.Lat, Lon: t.Lon})
	}
	return out
}
