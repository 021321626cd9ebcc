// Package main provides the entrypoint for the Kilamate API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/kilamate/kilamate/internal/api"
	"github.com/kilamate/kilamate/internal/api/handler"
	"github.com/kilamate/kilamate/internal/api/middleware"
	"github.com/kilamate/kilamate/internal/api/response"
	"github.com/kilamate/kilamate/internal/app"
	"github.com/kilamate/kilamate/internal/config"
	"github.com/kilamate/kilamate/internal/observability"
	"github.com/kilamate/kilamate/internal/offline"
	"github.com/kilamate/kilamate/internal/provider/resilience"
	"github.com/kilamate/kilamate/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "kilamate-api"

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := app.NewLogger(cfg.App, serviceName, Version)
	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.App.Env).
		Msg("starting Kilamate API")

	if err := cfg.RequireAPIKey(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
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

	manager, err := newOfflineManager(cfg, components, log, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize offline cache")
	}

	installCtx, cancelInstall := context.WithTimeout(ctx, 30*time.Second)
	report, err := manager.Install(installCtx)
	cancelInstall()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to install offline cache")
	}
	if len(report.Failed) > 0 {
		log.Warn().Strs("failed", report.Failed).Msg("app shell partially cached")
	}

	gateway := offline.NewGateway(offline.GatewayConfig{
		Manager:        manager,
		WeatherBaseURL: cfg.OWM.BaseURL,
		GeoBaseURL:     cfg.OWM.GeoURL,
		APIKey:         cfg.OWM.APIKey,
		OnError: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Warn().Err(err).Str("path", r.URL.Path).Msg("request not served online or from cache")
			response.Offline(w, r, "You are offline and this page has not been cached yet.")
		},
	})

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     httpMetrics,
		RequireTLS:  cfg.App.RequireTLS,
		RateLimit:   middleware.PerMinute(cfg.RateLimit.RequestsPerMinute),
		Ops: handler.OpsConfig{
			Version:   Version,
			BuildTime: BuildTime,
			Storage:   components.Store,
			Providers: components.Providers,
			Offline:   manager,
			Caches:    components.CacheStats,
		},
		Resolver:      components.Resolver,
		Dashboard:     components.Dashboard,
		AirQuality:    components.AirQuality,
		Preferences:   components.Preferences,
		Notifications: components.Gate,
		Offline:       manager,
		Prometheus:    observability.Handler(),
		Gateway:       gateway,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	manager.Wait()

	log.Info().Msg("server stopped")
}

// newOfflineManager serves the app shell from the static directory and the
// weather API through a resilient client. Caches live in redis when that is
// the storage backend.
func newOfflineManager(cfg *config.Config, c *app.Components, log zerolog.Logger, metrics *observability.Metrics) (*offline.Manager, error) {
	rc := resilience.DefaultClientConfig("offline-network")
	rc.Timeout = cfg.Offline.NetworkTimeout
	rc.MaxRetries = -1
	rc.Registry = c.Providers
	rc.Logger = log

	mc := offline.Config{
		Version:           cfg.Offline.Version,
		Origin:            cfg.Offline.Origin,
		APIHosts:          cfg.Offline.APIHosts,
		RuntimeMaxEntries: cfg.Offline.RuntimeMaxEntries,
		RuntimeMaxAge:     cfg.Offline.RuntimeMaxAge,
		NetworkTimeout:    cfg.Offline.NetworkTimeout,
		SkipWaiting:       cfg.Offline.SkipWaiting,
		Production:        cfg.App.Production(),
		Shell:             offline.NewFSFetcher(os.DirFS(cfg.Offline.StaticDir)),
		Network:           offline.NewHTTPFetcher(resilience.NewClient(rc), cfg.Offline.Origin),
		Logger:            log,
		Metrics:           metrics,
	}
	if c.Redis != nil {
		mc.Storage = offline.NewRedisStorage(c.Redis, cfg.Storage.Namespace)
	}

	return offline.NewManager(mc)
}
