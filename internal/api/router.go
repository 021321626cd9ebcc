// Package api provides the HTTP API for Kilamate.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/kilamate/kilamate/internal/api/handler"
	"github.com/kilamate/kilamate/internal/api/middleware"
	"github.com/kilamate/kilamate/internal/api/response"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool

	// RateLimit applies per client IP to /v1 (default: StandardRateLimit).
	RateLimit middleware.RateLimitConfig

	Ops           handler.OpsConfig
	Resolver      handler.PositionResolver
	Dashboard     handler.DashboardBuilder
	AirQuality    handler.AirQualitySource
	Preferences   handler.PreferenceService
	Notifications handler.NotificationSender
	Offline       handler.OfflineManager

	// Prometheus serves /metrics when set.
	Prometheus http.Handler

	// Gateway serves every path no route claimed: the app shell and the
	// weather API proxy. Without it unknown paths are 404.
	Gateway http.Handler
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "kilamate-api"
	}
	if cfg.RateLimit.RequestLimit == 0 {
		cfg.RateLimit = middleware.StandardRateLimit
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement

	opsHandler := handler.NewOpsHandler(cfg.Ops)
	dashboardHandler := handler.NewDashboardHandler(cfg.Resolver, cfg.Dashboard, cfg.Logger)
	airQualityHandler := handler.NewAirQualityHandler(cfg.AirQuality, cfg.Logger)
	preferencesHandler := handler.NewPreferencesHandler(cfg.Preferences, cfg.Notifications, cfg.Logger)
	offlineHandler := handler.NewOfflineHandler(cfg.Offline, cfg.Logger)

	standardRateLimit := middleware.RateLimitByIP(cfg.RateLimit)
	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.SecurityHeaders)
		r.Use(middleware.ContentTypeJSON)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			response.NotFound(w, r, "no such endpoint")
		})

		// Ops endpoints (public) - no rate limiting for health checks
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		// Endpoints that fan out to the weather provider
		r.Group(func(r chi.Router) {
			r.Use(expensiveRateLimit)
			if cfg.Dashboard != nil && cfg.Resolver != nil {
				r.Get("/dashboard", dashboardHandler.GetDashboard)
				r.Get("/alerts", dashboardHandler.GetAlerts)
			}
			if cfg.AirQuality != nil {
				r.Get("/air-quality", airQualityHandler.GetAirQuality)
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Use(middleware.RequireJSON)

			r.Get("/aqi/bands", airQualityHandler.GetBands)

			if cfg.Preferences != nil {
				r.Get("/preferences", preferencesHandler.GetPreferences)
				r.Put("/preferences", preferencesHandler.UpdatePreferences)

				r.Route("/notifications", func(r chi.Router) {
					r.Get("/settings", preferencesHandler.GetNotificationSettings)
					r.Put("/settings", preferencesHandler.UpdateNotificationSettings)
					r.With(expensiveRateLimit).Post("/test", preferencesHandler.SendTestNotification)
				})
			}

			if cfg.Offline != nil {
				r.Route("/offline", func(r chi.Router) {
					r.Get("/status", offlineHandler.GetStatus)
					r.Post("/messages", offlineHandler.PostMessage)
				})
			}
		})
	})

	if cfg.Prometheus != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Prometheus)
	}

	if cfg.Gateway != nil {
		r.NotFound(middleware.Secure(middleware.ShellPolicy)(cfg.Gateway).ServeHTTP)
	} else {
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			response.NotFound(w, r, "not found")
		})
	}

	return r
}
