// Package app wires the services shared by the API server and the worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/pubsub/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kilamate/kilamate/internal/airquality"
	"github.com/kilamate/kilamate/internal/alert"
	"github.com/kilamate/kilamate/internal/config"
	"github.com/kilamate/kilamate/internal/dashboard"
	"github.com/kilamate/kilamate/internal/database"
	"github.com/kilamate/kilamate/internal/geolocation"
	"github.com/kilamate/kilamate/internal/gridcache"
	"github.com/kilamate/kilamate/internal/kv"
	"github.com/kilamate/kilamate/internal/notify"
	"github.com/kilamate/kilamate/internal/observability"
	"github.com/kilamate/kilamate/internal/preferences"
	"github.com/kilamate/kilamate/internal/provider/resilience"
	"github.com/kilamate/kilamate/internal/weather"
	"github.com/kilamate/kilamate/internal/weather/openweathermap"
)

// Components are the long-lived services built from a Config.
type Components struct {
	Store kv.Store

	// Redis is nil unless the redis storage backend is selected.
	Redis redis.UniversalClient

	Providers   *resilience.Registry
	Weather     *weather.Service
	AirQuality  *airquality.Service
	Preferences *preferences.Service
	Gate        *notify.Gate
	Notifier    *alert.Notifier
	Resolver    *geolocation.Resolver
	Dashboard   *dashboard.Service

	logger  zerolog.Logger
	closers []io.Closer
}

// NewLogger builds the service logger. Development logs are human readable.
func NewLogger(cfg config.AppConfig, service, version string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if !cfg.Production() {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Logger()
}

// New builds every shared service. metrics may be nil.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics) (*Components, error) {
	c := &Components{
		Providers: resilience.NewRegistry(),
		logger:    logger,
	}

	if err := c.openStore(ctx, cfg.Storage); err != nil {
		_ = c.Close()
		return nil, err
	}

	rc := resilience.DefaultClientConfig(openweathermap.ProviderName)
	rc.Timeout = cfg.OWM.Timeout
	rc.MaxRetries = cfg.OWM.MaxRetries
	rc.Registry = c.Providers
	rc.Logger = logger

	owm := openweathermap.NewClient(openweathermap.ClientConfig{
		APIKey:     cfg.OWM.APIKey,
		BaseURL:    cfg.OWM.BaseURL,
		GeoURL:     cfg.OWM.GeoURL,
		Language:   cfg.OWM.Language,
		HTTPClient: resilience.NewClient(rc),
		Logger:     logger,
	})

	c.Weather = weather.NewService(weather.ServiceConfig{
		Provider:        owm,
		Logger:          logger,
		CacheTTL:        cfg.OWM.CacheTTL,
		StaleIfErrorTTL: cfg.OWM.StaleTTL,
	})
	c.AirQuality = airquality.NewService(airquality.ServiceConfig{
		Provider:        owm,
		Logger:          logger,
		CacheTTL:        cfg.OWM.CacheTTL,
		StaleIfErrorTTL: cfg.OWM.StaleTTL,
	})

	c.Preferences = preferences.NewService(preferences.ServiceConfig{
		Store:  preferences.NewKVStore(c.Store),
		Logger: logger,
	})

	dispatcher, err := c.dispatcher(ctx, cfg.Notify)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Gate = notify.NewGate(notify.GateConfig{
		Dispatcher:  dispatcher,
		Permissions: c.Preferences,
		URL:         cfg.Notify.URL,
		Logger:      logger,
		Metrics:     metrics,
	})
	c.Notifier = alert.NewNotifier(alert.NotifierConfig{
		Store:    alert.NewKVStore(c.Store),
		Gate:     c.Gate,
		Cooldown: cfg.Alerts.Cooldown,
		Logger:   logger,
		Metrics:  metrics,
	})

	geo := geolocation.Config{Geocoder: c.Weather, Logger: logger}
	if cfg.Location.Enabled {
		geo.Default = &geolocation.Position{
			Lat:  cfg.Location.Lat,
			Lon:  cfg.Location.Lon,
			Name: cfg.Location.Name,
		}
	}
	c.Resolver = geolocation.NewResolver(geo)

	c.Dashboard = dashboard.NewService(dashboard.Config{
		Weather:     c.Weather,
		AirQuality:  c.AirQuality,
		Preferences: c.Preferences,
		Notifier:    c.Notifier,
		Logger:      logger,
	})

	return c, nil
}

func (c *Components) openStore(ctx context.Context, cfg config.StorageConfig) error {
	switch cfg.Backend {
	case "postgres":
		pool, err := database.Connect(ctx, database.Config{
			URL:             cfg.Postgres.URL,
			MaxConns:        int32(cfg.Postgres.MaxConns), //nolint:gosec // small configured value
			MinConns:        int32(cfg.Postgres.MinConns), //nolint:gosec // small configured value
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
		})
		if err != nil {
			return err
		}
		c.closers = append(c.closers, closerFunc(func() error { pool.Close(); return nil }))

		store := kv.NewPostgresStore(pool, cfg.Namespace)
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		c.Store = store
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.Redis = client
		c.closers = append(c.closers, client)
		c.Store = kv.NewRedisStore(client, cfg.Namespace)
	case "file":
		store, err := kv.NewFileStore(cfg.Dir)
		if err != nil {
			return err
		}
		c.Store = store
	case "memory", "":
		c.Store = kv.NewMemoryStore()
	default:
		return fmt.Errorf("%w: %q", config.ErrUnknownStorage, cfg.Backend)
	}

	c.logger.Info().Str("backend", cfg.Backend).Msg("storage opened")
	return nil
}

// dispatcher builds the configured notification transports. A single
// transport is returned as is.
func (c *Components) dispatcher(ctx context.Context, cfg config.NotifyConfig) (notify.Dispatcher, error) {
	var transports notify.MultiDispatcher
	for _, name := range cfg.Transports {
		switch name {
		case "log":
			transports = append(transports, notify.NewLogDispatcher(c.logger))
		case "kafka":
			d := notify.NewKafkaDispatcher(notify.KafkaConfig{
				Brokers: cfg.Kafka.Brokers,
				Topic:   cfg.Kafka.Topic,
			})
			c.closers = append(c.closers, d)
			transports = append(transports, d)
		case "pubsub":
			if cfg.PubSub.ProjectID == "" {
				return nil, errors.New("PUBSUB_PROJECT_ID is required for the pubsub transport")
			}
			client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
			if err != nil {
				return nil, fmt.Errorf("creating pubsub client: %w", err)
			}
			d, err := notify.NewPubSubDispatcher(notify.PubSubConfig{Client: client, Topic: cfg.PubSub.Topic})
			if err != nil {
				_ = client.Close()
				return nil, err
			}
			// The dispatcher must stop before its client closes.
			c.closers = append(c.closers, client, d)
			transports = append(transports, d)
		default:
			return nil, fmt.Errorf("%w: %q", config.ErrUnknownTransport, name)
		}
		c.logger.Info().Str("transport", name).Msg("notification transport enabled")
	}

	switch len(transports) {
	case 0:
		return nil, nil
	case 1:
		return transports[0], nil
	default:
		return transports, nil
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// CacheStats reports every response cache by name.
func (c *Components) CacheStats() map[string]gridcache.Stats {
	ws := c.Weather.CacheStats()
	return map[string]gridcache.Stats{
		"weather":     ws.Weather,
		"forecast":    ws.Forecast,
		"places":      ws.Places,
		"air_quality": c.AirQuality.CacheStats(),
	}
}

// Close releases transports and connections in reverse order of creation.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
