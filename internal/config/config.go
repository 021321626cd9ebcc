// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Configuration errors.
var (
	ErrMissingAPIKey      = errors.New("OPENWEATHER_API_KEY is required")
	ErrUnknownStorage     = errors.New("unknown storage backend")
	ErrUnknownTransport   = errors.New("unknown notification transport")
	ErrInvalidWatchTarget = errors.New("invalid watch target")
)

// Config is the complete service configuration.
type Config struct {
	App       AppConfig
	OWM       OWMConfig
	Location  LocationConfig
	Offline   OfflineConfig
	Alerts    AlertsConfig
	Storage   StorageConfig
	Notify    NotifyConfig
	Telemetry TelemetryConfig
	RateLimit RateLimitConfig
	Worker    WorkerConfig
}

type AppConfig struct {
	Env      string
	Port     string
	LogLevel string

	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool
}

// Production reports whether the service runs in production.
func (a AppConfig) Production() bool {
	return a.Env == "production"
}

type OWMConfig struct {
	APIKey     string
	BaseURL    string
	GeoURL     string
	Language   string
	Timeout    time.Duration
	MaxRetries int
	CacheTTL   time.Duration
	StaleTTL   time.Duration
}

// LocationConfig is the fallback position when the client reports none.
// Enabled is false unless both coordinates are set.
type LocationConfig struct {
	Enabled bool
	Lat     float64
	Lon     float64
	Name    string
}

type OfflineConfig struct {
	Version           string
	Origin            string
	StaticDir         string
	APIHosts          []string
	RuntimeMaxEntries int
	RuntimeMaxAge     time.Duration
	NetworkTimeout    time.Duration
	SkipWaiting       bool
}

type AlertsConfig struct {
	Cooldown time.Duration
}

type StorageConfig struct {
	// Backend is memory, file, redis or postgres.
	Backend   string
	Dir       string
	Namespace string
	Redis     RedisConfig
	Postgres  PostgresConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
}

type NotifyConfig struct {
	// Transports is any of log, kafka, pubsub.
	Transports []string
	URL        string
	Kafka      KafkaConfig
	PubSub     PubSubConfig
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type PubSubConfig struct {
	ProjectID    string
	Topic        string
	Subscription string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

type WorkerConfig struct {
	Interval    time.Duration
	Concurrency int
	Timeout     time.Duration
	Targets     []WatchTarget
}

// WatchTarget is a location the worker evaluates alerts for.
type WatchTarget struct {
	Name string
	Lat  float64
	Lon  float64
}

// DefaultWatchTargets are the Jammu and Kashmir district headquarters.
const DefaultWatchTargets = "Srinagar:34.0837:74.7973,Jammu:32.7266:74.8570,Baramulla:34.1980:74.3636,Anantnag:33.7311:75.1487"

// Load reads configuration from the environment, after loading a .env file
// if one exists.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	targets, err := ParseWatchTargets(getEnv("WORKER_TARGETS", DefaultWatchTargets))
	if err != nil {
		return nil, err
	}

	lat, latErr := strconv.ParseFloat(getEnv("DEFAULT_LAT", ""), 64)
	lon, lonErr := strconv.ParseFloat(getEnv("DEFAULT_LON", ""), 64)

	cfg := &Config{
		App: AppConfig{
			Env:      getEnv("APP_ENV", "development"),
			Port:     getEnv("APP_PORT", "8080"),
			LogLevel: getEnv("LOG_LEVEL", "info"),

			RequireTLS: getEnvAsBool("REQUIRE_TLS", false),
		},
		OWM: OWMConfig{
			APIKey:     getEnv("OPENWEATHER_API_KEY", ""),
			BaseURL:    getEnv("OPENWEATHER_BASE_URL", "https://api.openweathermap.org/data/2.5"),
			GeoURL:     getEnv("OPENWEATHER_GEO_URL", "https://api.openweathermap.org/geo/1.0"),
			Language:   getEnv("OPENWEATHER_LANGUAGE", "en"),
			Timeout:    getEnvAsDuration("OPENWEATHER_TIMEOUT", 10*time.Second),
			MaxRetries: getEnvAsInt("OPENWEATHER_MAX_RETRIES", 2),
			CacheTTL:   getEnvAsDuration("WEATHER_CACHE_TTL", 10*time.Minute),
			StaleTTL:   getEnvAsDuration("WEATHER_STALE_TTL", time.Hour),
		},
		Location: LocationConfig{
			Enabled: latErr == nil && lonErr == nil,
			Lat:     lat,
			Lon:     lon,
			Name:    getEnv("DEFAULT_LOCATION_NAME", ""),
		},
		Offline: OfflineConfig{
			Version:           getEnv("OFFLINE_CACHE_VERSION", "1"),
			Origin:            getEnv("APP_ORIGIN", "http://localhost:8080"),
			StaticDir:         getEnv("STATIC_DIR", "./public"),
			APIHosts:          getEnvAsList("OFFLINE_API_HOSTS", []string{"openweathermap.org"}),
			RuntimeMaxEntries: getEnvAsInt("OFFLINE_RUNTIME_MAX_ENTRIES", 100),
			RuntimeMaxAge:     getEnvAsDuration("OFFLINE_RUNTIME_MAX_AGE", 30*time.Minute),
			NetworkTimeout:    getEnvAsDuration("OFFLINE_NETWORK_TIMEOUT", 10*time.Second),
			SkipWaiting:       getEnvAsBool("OFFLINE_SKIP_WAITING", true),
		},
		Alerts: AlertsConfig{
			Cooldown: getEnvAsDuration("ALERT_COOLDOWN", 24*time.Hour),
		},
		Storage: StorageConfig{
			Backend:   strings.ToLower(getEnv("STORAGE_BACKEND", "memory")),
			Dir:       getEnv("STORAGE_DIR", "./data"),
			Namespace: getEnv("STORAGE_NAMESPACE", "kilamate"),
			Redis: RedisConfig{
				Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvAsInt("REDIS_DB", 0),
			},
			Postgres: PostgresConfig{
				URL:             getEnv("DATABASE_URL", ""),
				MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
				MinConns:        getEnvAsInt("DB_MIN_CONNS", 1),
				MaxConnLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			},
		},
		Notify: NotifyConfig{
			Transports: getEnvAsList("NOTIFY_TRANSPORTS", []string{"log"}),
			URL:        getEnv("NOTIFY_URL", "/"),
			Kafka: KafkaConfig{
				Brokers: getEnvAsList("KAFKA_BROKERS", []string{"localhost:9092"}),
				Topic:   getEnv("KAFKA_TOPIC_NOTIFICATIONS", "kilamate.notifications"),
			},
			PubSub: PubSubConfig{
				ProjectID:    getEnv("PUBSUB_PROJECT_ID", ""),
				Topic:        getEnv("PUBSUB_TOPIC_NOTIFICATIONS", "kilamate-notifications"),
				Subscription: getEnv("PUBSUB_SUBSCRIPTION", "kilamate-worker"),
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:      getEnvAsBool("OTEL_ENABLED", false),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_RPM", 100),
		},
		Worker: WorkerConfig{
			Interval:    getEnvAsDuration("WORKER_INTERVAL", 15*time.Minute),
			Concurrency: getEnvAsInt("WORKER_CONCURRENCY", 3),
			Timeout:     getEnvAsDuration("WORKER_TIMEOUT", 30*time.Second),
			Targets:     targets,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "memory", "file", "redis", "postgres":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStorage, c.Storage.Backend)
	}
	for i, t := range c.Notify.Transports {
		t = strings.ToLower(t)
		c.Notify.Transports[i] = t
		switch t {
		case "log", "kafka", "pubsub":
		default:
			return fmt.Errorf("%w: %q", ErrUnknownTransport, t)
		}
	}
	return nil
}

// RequireAPIKey fails when no OpenWeatherMap key is configured.
func (c *Config) RequireAPIKey() error {
	if c.OWM.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// ParseWatchTargets parses "Name:lat:lon" entries separated by commas.
func ParseWatchTargets(s string) ([]WatchTarget, error) {
	var targets []WatchTarget
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidWatchTarget, entry)
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidWatchTarget, entry)
		}
		lon, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidWatchTarget, entry)
		}
		targets = append(targets, WatchTarget{Name: strings.TrimSpace(parts[0]), Lat: lat, Lon: lon})
	}
	return targets, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
