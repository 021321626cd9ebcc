package weather

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/kilamate/kilamate/internal/gridcache"
)

// Provider defines the interface for weather data providers.
type Provider interface {
	GetCurrentWeather(ctx context.Context, lat, lon float64) (*Observation, error)

	// GetForecast fetches the 5 day / 3 hour forecast.
	GetForecast(ctx context.Context, lat, lon float64) (*Forecast, error)

	// ReverseGeocode returns the nearest named place.
	ReverseGeocode(ctx context.Context, lat, lon float64) (*Place, error)

	Name() string
}

// ServiceConfig holds configuration for the weather service.
type ServiceConfig struct {
	Provider Provider
	Logger   zerolog.Logger

	// CacheTTL is how long to cache weather and forecasts (default: 10 minutes).
	CacheTTL time.Duration

	// PlaceTTL is how long to cache reverse geocoding (default: 24 hours).
	PlaceTTL time.Duration

	// CacheGridSize is the size of cache grid cells in degrees (default: 0.1).
	CacheGridSize float64

	// StaleIfErrorTTL allows serving stale data on provider errors (default: 1 hour).
	StaleIfErrorTTL time.Duration

	Clock clockwork.Clock
}

// Service provides weather data with per grid cell caching.
type Service struct {
	provider Provider
	logger   zerolog.Logger

	current  *gridcache.Cache[*Observation]
	forecast *gridcache.Cache[*Forecast]
	places   *gridcache.Cache[*Place]
}

// NewService creates a new weather service.
func NewService(cfg ServiceConfig) *Service {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	placeTTL := cfg.PlaceTTL
	if placeTTL == 0 {
		placeTTL = 24 * time.Hour
	}
	stale := cfg.StaleIfErrorTTL
	if stale == 0 {
		stale = time.Hour
	}

	base := gridcache.Config{
		TTL:      ttl,
		StaleTTL: stale,
		GridSize: cfg.CacheGridSize,
		Clock:    cfg.Clock,
		Logger:   cfg.Logger,
	}

	currentCfg := base
	currentCfg.Name = "weather"
	forecastCfg := base
	forecastCfg.Name = "forecast"
	placeCfg := base
	placeCfg.Name = "place"
	placeCfg.TTL = placeTTL
	placeCfg.StaleTTL = placeTTL + stale

	return &Service{
		provider: cfg.Provider,
		logger:   cfg.Logger,
		current:  gridcache.New[*Observation](currentCfg),
		forecast: gridcache.New[*Forecast](forecastCfg),
		places:   gridcache.New[*Place](placeCfg),
	}
}

// Name returns the provider name.
func (s *Service) Name() string {
	return s.provider.Name()
}

// GetCurrentWeather returns current weather for a location.
func (s *Service) GetCurrentWeather(ctx context.Context, lat, lon float64) (*Observation, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}

	res, err := s.current.Get(ctx, lat, lon, func(ctx context.Context) (*Observation, error) {
		s.logger.Debug().
			Float64("lat", lat).
			Float64("lon", lon).
			Str("provider", s.provider.Name()).
			Msg("fetching weather from provider")
		return s.provider.GetCurrentWeather(ctx, lat, lon)
	})
	if err != nil {
		s.logger.Error().Err(err).Float64("lat", lat).Float64("lon", lon).Msg("failed to fetch weather")
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	return res.Value, nil
}

// GetForecast returns the 3 hourly forecast for a location.
func (s *Service) GetForecast(ctx context.Context, lat, lon float64) (*Forecast, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}

	res, err := s.forecast.Get(ctx, lat, lon, func(ctx context.Context) (*Forecast, error) {
		s.logger.Debug().
			Float64("lat", lat).
			Float64("lon", lon).
			Str("provider", s.provider.Name()).
			Msg("fetching forecast from provider")
		return s.provider.GetForecast(ctx, lat, lon)
	})
	if err != nil {
		s.logger.Error().Err(err).Float64("lat", lat).Float64("lon", lon).Msg("failed to fetch forecast")
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	return res.Value, nil
}

// ReverseGeocode returns the nearest named place. ErrLocationNotFound is
// returned as is when the upstream knows no place there.
func (s *Service) ReverseGeocode(ctx context.Context, lat, lon float64) (*Place, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}

	res, err := s.places.Get(ctx, lat, lon, func(ctx context.Context) (*Place, error) {
		return s.provider.ReverseGeocode(ctx, lat, lon)
	})
	if errors.Is(err, ErrLocationNotFound) {
		return nil, err
	}
	if err != nil {
		s.logger.Warn().Err(err).Float64("lat", lat).Float64("lon", lon).Msg("failed to reverse geocode")
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	return res.Value, nil
}

// InvalidateCache clears all cached data.
func (s *Service) InvalidateCache() {
	s.current.Invalidate()
	s.forecast.Invalidate()
	s.places.Invalidate()
}

// CacheStats contains cache statistics.
type CacheStats struct {
	Weather  gridcache.Stats `json:"weather"`
	Forecast gridcache.Stats `json:"forecast"`
	Places   gridcache.Stats `json:"places"`
	Provider string          `json:"provider"`
}

// CacheStats returns cache statistics.
func (s *Service) CacheStats() CacheStats {
	return CacheStats{
		Weather:  s.current.Stats(),
		Forecast: s.forecast.Stats(),
		Places:   s.places.Stats(),
		Provider: s.provider.Name(),
	}
}

// ValidateCoordinates checks latitude and longitude ranges.
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}
