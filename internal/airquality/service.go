package airquality

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/kilamate/kilamate/internal/aqi"
	"github.com/kilamate/kilamate/internal/gridcache"
)

// Provider defines the interface for air pollution data providers.
type Provider interface {
	// GetAirPollution returns pollutant concentrations in μg/m³.
	GetAirPollution(ctx context.Context, lat, lon float64) (*aqi.Reading, error)
}

// ServiceConfig holds configuration for the air quality service.
type ServiceConfig struct {
	// Provider is the air pollution data provider.
	Provider Provider

	// Calculator scores readings (default: EPA breakpoints).
	Calculator *aqi.Calculator

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long to cache a reading (default: 10 minutes).
	CacheTTL time.Duration

	// StaleIfErrorTTL allows serving stale data on provider errors (default: 1 hour).
	StaleIfErrorTTL time.Duration

	// CacheGridSize is the size of cache grid cells in degrees (default: 0.1).
	CacheGridSize float64

	Clock clockwork.Clock
}

// Service provides scored air quality snapshots with per grid cell caching.
type Service struct {
	provider Provider
	calc     *aqi.Calculator
	logger   zerolog.Logger
	cache    *gridcache.Cache[aqi.Reading]
}

// NewService creates a new air quality service.
func NewService(cfg ServiceConfig) *Service {
	calc := cfg.Calculator
	if calc == nil {
		calc = aqi.NewCalculator(nil)
	}

	return &Service{
		provider: cfg.Provider,
		calc:     calc,
		logger:   cfg.Logger,
		cache: gridcache.New[aqi.Reading](gridcache.Config{
			Name:     "air_quality",
			TTL:      cfg.CacheTTL,
			StaleTTL: cfg.StaleIfErrorTTL,
			GridSize: cfg.CacheGridSize,
			Clock:    cfg.Clock,
			Logger:   cfg.Logger,
		}),
	}
}

// GetSnapshot returns the scored air quality at a point.
func (s *Service) GetSnapshot(ctx context.Context, lat, lon float64) (*Snapshot, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, ErrInvalidCoordinates
	}

	res, err := s.cache.Get(ctx, lat, lon, func(ctx context.Context) (aqi.Reading, error) {
		s.logger.Debug().Float64("lat", lat).Float64("lon", lon).Msg("fetching air pollution from provider")
		r, err := s.provider.GetAirPollution(ctx, lat, lon)
		if err != nil {
			return aqi.Reading{}, err
		}
		return *r, nil
	})
	if err != nil {
		s.logger.Error().Err(err).Float64("lat", lat).Float64("lon", lon).Msg("failed to fetch air pollution")
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	snap := Score(s.calc, lat, lon, res.Value)
	snap.FetchedAt = res.FetchedAt
	snap.Stale = res.Stale
	return snap, nil
}

// InvalidateCache clears all cached readings.
func (s *Service) InvalidateCache() {
	s.cache.Invalidate()
}

// CacheStats returns cache statistics.
func (s *Service) CacheStats() gridcache.Stats {
	return s.cache.Stats()
}
