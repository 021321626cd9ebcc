// Package gridcache caches upstream lookups per lat/lon grid cell with a
// fresh TTL and a longer stale-if-error window.
package gridcache

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Config holds configuration for a Cache.
type Config struct {
	// Name labels log lines.
	Name string

	// TTL is how long an entry is served without refetching (default: 10 minutes).
	TTL time.Duration

	// StaleTTL is how long after fetching an entry may still be served when
	// the upstream fails (default: 1 hour).
	StaleTTL time.Duration

	// GridSize is the cell size in degrees (default: 0.1, ~11km at the equator).
	GridSize float64

	// CleanupInterval throttles removal of entries past StaleTTL (default: 5 minutes).
	CleanupInterval time.Duration

	Clock  clockwork.Clock
	Logger zerolog.Logger
}

// Cache holds one value per grid cell.
type Cache[T any] struct {
	name            string
	ttl             time.Duration
	staleTTL        time.Duration
	gridSize        float64
	cleanupInterval time.Duration
	clock           clockwork.Clock
	logger          zerolog.Logger

	mu          sync.RWMutex
	entries     map[string]*entry[T]
	lastCleanup time.Time
}

type entry[T any] struct {
	value     T
	fetchedAt time.Time
	expiresAt time.Time
}

// Result is a value served from the cache or the upstream.
type Result[T any] struct {
	Value     T
	FetchedAt time.Time

	// Stale is set when the upstream failed and an expired entry was served.
	Stale bool
}

// New creates a Cache.
func New[T any](cfg Config) *Cache[T] {
	if cfg.TTL == 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.StaleTTL == 0 {
		cfg.StaleTTL = time.Hour
	}
	if cfg.GridSize == 0 {
		cfg.GridSize = 0.1
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	return &Cache[T]{
		name:            cfg.Name,
		ttl:             cfg.TTL,
		staleTTL:        cfg.StaleTTL,
		gridSize:        cfg.GridSize,
		cleanupInterval: cfg.CleanupInterval,
		clock:           cfg.Clock,
		logger:          cfg.Logger,
		entries:         make(map[string]*entry[T]),
	}
}

// Key returns the grid cell of a point.
func (c *Cache[T]) Key(lat, lon float64) string {
	gridLat := math.Floor(lat/c.gridSize) * c.gridSize
	gridLon := math.Floor(lon/c.gridSize) * c.gridSize
	return fmt.Sprintf("%.2f:%.2f", gridLat, gridLon)
}

// Get returns the fresh entry for the point's cell or calls fetch. When fetch
// fails, an entry younger than StaleTTL is served instead of the error.
func (c *Cache[T]) Get(ctx context.Context, lat, lon float64, fetch func(ctx context.Context) (T, error)) (Result[T], error) {
	key := c.Key(lat, lon)

	c.mu.RLock()
	if e, ok := c.entries[key]; ok && c.clock.Now().Before(e.expiresAt) {
		c.mu.RUnlock()
		return Result[T]{Value: e.value, FetchedAt: e.fetchedAt}, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if e, ok := c.entries[key]; ok && now.Before(e.expiresAt) {
		return Result[T]{Value: e.value, FetchedAt: e.fetchedAt}, nil
	}

	value, err := fetch(ctx)
	if err != nil {
		if e, ok := c.entries[key]; ok && now.Before(e.fetchedAt.Add(c.staleTTL)) {
			c.logger.Warn().
				Err(err).
				Str("cache", c.name).
				Time("fetched_at", e.fetchedAt).
				Msg("serving stale data due to upstream error")
			return Result[T]{Value: e.value, FetchedAt: e.fetchedAt, Stale: true}, nil
		}

		var zero T
		return Result[T]{Value: zero}, err
	}

	c.entries[key] = &entry[T]{
		value:     value,
		fetchedAt: now,
		expiresAt: now.Add(c.ttl),
	}
	c.cleanupLocked(now)

	return Result[T]{Value: value, FetchedAt: now}, nil
}

// cleanupLocked drops entries past StaleTTL, at most once per CleanupInterval.
func (c *Cache[T]) cleanupLocked(now time.Time) {
	if now.Sub(c.lastCleanup) < c.cleanupInterval {
		return
	}
	c.lastCleanup = now

	removed := 0
	for key, e := range c.entries {
		if now.After(e.fetchedAt.Add(c.staleTTL)) {
			delete(c.entries, key)
			removed++
		}
	}

	if removed > 0 {
		c.logger.Debug().Str("cache", c.name).Int("expired_entries", removed).Msg("cleaned up expired cache entries")
	}
}

// Invalidate drops every entry.
func (c *Cache[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[T])
}

// Stats counts entries.
type Stats struct {
	Entries      int `json:"entries"`
	FreshEntries int `json:"freshEntries"`
}

// Stats returns the current entry counts.
func (c *Cache[T]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.clock.Now()
	fresh := 0
	for _, e := range c.entries {
		if now.Before(e.expiresAt) {
			fresh++
		}
	}
	return Stats{Entries: len(c.entries), FreshEntries: fresh}
}
