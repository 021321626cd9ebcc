// Package resilience wraps upstream HTTP calls (OpenWeatherMap, app shell
// origin) in a circuit breaker with bounded exponential retries.
package resilience

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the circuit breaker of a Client.
type BreakerConfig struct {
	Name string

	// MaxRequests allowed through while half-open (default: 1).
	MaxRequests uint32

	// Interval clears closed-state counts periodically; 0 never clears.
	Interval time.Duration

	// OpenTimeout is how long the breaker stays open before probing (default: 30s).
	OpenTimeout time.Duration

	// ReadyToTrip decides when to open. Nil uses ShouldTrip.
	ReadyToTrip func(counts gobreaker.Counts) bool
}

// DefaultBreakerConfig returns the breaker settings used for upstreams.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:        name,
		MaxRequests: 1,
		OpenTimeout: 30 * time.Second,
		ReadyToTrip: ShouldTrip,
	}
}

// ShouldTrip opens the breaker once 5 or more requests were seen and at
// least half of them failed.
func ShouldTrip(counts gobreaker.Counts) bool {
	if counts.Requests < 5 {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
}

func newBreaker[T any](cfg BreakerConfig, logger zerolog.Logger) *gobreaker.CircuitBreaker[T] {
	readyToTrip := cfg.ReadyToTrip
	if readyToTrip == nil {
		readyToTrip = ShouldTrip
	}

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: readyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("upstream", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
}
