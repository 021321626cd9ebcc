// Package worker runs background alert evaluation for Kilamate.
package worker

import (
	"time"
)

// WatchTarget is a named location alerts are evaluated for.
type WatchTarget struct {
	Name string
	Lat  float64
	Lon  float64
}

// WatchConfig holds configuration for the alert watch job.
type WatchConfig struct {
	// Targets are the locations to evaluate.
	// If empty, uses DefaultWatchTargets.
	Targets []WatchTarget

	// Concurrency is the number of concurrent evaluations.
	// Default: 3
	Concurrency int

	// Timeout is the timeout for each target.
	// Default: 30 seconds
	Timeout time.Duration
}

// DefaultWatchConfig returns the default watch configuration.
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		Targets:     DefaultWatchTargets(),
		Concurrency: 3,
		Timeout:     30 * time.Second,
	}
}

// DefaultWatchTargets returns the district headquarters of Jammu and Kashmir.
func DefaultWatchTargets() []WatchTarget {
	return []WatchTarget{
		{Name: "Srinagar", Lat: 34.0837, Lon: 74.7973},
		{Name: "Jammu", Lat: 32.7266, Lon: 74.8570},
		{Name: "Baramulla", Lat: 34.1980, Lon: 74.3636},
		{Name: "Anantnag", Lat: 33.7311, Lon: 75.1487},
		{Name: "Budgam", Lat: 34.0220, Lon: 74.7190},
		{Name: "Pulwama", Lat: 33.8716, Lon: 74.8946},
	}
}

func (c WatchConfig) withDefaults() WatchConfig {
	d := DefaultWatchConfig()
	if len(c.Targets) == 0 {
		c.Targets = d.Targets
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}
