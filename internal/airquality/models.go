// Package airquality provides cached air quality snapshots scored on the
// AQI scale.
package airquality

import (
	"errors"
	"time"

	"github.com/kilamate/kilamate/internal/aqi"
)

// Air quality errors.
var (
	ErrProviderUnavailable = errors.New("air quality provider unavailable")
	ErrInvalidCoordinates  = errors.New("invalid coordinates")
)

// Snapshot is a scored pollutant reading at a point.
type Snapshot struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`

	Reading  aqi.Reading   `json:"reading"`
	AQI      int           `json:"aqi"`
	Band     aqi.Band      `json:"band"`
	Dominant aqi.Pollutant `json:"dominant"`

	Components []Component `json:"components"`

	FetchedAt time.Time `json:"fetchedAt"`

	// Stale is set when the provider failed and an older reading was served.
	Stale bool `json:"stale"`
}

// Component is one pollutant's contribution to the index.
type Component struct {
	Pollutant     aqi.Pollutant `json:"pollutant"`
	Concentration float64       `json:"concentration"` // μg/m³
	SubIndex      int           `json:"subIndex"`

	// Percentage is a 0-100 value for progress bars.
	Percentage float64 `json:"percentage"`
}

// Score builds a Snapshot from a raw reading.
func Score(calc *aqi.Calculator, lat, lon float64, r aqi.Reading) *Snapshot {
	dominant, index := calc.Dominant(r)

	components := make([]Component, 0, len(aqi.Pollutants))
	for _, p := range aqi.Pollutants {
		v := r.Value(p)
		components = append(components, Component{
			Pollutant:     p,
			Concentration: v,
			SubIndex:      calc.SubIndex(p, v),
			Percentage:    aqi.PollutantPercentage(v, 0),
		})
	}

	return &Snapshot{
		Lat:        lat,
		Lon:        lon,
		Reading:    r,
		AQI:        index,
		Band:       aqi.Describe(index),
		Dominant:   dominant,
		Components: components,
	}
}
