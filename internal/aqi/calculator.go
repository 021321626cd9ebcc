package aqi

import (
	"math"
	"time"
)

// Reading is a snapshot of pollutant concentrations in µg/m³.
type Reading struct {
	PM25 float64 `json:"pm2_5"`
	PM10 float64 `json:"pm10"`
	O3   float64 `json:"o3"`
	NO2  float64 `json:"no2"`
	SO2  float64 `json:"so2"`
	CO   float64 `json:"co"`

	MeasuredAt time.Time `json:"measuredAt"`
}

// Value returns the concentration of a single pollutant.
func (r Reading) Value(p Pollutant) float64 {
	switch p {
	case PM25:
		return r.PM25
	case PM10:
		return r.PM10
	case O3:
		return r.O3
	case NO2:
		return r.NO2
	case SO2:
		return r.SO2
	case CO:
		return r.CO
	default:
		return 0
	}
}

// Calculator evaluates readings against a breakpoint table.
type Calculator struct {
	table Table
}

// NewCalculator creates a calculator for the given table. A nil table
// selects EPA.
func NewCalculator(table Table) *Calculator {
	if table == nil {
		table = EPA
	}
	return &Calculator{table: table}
}

var defaultCalculator = NewCalculator(EPA)

// Compute returns the overall AQI for a reading using the EPA table.
func Compute(r Reading) int {
	return defaultCalculator.Compute(r)
}

// SubIndex returns the index of a single pollutant using the EPA table.
func SubIndex(p Pollutant, concentration float64) int {
	return defaultCalculator.SubIndex(p, concentration)
}

// Dominant returns the pollutant that drives the overall index using the EPA table.
func Dominant(r Reading) (Pollutant, int) {
	return defaultCalculator.Dominant(r)
}

// Compute returns the overall index: the maximum of the per-pollutant
// sub-indices, never their average.
func (c *Calculator) Compute(r Reading) int {
	_, index := c.Dominant(r)
	return index
}

// Dominant returns the pollutant with the highest sub-index together with that
// index. Ties resolve to the pollutant listed first in Pollutants.
func (c *Calculator) Dominant(r Reading) (Pollutant, int) {
	dominant := PM25
	maxIndex := 0
	for _, p := range Pollutants {
		if idx := c.SubIndex(p, r.Value(p)); idx > maxIndex {
			dominant = p
			maxIndex = idx
		}
	}
	return dominant, maxIndex
}

// SubIndex converts a µg/m³ concentration into the pollutant's index.
func (c *Calculator) SubIndex(p Pollutant, concentration float64) int {
	segments, ok := c.table[p]
	if !ok || len(segments) == 0 {
		return 0
	}

	value := concentration
	if unit, ok := Units[p]; ok && unit.Divisor > 0 {
		value /= unit.Divisor
	}
	if value < 0 || math.IsNaN(value) {
		value = 0
	}

	for _, bp := range segments {
		if value > bp.ConcHigh {
			continue
		}
		// Published tables leave small gaps between segments; a value in a
		// gap starts the next segment.
		if value < bp.ConcLow {
			return bp.IndexLow
		}
		return interpolate(bp, value)
	}

	return MaxIndex
}

func interpolate(bp Breakpoint, value float64) int {
	span := bp.ConcHigh - bp.ConcLow
	if span <= 0 {
		return bp.IndexHigh
	}
	slope := float64(bp.IndexHigh-bp.IndexLow) / span
	return int(math.Round(slope*(value-bp.ConcLow) + float64(bp.IndexLow)))
}

// PollutantPercentage scales a concentration into a 0-100 progress value
// relative to max. A non-positive max defaults to 300.
func PollutantPercentage(value, max float64) float64 {
	if max <= 0 {
		max = 300
	}
	pct := value / max * 100
	return math.Min(math.Max(pct, 0), 100)
}
