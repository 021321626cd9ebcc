package aqi_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kilamate/kilamate/internal/aqi"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		index int
		want  aqi.Level
		label string
	}{
		{math.MinInt, aqi.LevelGood, "Good"},
		{-1, aqi.LevelGood, "Good"},
		{0, aqi.LevelGood, "Good"},
		{50, aqi.LevelGood, "Good"},
		{51, aqi.LevelModerate, "Moderate"},
		{100, aqi.LevelModerate, "Moderate"},
		{101, aqi.LevelUnhealthySensitive, "Unhealthy for Sensitive Groups"},
		{150, aqi.LevelUnhealthySensitive, "Unhealthy for Sensitive Groups"},
		{151, aqi.LevelUnhealthy, "Unhealthy"},
		{200, aqi.LevelUnhealthy, "Unhealthy"},
		{201, aqi.LevelVeryUnhealthy, "Very Unhealthy"},
		{300, aqi.LevelVeryUnhealthy, "Very Unhealthy"},
		{301, aqi.LevelHazardous, "Hazardous"},
		{500, aqi.LevelHazardous, "Hazardous"},
		{9999, aqi.LevelHazardous, "Hazardous"},
		{math.MaxInt, aqi.LevelHazardous, "Hazardous"},
	}

	for _, tt := range tests {
		band := aqi.Describe(tt.index)
		assert.Equal(t, tt.want, band.Level, "index %d", tt.index)
		assert.Equal(t, tt.label, band.Label, "index %d", tt.index)
		assert.NotEmpty(t, band.Description)
	}
}

func TestDescribe_EveryIndexHasExactlyOneBand(t *testing.T) {
	prevMax := math.MinInt
	for i := 0; i < len(aqi.Bands)-1; i++ {
		assert.Greater(t, aqi.Bands[i].Max, prevMax)
		prevMax = aqi.Bands[i].Max
	}

	for idx := -10; idx <= 600; idx++ {
		matches := 0
		lower := math.MinInt
		for i, b := range aqi.Bands {
			last := i == len(aqi.Bands)-1
			if idx > lower && (last || idx <= b.Max) {
				matches++
			}
			lower = b.Max
		}
		assert.Equal(t, 1, matches, "index %d", idx)
	}
}
