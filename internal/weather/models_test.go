package weather_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilamate/kilamate/internal/weather"
)

func period(at time.Time, lo, hi float64, cond weather.Condition) weather.Period {
	return weather.Period{
		Time:        at,
		TempMin:     lo,
		TempMax:     hi,
		Humidity:    60,
		WindSpeed:   3,
		Condition:   cond,
		Description: string(cond),
	}
}

func TestForecast_Daily(t *testing.T) {
	start := time.Date(2024, time.May, 10, 0, 0, 0, 0, time.UTC)
	f := &weather.Forecast{
		Periods: []weather.Period{
			period(start.Add(18*time.Hour), 20, 22, weather.ConditionClouds),
			period(start.Add(21*time.Hour), 17, 19, weather.ConditionClear),
			period(start.Add(24*time.Hour), 15, 16, weather.ConditionRain),
			period(start.Add(36*time.Hour), 24, 27, weather.ConditionClear),
		},
	}

	days := f.Daily()

	require.Len(t, days, 2)
	assert.Equal(t, "2024-05-10", days[0].Date)
	assert.Equal(t, 17.0, days[0].TempMin)
	assert.Equal(t, 22.0, days[0].TempMax)
	assert.Equal(t, weather.ConditionClouds, days[0].Condition)

	assert.Equal(t, "2024-05-11", days[1].Date)
	assert.Equal(t, 15.0, days[1].TempMin)
	assert.Equal(t, 27.0, days[1].TempMax)
	assert.Equal(t, weather.ConditionRain, days[1].Condition)
}

func TestForecast_DailyUsesLocationTimezone(t *testing.T) {
	// 22:00 UTC is already the next day in Nairobi (UTC+3).
	at := time.Date(2024, time.May, 10, 22, 0, 0, 0, time.UTC)
	f := &weather.Forecast{
		City:    weather.City{TimezoneOffset: 3 * 3600},
		Periods: []weather.Period{period(at, 15, 16, weather.ConditionClear)},
	}

	days := f.Daily()

	require.Len(t, days, 1)
	assert.Equal(t, "2024-05-11", days[0].Date)
}

func TestForecast_DailyEmpty(t *testing.T) {
	assert.Empty(t, (&weather.Forecast{}).Daily())
}

func TestCondition_ReducesVisibility(t *testing.T) {
	assert.True(t, weather.ConditionFog.ReducesVisibility())
	assert.True(t, weather.ConditionMist.ReducesVisibility())
	assert.False(t, weather.ConditionHaze.ReducesVisibility())
}

func TestPlace_LocalName(t *testing.T) {
	p := &weather.Place{Name: "Delhi", LocalNames: map[string]string{"hi": "दिल्ली", "ur": ""}}

	assert.Equal(t, "दिल्ली", p.LocalName("hi"))
	assert.Equal(t, "Delhi", p.LocalName("ur"))
	assert.Equal(t, "Delhi", p.LocalName("sw"))
}
