// Package alert evaluates weather and air quality conditions into alerts and
// suppresses repeat notifications for the same alert within a cooldown window.
package alert

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kilamate/kilamate/internal/aqi"
	"github.com/kilamate/kilamate/internal/units"
)

// Thresholds that raise an alert. A reading must exceed a threshold, not
// merely reach it.
const (
	HighWindSpeed    = 10.0 // m/s
	HighHumidity     = 80.0 // %
	ExtremeHeat      = 35.0 // °C
	FreezingPoint    = 0.0  // °C
	AQISensitive     = 100
	AQIUnhealthy     = 150
	AQIVeryUnhealthy = 200
	AQIHazardous     = 300
)

// Kind groups alerts by the condition that raised them.
type Kind string

const (
	KindWind       Kind = "wind"
	KindHumidity   Kind = "humidity"
	KindVisibility Kind = "visibility"
	KindHeat       Kind = "heat"
	KindFreeze     Kind = "freeze"
	KindAirQuality Kind = "air_quality"
)

// Severity is the urgency of an alert.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Type is the presentation style of an alert.
type Type string

const (
	TypeWarning     Type = "warning"
	TypeInfo        Type = "info"
	TypeDestructive Type = "destructive"
)

// Conditions is the snapshot an evaluation runs against.
type Conditions struct {
	LocationName string
	Temperature  float64 // °C
	Humidity     float64 // %
	WindSpeed    float64 // m/s
	Condition    string  // main weather group, e.g. "Mist"

	// AQI is nil when no air quality data is available.
	AQI *int
}

// Alert is a single evaluated alert.
type Alert struct {
	Kind     Kind     `json:"kind"`
	Type     Type     `json:"type"`
	Severity Severity `json:"severity"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
}

// Evaluate returns the alerts raised by c. Temperature alerts are exclusive
// (heat wins), as are the AQI tiers (the highest tier wins).
func Evaluate(c Conditions) []Alert {
	var alerts []Alert

	if c.WindSpeed > HighWindSpeed {
		alerts = append(alerts, Alert{
			Kind:     KindWind,
			Type:     TypeWarning,
			Severity: SeverityMedium,
			Title:    "High Wind Alert",
			Message:  fmt.Sprintf("Strong winds detected at %d m/s. Exercise caution outdoors.", units.Round(c.WindSpeed)),
		})
	}

	if c.Humidity > HighHumidity {
		alerts = append(alerts, Alert{
			Kind:     KindHumidity,
			Type:     TypeInfo,
			Severity: SeverityLow,
			Title:    "High Humidity",
			Message:  fmt.Sprintf("Humidity is at %s%%. It may feel muggy outside.", strconv.FormatFloat(c.Humidity, 'f', -1, 64)),
		})
	}

	switch strings.ToLower(c.Condition) {
	case "mist", "fog":
		alerts = append(alerts, Alert{
			Kind:     KindVisibility,
			Type:     TypeWarning,
			Severity: SeverityMedium,
			Title:    "Low Visibility",
			Message:  "Foggy conditions detected. Reduce speed and use low-beam headlights.",
		})
	}

	switch {
	case c.Temperature > ExtremeHeat:
		alerts = append(alerts, Alert{
			Kind:     KindHeat,
			Type:     TypeWarning,
			Severity: SeverityHigh,
			Title:    "Extreme Heat",
			Message:  fmt.Sprintf("Temperature is %d°C. Stay hydrated and avoid prolonged sun exposure.", units.Round(c.Temperature)),
		})
	case c.Temperature < FreezingPoint:
		alerts = append(alerts, Alert{
			Kind:     KindFreeze,
			Type:     TypeWarning,
			Severity: SeverityHigh,
			Title:    "Freezing Temperature",
			Message:  fmt.Sprintf("Temperature is %d°C. Watch for ice and dress warmly.", units.Round(c.Temperature)),
		})
	}

	if c.AQI != nil {
		if a, ok := airQualityAlert(*c.AQI); ok {
			alerts = append(alerts, a)
		}
	}

	return alerts
}

func airQualityAlert(index int) (Alert, bool) {
	band := aqi.Describe(index)
	a := Alert{
		Kind:     KindAirQuality,
		Type:     TypeDestructive,
		Severity: SeverityHigh,
		Message:  fmt.Sprintf("AQI is %d. %s", index, band.Description),
	}

	switch {
	case index > AQIHazardous:
		a.Title = "Hazardous Air Quality"
	case index > AQIVeryUnhealthy:
		a.Title = "Very Unhealthy Air"
	case index > AQIUnhealthy:
		a.Title = "Unhealthy Air Quality"
	case index > AQISensitive:
		a.Type = TypeWarning
		a.Severity = SeverityMedium
		a.Title = "Sensitive Air Quality"
		a.Message = fmt.Sprintf("AQI is %d. Sensitive groups should reduce outdoor exertion.", index)
	default:
		return Alert{}, false
	}
	return a, true
}

// Key is the deduplication identity of an alert at a location.
func Key(title, location string) string {
	return title + "-" + location
}
