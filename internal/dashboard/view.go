package dashboard

import (
	"time"

	"github.com/kilamate/kilamate/internal/airquality"
	"github.com/kilamate/kilamate/internal/alert"
	"github.com/kilamate/kilamate/internal/geolocation"
	"github.com/kilamate/kilamate/internal/units"
	"github.com/kilamate/kilamate/internal/weather"
)

// View is a rendered dashboard.
type View struct {
	Location geolocation.Position `json:"location"`
	Units    Units                `json:"units"`
	Language string               `json:"language"`

	Current Current `json:"current"`
	Hourly  []Hour  `json:"hourly"`
	Daily   []Day   `json:"daily"`

	// AirQuality is nil when the provider had no data.
	AirQuality *airquality.Snapshot `json:"airQuality"`

	AlertLocation string        `json:"alertLocation"`
	Alerts        []alert.Alert `json:"alerts"`

	// Notifications is nil when no alert was raised or no notifier is set.
	Notifications *alert.Result `json:"notifications,omitempty"`

	Warnings    []string  `json:"warnings,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Units echoes the display units used.
type Units struct {
	Temperature       units.TemperatureUnit `json:"temperature"`
	TemperatureSymbol string                `json:"temperatureSymbol"`
	WindSpeed         units.WindSpeedUnit   `json:"windSpeed"`
	WindSpeedLabel    string                `json:"windSpeedLabel"`
}

// Current is the formatted current weather.
type Current struct {
	Temperature      string            `json:"temperature"`
	TemperatureValue float64           `json:"temperatureValue"`
	FeelsLike        string            `json:"feelsLike"`
	TempMin          string            `json:"tempMin"`
	TempMax          string            `json:"tempMax"`
	Humidity         float64           `json:"humidity"`
	Pressure         float64           `json:"pressure"`
	Wind             string            `json:"wind"`
	WindDirection    float64           `json:"windDirection"`
	Condition        weather.Condition `json:"condition"`
	Description      string            `json:"description"`
	Icon             string            `json:"icon"`
	Visibility       float64           `json:"visibility"`
	Sunrise          time.Time         `json:"sunrise"`
	Sunset           time.Time         `json:"sunset"`
	ObservedAt       time.Time         `json:"observedAt"`
}

// Hour is one hourly chart point, converted but unformatted.
type Hour struct {
	Time        time.Time         `json:"time"`
	Temperature float64           `json:"temperature"`
	FeelsLike   float64           `json:"feelsLike"`
	Condition   weather.Condition `json:"condition"`
	Icon        string            `json:"icon"`
	PrecipProb  float64           `json:"precipProb"`
}

// Day is one formatted daily forecast row.
type Day struct {
	Date        string            `json:"date"`
	Time        time.Time         `json:"time"`
	TempMin     string            `json:"tempMin"`
	TempMax     string            `json:"tempMax"`
	Humidity    float64           `json:"humidity"`
	Wind        string            `json:"wind"`
	Condition   weather.Condition `json:"condition"`
	Description string            `json:"description"`
	Icon        string            `json:"icon"`
}

// AlertsView is the result of an evaluation without notification.
type AlertsView struct {
	Location    string        `json:"location"`
	Alerts      []alert.Alert `json:"alerts"`
	EvaluatedAt time.Time     `json:"evaluatedAt"`
}
