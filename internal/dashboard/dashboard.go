// Package dashboard assembles the weather dashboard for a position: current
// conditions, forecasts, air quality and alerts in the user's units.
package dashboard

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/kilamate/kilamate/internal/airquality"
	"github.com/kilamate/kilamate/internal/alert"
	"github.com/kilamate/kilamate/internal/geolocation"
	"github.com/kilamate/kilamate/internal/preferences"
	"github.com/kilamate/kilamate/internal/telemetry"
	"github.com/kilamate/kilamate/internal/units"
	"github.com/kilamate/kilamate/internal/weather"
)

const (
	// DefaultHourlySlots is 24 hours of 3 hour periods.
	DefaultHourlySlots = 8

	// DefaultForecastDays is the number of days after today shown.
	DefaultForecastDays = 5
)

// WeatherSource provides weather data.
type WeatherSource interface {
	GetCurrentWeather(ctx context.Context, lat, lon float64) (*weather.Observation, error)
	GetForecast(ctx context.Context, lat, lon float64) (*weather.Forecast, error)
}

// AirQualitySource provides scored air quality.
type AirQualitySource interface {
	GetSnapshot(ctx context.Context, lat, lon float64) (*airquality.Snapshot, error)
}

// PreferenceSource provides the user's display settings.
type PreferenceSource interface {
	Get(ctx context.Context) (preferences.Preferences, error)
}

// AlertProcessor notifies alerts outside their cooldown.
type AlertProcessor interface {
	Process(ctx context.Context, location string, alerts []alert.Alert) alert.Result
}

// Config holds configuration for the dashboard service.
type Config struct {
	Weather     WeatherSource
	AirQuality  AirQualitySource
	Preferences PreferenceSource

	// Notifier is optional; without it alerts are shown but never notified.
	Notifier AlertProcessor

	HourlySlots  int
	ForecastDays int

	Clock  clockwork.Clock
	Logger zerolog.Logger
}

// Service builds dashboard views.
type Service struct {
	weather      WeatherSource
	airQuality   AirQualitySource
	preferences  PreferenceSource
	notifier     AlertProcessor
	hourlySlots  int
	forecastDays int
	clock        clockwork.Clock
	logger       zerolog.Logger
}

// NewService creates a new dashboard service.
func NewService(cfg Config) *Service {
	hourly := cfg.HourlySlots
	if hourly <= 0 {
		hourly = DefaultHourlySlots
	}
	days := cfg.ForecastDays
	if days <= 0 {
		days = DefaultForecastDays
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Service{
		weather:      cfg.Weather,
		airQuality:   cfg.AirQuality,
		preferences:  cfg.Preferences,
		notifier:     cfg.Notifier,
		hourlySlots:  hourly,
		forecastDays: days,
		clock:        clock,
		logger:       cfg.Logger,
	}
}

// Build assembles the dashboard for pos and notifies any new alerts. Current
// weather is required; forecast and air quality failures degrade to warnings.
func (s *Service) Build(ctx context.Context, pos *geolocation.Position) (_ *View, err error) {
	ctx, span := telemetry.Start(ctx, "dashboard.Build", telemetry.Coordinates(pos.Lat, pos.Lon)...)
	defer func() { telemetry.End(span, err) }()

	snap, err := s.collect(ctx, pos)
	if err != nil {
		return nil, err
	}

	view := s.render(pos, snap)

	if s.notifier != nil && len(view.Alerts) > 0 {
		res := s.notifier.Process(ctx, view.AlertLocation, view.Alerts)
		view.Notifications = &res
	}

	return view, nil
}

// Alerts evaluates the alerts for pos without notifying them.
func (s *Service) Alerts(ctx context.Context, pos *geolocation.Position) (*AlertsView, error) {
	obs, err := s.weather.GetCurrentWeather(ctx, pos.Lat, pos.Lon)
	if err != nil {
		return nil, fmt.Errorf("fetching current weather: %w", err)
	}

	var aq *airquality.Snapshot
	if s.airQuality != nil {
		if aq, err = s.airQuality.GetSnapshot(ctx, pos.Lat, pos.Lon); err != nil {
			s.logger.Warn().Err(err).Msg("air quality unavailable for alert evaluation")
			aq = nil
		}
	}

	location := alertLocation(obs, pos)
	return &AlertsView{
		Location:    location,
		Alerts:      evaluate(location, obs, aq),
		EvaluatedAt: s.clock.Now().UTC(),
	}, nil
}

type snapshot struct {
	prefs    preferences.Preferences
	current  *weather.Observation
	forecast *weather.Forecast
	aq       *airquality.Snapshot
	warnings []string
}

func (s *Service) collect(ctx context.Context, pos *geolocation.Position) (*snapshot, error) {
	snap := &snapshot{prefs: preferences.Defaults()}

	if s.preferences != nil {
		prefs, err := s.preferences.Get(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to load preferences, using defaults")
		} else {
			snap.prefs = prefs
		}
	}

	obs, err := s.weather.GetCurrentWeather(ctx, pos.Lat, pos.Lon)
	if err != nil {
		return nil, fmt.Errorf("fetching current weather: %w", err)
	}
	snap.current = obs

	if f, err := s.weather.GetForecast(ctx, pos.Lat, pos.Lon); err != nil {
		s.logger.Warn().Err(err).Float64("lat", pos.Lat).Float64("lon", pos.Lon).Msg("forecast unavailable")
		snap.warnings = append(snap.warnings, "forecast unavailable")
	} else {
		snap.forecast = f
	}

	if s.airQuality != nil {
		if aq, err := s.airQuality.GetSnapshot(ctx, pos.Lat, pos.Lon); err != nil {
			s.logger.Warn().Err(err).Float64("lat", pos.Lat).Float64("lon", pos.Lon).Msg("air quality unavailable")
			snap.warnings = append(snap.warnings, "air quality unavailable")
		} else {
			snap.aq = aq
		}
	}

	return snap, nil
}

func (s *Service) render(pos *geolocation.Position, snap *snapshot) *View {
	tu, wu := snap.prefs.TemperatureUnit, snap.prefs.WindSpeedUnit
	location := alertLocation(snap.current, pos)

	view := &View{
		Location: *pos,
		Units: Units{
			Temperature:       tu,
			TemperatureSymbol: tu.Symbol(),
			WindSpeed:         wu,
			WindSpeedLabel:    wu.Label(),
		},
		Language:      snap.prefs.Language,
		Current:       current(snap.current, tu, wu),
		AirQuality:    snap.aq,
		AlertLocation: location,
		Alerts:        evaluate(location, snap.current, snap.aq),
		Warnings:      snap.warnings,
		GeneratedAt:   s.clock.Now().UTC(),
	}

	if snap.forecast != nil {
		view.Hourly = hourly(snap.forecast, s.hourlySlots, tu)
		view.Daily = daily(snap.forecast, s.forecastDays, tu, wu)
	}

	return view
}

// alertLocation is the name alerts are keyed by: the upstream's station name,
// or the resolved position name when the upstream has none.
func alertLocation(obs *weather.Observation, pos *geolocation.Position) string {
	if obs.Name != "" {
		return obs.Name
	}
	return pos.Name
}

func evaluate(location string, obs *weather.Observation, aq *airquality.Snapshot) []alert.Alert {
	c := alert.Conditions{
		LocationName: location,
		Temperature:  obs.Temperature,
		Humidity:     obs.Humidity,
		WindSpeed:    obs.WindSpeed,
		Condition:    string(obs.Condition),
	}
	if aq != nil {
		index := aq.AQI
		c.AQI = &index
	}
	return alert.Evaluate(c)
}

func current(obs *weather.Observation, tu units.TemperatureUnit, wu units.WindSpeedUnit) Current {
	return Current{
		Temperature:      units.FormatTemperature(obs.Temperature, tu),
		TemperatureValue: units.ConvertTemperature(obs.Temperature, tu),
		FeelsLike:        units.FormatTemperature(obs.FeelsLike, tu),
		TempMin:          units.FormatTemperature(obs.TempMin, tu),
		TempMax:          units.FormatTemperature(obs.TempMax, tu),
		Humidity:         obs.Humidity,
		Pressure:         obs.Pressure,
		Wind:             units.FormatWindSpeed(obs.WindSpeed, wu),
		WindDirection:    obs.WindDirection,
		Condition:        obs.Condition,
		Description:      obs.Description,
		Icon:             obs.Icon,
		Visibility:       obs.Visibility,
		Sunrise:          obs.Sunrise,
		Sunset:           obs.Sunset,
		ObservedAt:       obs.ObservedAt,
	}
}

func hourly(f *weather.Forecast, slots int, tu units.TemperatureUnit) []Hour {
	n := min(slots, len(f.Periods))
	hours := make([]Hour, 0, n)
	for _, p := range f.Periods[:n] {
		hours = append(hours, Hour{
			Time:        p.Time,
			Temperature: units.ConvertTemperature(p.Temperature, tu),
			FeelsLike:   units.ConvertTemperature(p.FeelsLike, tu),
			Condition:   p.Condition,
			Icon:        p.Icon,
			PrecipProb:  p.PrecipProb,
		})
	}
	return hours
}

// daily skips the first local date, which is usually a partial today.
func daily(f *weather.Forecast, n int, tu units.TemperatureUnit, wu units.WindSpeedUnit) []Day {
	all := f.Daily()
	if len(all) <= 1 {
		return []Day{}
	}
	next := all[1:min(len(all), n+1)]

	days := make([]Day, 0, len(next))
	for _, d := range next {
		days = append(days, Day{
			Date:        d.Date,
			Time:        d.Time,
			TempMin:     units.FormatTemperature(d.TempMin, tu),
			TempMax:     units.FormatTemperature(d.TempMax, tu),
			Humidity:    d.Humidity,
			Wind:        units.FormatWindSpeed(d.WindSpeed, wu),
			Condition:   d.Condition,
			Description: d.Description,
			Icon:        d.Icon,
		})
	}
	return days
}
