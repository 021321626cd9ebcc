// Package units converts and formats temperatures and wind speeds for display.
// Upstream readings are always metric: degrees Celsius and metres per second.
package units

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// TemperatureUnit is a display unit for temperatures.
type TemperatureUnit string

const (
	Celsius    TemperatureUnit = "celsius"
	Fahrenheit TemperatureUnit = "fahrenheit"
)

// WindSpeedUnit is a display unit for wind speeds.
type WindSpeedUnit string

const (
	KilometresPerHour WindSpeedUnit = "kmh"
	MilesPerHour      WindSpeedUnit = "mph"
	MetresPerSecond   WindSpeedUnit = "ms"
)

// Unit errors.
var (
	ErrUnknownTemperatureUnit = errors.New("unknown temperature unit")
	ErrUnknownWindSpeedUnit   = errors.New("unknown wind speed unit")
)

// ConvertTemperature converts a Celsius value to the given unit.
// Unknown units leave the value unchanged.
func ConvertTemperature(celsius float64, unit TemperatureUnit) float64 {
	if unit == Fahrenheit {
		return celsius*9/5 + 32
	}
	return celsius
}

// FormatTemperature renders a Celsius value as a rounded string with its unit
// symbol, e.g. "77°F".
func FormatTemperature(celsius float64, unit TemperatureUnit) string {
	symbol := "°C"
	if unit == Fahrenheit {
		symbol = "°F"
	}
	return fmt.Sprintf("%d%s", Round(ConvertTemperature(celsius, unit)), symbol)
}

// ConvertWindSpeed converts metres per second to the given unit.
func ConvertWindSpeed(ms float64, unit WindSpeedUnit) float64 {
	switch unit {
	case KilometresPerHour:
		return ms * 3.6
	case MilesPerHour:
		return ms * 2.237
	default:
		return ms
	}
}

// FormatWindSpeed renders a m/s value as a rounded string with its unit label,
// e.g. "43 km/h".
func FormatWindSpeed(ms float64, unit WindSpeedUnit) string {
	return fmt.Sprintf("%d %s", Round(ConvertWindSpeed(ms, unit)), unit.Label())
}

// Label returns the display label of a wind speed unit.
func (u WindSpeedUnit) Label() string {
	switch u {
	case KilometresPerHour:
		return "km/h"
	case MilesPerHour:
		return "mph"
	default:
		return "m/s"
	}
}

// Symbol returns the display symbol of a temperature unit.
func (u TemperatureUnit) Symbol() string {
	if u == Fahrenheit {
		return "°F"
	}
	return "°C"
}

// ParseTemperatureUnit validates user input. Matching is case-insensitive and
// accepts the short forms "c" and "f".
func ParseTemperatureUnit(s string) (TemperatureUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "celsius", "c":
		return Celsius, nil
	case "fahrenheit", "f":
		return Fahrenheit, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTemperatureUnit, s)
	}
}

// ParseWindSpeedUnit validates user input.
func ParseWindSpeedUnit(s string) (WindSpeedUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "kmh", "km/h":
		return KilometresPerHour, nil
	case "mph":
		return MilesPerHour, nil
	case "ms", "m/s":
		return MetresPerSecond, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownWindSpeedUnit, s)
	}
}

// Round rounds half up, toward positive infinity, so -2.5 becomes -2.
// Displayed temperatures and speeds use it.
func Round(v float64) int {
	return int(math.Floor(v + 0.5))
}
