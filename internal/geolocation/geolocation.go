// Package geolocation resolves the position a dashboard is rendered for.
package geolocation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kilamate/kilamate/internal/weather"
)

// Position errors.
var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrTimeout             = errors.New("location request timed out")
	ErrUnsupported         = errors.New("geolocation not supported")
	ErrUnknown             = errors.New("unknown geolocation error")
	ErrInvalidCoordinates  = errors.New("invalid coordinates")
	ErrLocationRequired    = errors.New("location required")
)

var messages = map[error]string{
	ErrPermissionDenied:    "Location permission denied. Please enable location access.",
	ErrPositionUnavailable: "Location information is unavailable in your Locality.",
	ErrTimeout:             "Location request timed out cause unavailable in your Locality.",
	ErrUnsupported:         "Geolocation is not supported by your browser",
	ErrUnknown:             "An unknown error occurred.",
	ErrInvalidCoordinates:  "The supplied coordinates are not valid.",
	ErrLocationRequired:    "Please enable location access to see your local weather.",
}

// Message returns the user-facing text for a position error, or "" if err is
// not one.
func Message(err error) string {
	for target, msg := range messages {
		if errors.Is(err, target) {
			return msg
		}
	}
	return ""
}

// Browser geolocation error codes.
const (
	CodePermissionDenied    = 1
	CodePositionUnavailable = 2
	CodeTimeout             = 3
)

// Source records how a position was obtained.
type Source string

const (
	SourceQuery   Source = "query"
	SourceDefault Source = "default"
)

// Position is a resolved location.
type Position struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Name    string  `json:"name"`
	State   string  `json:"state,omitempty"`
	Country string  `json:"country,omitempty"`
	Source  Source  `json:"source"`
}

// Query is what the client reported. Lat and Lon are raw query values;
// GeoError is a browser error code or "unsupported".
type Query struct {
	Lat      string
	Lon      string
	GeoError string
	Language string
}

// Geocoder names coordinates.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (*weather.Place, error)
}

// Config holds configuration for the Resolver.
type Config struct {
	Geocoder Geocoder

	// Default is used when the client reports nothing. Nil means a position
	// must be supplied.
	Default *Position

	Logger zerolog.Logger
}

// Resolver turns a Query into a named Position.
type Resolver struct {
	geocoder Geocoder
	fallback *Position
	logger   zerolog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(cfg Config) *Resolver {
	return &Resolver{
		geocoder: cfg.Geocoder,
		fallback: cfg.Default,
		logger:   cfg.Logger,
	}
}

// Resolve returns the position for q. Explicit coordinates win over a
// reported error, which wins over the default location.
func (r *Resolver) Resolve(ctx context.Context, q Query) (*Position, error) {
	if q.Lat != "" || q.Lon != "" {
		lat, lon, err := ParseCoordinates(q.Lat, q.Lon)
		if err != nil {
			return nil, err
		}
		pos := &Position{Lat: lat, Lon: lon, Source: SourceQuery}
		r.name(ctx, pos, q.Language)
		return pos, nil
	}

	if q.GeoError != "" {
		return nil, CodeError(q.GeoError)
	}

	if r.fallback == nil {
		return nil, ErrLocationRequired
	}
	pos := *r.fallback
	pos.Source = SourceDefault
	if pos.Name == "" {
		r.name(ctx, &pos, q.Language)
	}
	return &pos, nil
}

// name fills in the place name, falling back to the coordinates.
func (r *Resolver) name(ctx context.Context, pos *Position, lang string) {
	pos.Name = FormatCoordinates(pos.Lat, pos.Lon)
	if r.geocoder == nil {
		return
	}

	place, err := r.geocoder.ReverseGeocode(ctx, pos.Lat, pos.Lon)
	if err != nil {
		r.logger.Debug().Err(err).Float64("lat", pos.Lat).Float64("lon", pos.Lon).Msg("reverse geocoding failed")
		return
	}
	if lang != "" {
		pos.Name = place.LocalName(lang)
	} else {
		pos.Name = place.Name
	}
	pos.State = place.State
	pos.Country = place.Country
}

// CodeError maps a browser geolocation error code to its error.
func CodeError(code string) error {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "1", "PERMISSION_DENIED":
		return ErrPermissionDenied
	case "2", "POSITION_UNAVAILABLE":
		return ErrPositionUnavailable
	case "3", "TIMEOUT":
		return ErrTimeout
	case "UNSUPPORTED":
		return ErrUnsupported
	default:
		return ErrUnknown
	}
}

// ParseCoordinates parses and range checks a lat/lon pair.
func ParseCoordinates(latStr, lonStr string) (float64, float64, error) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: lat %q", ErrInvalidCoordinates, latStr)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: lon %q", ErrInvalidCoordinates, lonStr)
	}
	if math.IsNaN(lat) || math.IsNaN(lon) || weather.ValidateCoordinates(lat, lon) != nil {
		return 0, 0, fmt.Errorf("%w: out of range", ErrInvalidCoordinates)
	}
	return lat, lon, nil
}

// FormatCoordinates renders a position as "lat, lon" with four decimals.
func FormatCoordinates(lat, lon float64) string {
	return fmt.Sprintf("%.4f, %.4f", lat, lon)
}
