package weather

import (
	"errors"
	"sort"
	"time"
)

// Weather errors.
var (
	ErrProviderUnavailable = errors.New("weather provider unavailable")
	ErrInvalidCoordinates  = errors.New("invalid coordinates")
	ErrLocationNotFound    = errors.New("no place found for coordinates")
)

// Observation is the current weather at a point.
type Observation struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`

	// Name is the upstream station or city name.
	Name    string `json:"name"`
	Country string `json:"country"`

	// Temperatures in Celsius.
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feelsLike"`
	TempMin     float64 `json:"tempMin"`
	TempMax     float64 `json:"tempMax"`

	Humidity float64 `json:"humidity"` // percent
	Pressure float64 `json:"pressure"` // hPa

	WindSpeed     float64 `json:"windSpeed"`     // m/s
	WindDirection float64 `json:"windDirection"` // degrees
	WindGust      float64 `json:"windGust"`      // m/s, 0 if not reported

	Condition   Condition `json:"condition"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`

	CloudCover float64 `json:"cloudCover"` // percent
	Visibility float64 `json:"visibility"` // meters

	Sunrise time.Time `json:"sunrise"`
	Sunset  time.Time `json:"sunset"`

	// TimezoneOffset is the location's UTC offset in seconds.
	TimezoneOffset int `json:"timezoneOffset"`

	ObservedAt time.Time `json:"observedAt"`
	FetchedAt  time.Time `json:"fetchedAt"`
}

// Condition is the upstream's main weather group.
type Condition string

const (
	ConditionClear        Condition = "CLEAR"
	ConditionClouds       Condition = "CLOUDS"
	ConditionRain         Condition = "RAIN"
	ConditionDrizzle      Condition = "DRIZZLE"
	ConditionThunderstorm Condition = "THUNDERSTORM"
	ConditionSnow         Condition = "SNOW"
	ConditionMist         Condition = "MIST"
	ConditionFog          Condition = "FOG"
	ConditionHaze         Condition = "HAZE"
	ConditionUnknown      Condition = "UNKNOWN"
)

// ReducesVisibility reports fog and mist.
func (c Condition) ReducesVisibility() bool {
	return c == ConditionFog || c == ConditionMist
}

// Forecast is the 5 day forecast in 3 hour periods.
type Forecast struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	City City    `json:"city"`

	Periods []Period `json:"periods"`

	FetchedAt time.Time `json:"fetchedAt"`
}

// City describes the forecast location.
type City struct {
	Name           string    `json:"name"`
	Country        string    `json:"country"`
	TimezoneOffset int       `json:"timezoneOffset"`
	Sunrise        time.Time `json:"sunrise"`
	Sunset         time.Time `json:"sunset"`
}

// Period is one 3 hour forecast slot.
type Period struct {
	Time          time.Time `json:"time"`
	Temperature   float64   `json:"temperature"`
	FeelsLike     float64   `json:"feelsLike"`
	TempMin       float64   `json:"tempMin"`
	TempMax       float64   `json:"tempMax"`
	Humidity      float64   `json:"humidity"`
	WindSpeed     float64   `json:"windSpeed"`
	WindDirection float64   `json:"windDirection"`
	WindGust      float64   `json:"windGust"`
	Condition     Condition `json:"condition"`
	Description   string    `json:"description"`
	Icon          string    `json:"icon"`
	CloudCover    float64   `json:"cloudCover"`
	Visibility    float64   `json:"visibility"`
	PrecipProb    float64   `json:"precipProb"` // 0-1
}

// Day summarises the periods of one local calendar day.
type Day struct {
	Date        string    `json:"date"` // YYYY-MM-DD in the location's timezone
	Time        time.Time `json:"time"` // first period of the day
	TempMin     float64   `json:"tempMin"`
	TempMax     float64   `json:"tempMax"`
	Humidity    float64   `json:"humidity"`
	WindSpeed   float64   `json:"windSpeed"`
	Condition   Condition `json:"condition"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
}

// Daily groups periods by local date. Min and max span the whole day; the
// remaining fields come from the day's first period.
func (f *Forecast) Daily() []Day {
	loc := time.FixedZone("", f.City.TimezoneOffset)

	byDate := make(map[string]*Day)
	for _, p := range f.Periods {
		date := p.Time.In(loc).Format("2006-01-02")

		d, ok := byDate[date]
		if !ok {
			byDate[date] = &Day{
				Date:        date,
				Time:        p.Time,
				TempMin:     p.TempMin,
				TempMax:     p.TempMax,
				Humidity:    p.Humidity,
				WindSpeed:   p.WindSpeed,
				Condition:   p.Condition,
				Description: p.Description,
				Icon:        p.Icon,
			}
			continue
		}
		d.TempMin = min(d.TempMin, p.TempMin)
		d.TempMax = max(d.TempMax, p.TempMax)
	}

	days := make([]Day, 0, len(byDate))
	for _, d := range byDate {
		days = append(days, *d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days
}

// Place is a reverse geocoding result.
type Place struct {
	Name       string            `json:"name"`
	LocalNames map[string]string `json:"localNames,omitempty"`
	State      string            `json:"state,omitempty"`
	Country    string            `json:"country"`
	Lat        float64           `json:"lat"`
	Lon        float64           `json:"lon"`
}

// LocalName returns the name in lang, falling back to Name.
func (p *Place) LocalName(lang string) string {
	if n, ok := p.LocalNames[lang]; ok && n != "" {
		return n
	}
	return p.Name
}
