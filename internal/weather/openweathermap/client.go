package openweathermap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/kilamate/kilamate/internal/aqi"
	"github.com/kilamate/kilamate/internal/provider/resilience"
	"github.com/kilamate/kilamate/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "openweathermap"

	// DefaultBaseURL is the OpenWeatherMap data API base URL.
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

	// DefaultGeoURL is the OpenWeatherMap geocoding API base URL.
	DefaultGeoURL = "https://api.openweathermap.org/geo/1.0"
)

// Client errors.
var (
	ErrUnauthorized = errors.New("openweathermap: invalid API key")
	ErrNoData       = errors.New("openweathermap: empty response")
)

// ClientConfig holds configuration for the OpenWeatherMap client.
type ClientConfig struct {
	// APIKey is the OpenWeatherMap API key (required).
	APIKey string

	// BaseURL and GeoURL override the API endpoints.
	BaseURL string
	GeoURL  string

	// Language for condition descriptions (default: "en").
	Language string

	// HTTPClient defaults to a resilient client named ProviderName.
	HTTPClient *resilience.Client

	Logger zerolog.Logger
}

// Client is an OpenWeatherMap API client.
type Client struct {
	apiKey     string
	baseURL    string
	geoURL     string
	language   string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new OpenWeatherMap client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	geoURL := cfg.GeoURL
	if geoURL == "" {
		geoURL = DefaultGeoURL
	}
	language := cfg.Language
	if language == "" {
		language = "en"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		rc.Logger = cfg.Logger
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		geoURL:     geoURL,
		language:   language,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GetCurrentWeather fetches current weather for a location.
func (c *Client) GetCurrentWeather(ctx context.Context, lat, lon float64) (*weather.Observation, error) {
	var resp currentWeatherResponse
	if err := c.get(ctx, c.baseURL+"/weather", c.params(lat, lon, true), &resp); err != nil {
		return nil, err
	}
	return toObservation(&resp), nil
}

// GetForecast fetches the 5 day / 3 hour forecast for a location.
func (c *Client) GetForecast(ctx context.Context, lat, lon float64) (*weather.Forecast, error) {
	var resp forecastResponse
	if err := c.get(ctx, c.baseURL+"/forecast", c.params(lat, lon, true), &resp); err != nil {
		return nil, err
	}
	return toForecast(&resp, lat, lon), nil
}

// GetAirPollution fetches current pollutant concentrations in μg/m³.
func (c *Client) GetAirPollution(ctx context.Context, lat, lon float64) (*aqi.Reading, error) {
	var resp airPollutionResponse
	if err := c.get(ctx, c.baseURL+"/air_pollution", c.params(lat, lon, false), &resp); err != nil {
		return nil, err
	}
	if len(resp.List) == 0 {
		return nil, ErrNoData
	}

	item := resp.List[0]
	return &aqi.Reading{
		PM25:       item.Components.PM25,
		PM10:       item.Components.PM10,
		O3:         item.Components.O3,
		NO2:        item.Components.NO2,
		SO2:        item.Components.SO2,
		CO:         item.Components.CO,
		MeasuredAt: time.Unix(item.Dt, 0).UTC(),
	}, nil
}

// ReverseGeocode returns the nearest named place.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (*weather.Place, error) {
	q := c.params(lat, lon, false)
	q.Set("limit", "1")

	var resp []geocodeResponse
	if err := c.get(ctx, c.geoURL+"/reverse", q, &resp); err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, weather.ErrLocationNotFound
	}

	g := resp[0]
	return &weather.Place{
		Name:       g.Name,
		LocalNames: g.LocalNames,
		State:      g.State,
		Country:    g.Country,
		Lat:        g.Lat,
		Lon:        g.Lon,
	}, nil
}

func (c *Client) params(lat, lon float64, metric bool) url.Values {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("appid", c.apiKey)
	if metric {
		q.Set("units", "metric")
		q.Set("lang", c.language)
	}
	return q
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, v any) error {
	resp, err := c.httpClient.Get(ctx, endpoint+"?"+q.Encode())
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func toObservation(resp *currentWeatherResponse) *weather.Observation {
	obs := &weather.Observation{
		Lat:            resp.Coord.Lat,
		Lon:            resp.Coord.Lon,
		Name:           resp.Name,
		Country:        resp.Sys.Country,
		Temperature:    resp.Main.Temp,
		FeelsLike:      resp.Main.FeelsLike,
		TempMin:        resp.Main.TempMin,
		TempMax:        resp.Main.TempMax,
		Humidity:       resp.Main.Humidity,
		Pressure:       resp.Main.Pressure,
		WindSpeed:      resp.Wind.Speed,
		WindDirection:  resp.Wind.Deg,
		WindGust:       resp.Wind.Gust,
		CloudCover:     resp.Clouds.All,
		Visibility:     float64(resp.Visibility),
		TimezoneOffset: resp.Timezone,
		ObservedAt:     time.Unix(resp.Dt, 0).UTC(),
		FetchedAt:      time.Now().UTC(),
		Condition:      weather.ConditionUnknown,
	}
	if resp.Sys.Sunrise > 0 {
		obs.Sunrise = time.Unix(resp.Sys.Sunrise, 0).UTC()
		obs.Sunset = time.Unix(resp.Sys.Sunset, 0).UTC()
	}
	if len(resp.Weather) > 0 {
		obs.Condition = mapCondition(resp.Weather[0].Main)
		obs.Description = resp.Weather[0].Description
		obs.Icon = resp.Weather[0].Icon
	}
	return obs
}

func toForecast(resp *forecastResponse, lat, lon float64) *weather.Forecast {
	f := &weather.Forecast{
		Lat: lat,
		Lon: lon,
		City: weather.City{
			Name:           resp.City.Name,
			Country:        resp.City.Country,
			TimezoneOffset: resp.City.Timezone,
		},
		Periods:   make([]weather.Period, 0, len(resp.List)),
		FetchedAt: time.Now().UTC(),
	}
	if resp.City.Coord.Lat != 0 || resp.City.Coord.Lon != 0 {
		f.Lat, f.Lon = resp.City.Coord.Lat, resp.City.Coord.Lon
	}
	if resp.City.Sunrise > 0 {
		f.City.Sunrise = time.Unix(resp.City.Sunrise, 0).UTC()
		f.City.Sunset = time.Unix(resp.City.Sunset, 0).UTC()
	}

	for _, item := range resp.List {
		p := weather.Period{
			Time:          time.Unix(item.Dt, 0).UTC(),
			Temperature:   item.Main.Temp,
			FeelsLike:     item.Main.FeelsLike,
			TempMin:       item.Main.TempMin,
			TempMax:       item.Main.TempMax,
			Humidity:      item.Main.Humidity,
			WindSpeed:     item.Wind.Speed,
			WindDirection: item.Wind.Deg,
			WindGust:      item.Wind.Gust,
			CloudCover:    item.Clouds.All,
			Visibility:    float64(item.Visibility),
			PrecipProb:    item.Pop,
			Condition:     weather.ConditionUnknown,
		}
		if len(item.Weather) > 0 {
			p.Condition = mapCondition(item.Weather[0].Main)
			p.Description = item.Weather[0].Description
			p.Icon = item.Weather[0].Icon
		}
		f.Periods = append(f.Periods, p)
	}
	return f
}

func mapCondition(main string) weather.Condition {
	switch main {
	case "Clear":
		return weather.ConditionClear
	case "Clouds":
		return weather.ConditionClouds
	case "Rain":
		return weather.ConditionRain
	case "Drizzle":
		return weather.ConditionDrizzle
	case "Thunderstorm":
		return weather.ConditionThunderstorm
	case "Snow":
		return weather.ConditionSnow
	case "Mist":
		return weather.ConditionMist
	case "Fog":
		return weather.ConditionFog
	case "Haze", "Smoke", "Dust", "Sand", "Ash", "Squall", "Tornado":
		return weather.ConditionHaze
	default:
		return weather.ConditionUnknown
	}
}

type conditionJSON struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type mainJSON struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Pressure  float64 `json:"pressure"`
	Humidity  float64 `json:"humidity"`
}

type windJSON struct {
	Speed float64 `json:"speed"`
	Deg   float64 `json:"deg"`
	Gust  float64 `json:"gust"`
}

type coordJSON struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type currentWeatherResponse struct {
	Coord      coordJSON       `json:"coord"`
	Weather    []conditionJSON `json:"weather"`
	Main       mainJSON        `json:"main"`
	Visibility int             `json:"visibility"`
	Wind       windJSON        `json:"wind"`
	Clouds     struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Sys struct {
		Country string `json:"country"`
		Sunrise int64  `json:"sunrise"`
		Sunset  int64  `json:"sunset"`
	} `json:"sys"`
	Timezone int    `json:"timezone"`
	Dt       int64  `json:"dt"`
	Name     string `json:"name"`
}

type forecastResponse struct {
	List []struct {
		Dt      int64           `json:"dt"`
		Main    mainJSON        `json:"main"`
		Weather []conditionJSON `json:"weather"`
		Clouds  struct {
			All float64 `json:"all"`
		} `json:"clouds"`
		Wind       windJSON `json:"wind"`
		Visibility int      `json:"visibility"`
		Pop        float64  `json:"pop"`
	} `json:"list"`
	City struct {
		Name     string    `json:"name"`
		Coord    coordJSON `json:"coord"`
		Country  string    `json:"country"`
		Timezone int       `json:"timezone"`
		Sunrise  int64     `json:"sunrise"`
		Sunset   int64     `json:"sunset"`
	} `json:"city"`
}

type airPollutionResponse struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			AQI int `json:"aqi"`
		} `json:"main"`
		Components struct {
			CO   float64 `json:"co"`
			NO   float64 `json:"no"`
			NO2  float64 `json:"no2"`
			O3   float64 `json:"o3"`
			SO2  float64 `json:"so2"`
			PM25 float64 `json:"pm2_5"`
			PM10 float64 `json:"pm10"`
			NH3  float64 `json:"nh3"`
		} `json:"components"`
	} `json:"list"`
}

type geocodeResponse struct {
	Name       string            `json:"name"`
	LocalNames map[string]string `json:"local_names"`
	Lat        float64           `json:"lat"`
	Lon        float64           `json:"lon"`
	Country    string            `json:"country"`
	State      string            `json:"state"`
}
