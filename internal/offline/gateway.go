package offline

import (
	"net/http"
	"net/url"
	"strings"
)

// Gateway path prefixes proxied to OpenWeatherMap.
const (
	WeatherPrefix = "/api/owm/"
	GeoPrefix     = "/api/owm-geo/"
)

// GatewayConfig holds configuration for a Gateway.
type GatewayConfig struct {
	Manager *Manager

	// WeatherBaseURL backs WeatherPrefix (default: https://api.openweathermap.org/data/2.5).
	WeatherBaseURL string

	// GeoBaseURL backs GeoPrefix (default: https://api.openweathermap.org/geo/1.0).
	GeoBaseURL string

	// APIKey is added as appid to proxied requests that do not carry one.
	APIKey string

	// OnError writes the response when a request cannot be served at all.
	// Defaults to a plain 504.
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// Gateway serves the app shell and the OpenWeatherMap proxy through a Manager.
type Gateway struct {
	manager *Manager
	weather string
	geo     string
	apiKey  string
	onError func(w http.ResponseWriter, r *http.Request, err error)
}

// NewGateway creates a Gateway.
func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.WeatherBaseURL == "" {
		cfg.WeatherBaseURL = "https://api.openweathermap.org/data/2.5"
	}
	if cfg.GeoBaseURL == "" {
		cfg.GeoBaseURL = "https://api.openweathermap.org/geo/1.0"
	}
	if cfg.OnError == nil {
		cfg.OnError = func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, "offline", http.StatusGatewayTimeout)
		}
	}

	return &Gateway{
		manager: cfg.Manager,
		weather: strings.TrimRight(cfg.WeatherBaseURL, "/"),
		geo:     strings.TrimRight(cfg.GeoBaseURL, "/"),
		apiKey:  cfg.APIKey,
		onError: cfg.OnError,
	}
}

// Target maps an incoming path and query to the URL the manager fetches.
func (g *Gateway) Target(path, rawQuery string) string {
	switch {
	case strings.HasPrefix(path, WeatherPrefix):
		return g.upstream(g.weather, strings.TrimPrefix(path, WeatherPrefix), rawQuery)
	case strings.HasPrefix(path, GeoPrefix):
		return g.upstream(g.geo, strings.TrimPrefix(path, GeoPrefix), rawQuery)
	default:
		return g.manager.Resolve(path, rawQuery)
	}
}

func (g *Gateway) upstream(base, rest, rawQuery string) string {
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		q = url.Values{}
	}
	if g.apiKey != "" && q.Get("appid") == "" {
		q.Set("appid", g.apiKey)
	}

	u := base + "/" + rest
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

// ServeHTTP implements http.Handler. Every response carries X-Cache.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.Method
	if method == http.MethodHead {
		method = http.MethodGet
	}

	resp, err := g.manager.Fetch(r.Context(), Request{
		Method: method,
		URL:    g.Target(r.URL.Path, r.URL.RawQuery),
		Header: forwardable(r.Header),
	})
	if err != nil {
		g.onError(w, r, err)
		return
	}

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("X-Cache", string(resp.Source))
	w.WriteHeader(resp.Status)

	if r.Method != http.MethodHead {
		_, _ = w.Write(resp.Body)
	}
}

func forwardable(h http.Header) http.Header {
	out := make(http.Header)
	for _, name := range []string{"Accept", "Accept-Language"} {
		if v := h.Get(name); v != "" {
			out.Set(name, v)
		}
	}
	return out
}
