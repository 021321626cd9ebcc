// Package observability exposes Prometheus collectors for the offline cache
// manager, alert notifications and the alert watcher.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kilamate"

// Metrics holds the Prometheus counters, histograms, and gauges shared by the
// gateway and the worker. A nil *Metrics is valid and records nothing.
type Metrics struct {
	CacheLookups   *prometheus.CounterVec // labels: cache, result={hit,miss,expired}
	CacheStores    *prometheus.CounterVec // labels: cache, outcome={stored,failed,skipped}
	CacheEvictions *prometheus.CounterVec // labels: cache, reason={age,capacity,version}
	Fetches        *prometheus.CounterVec // labels: strategy={cache_first,network_first,passthrough,network_only}, outcome={network,cache,error}
	ManagerState   prometheus.Gauge

	Notifications *prometheus.CounterVec // labels: outcome={delivered,failed,suppressed,skipped}
	AlertsRaised  *prometheus.CounterVec // labels: kind

	WatchRuns        *prometheus.CounterVec // labels: outcome={ok,failed}
	WatchRunDuration prometheus.Histogram
}

// NewMetrics creates and registers all collectors with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered with a fresh registry to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() (*Metrics, *prometheus.Registry) {
	m := newMetrics()
	reg := prometheus.NewRegistry()
	reg.MustRegister(m.collectors()...)
	return m, reg
}

func newMetrics() *Metrics {
	return &Metrics{
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Offline cache lookups by cache name and result.",
		}, []string{"cache", "result"}),
		CacheStores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_stores_total",
			Help:      "Offline cache writes by cache name and outcome.",
		}, []string{"cache", "outcome"}),
		CacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Entries or caches removed by reason.",
		}, []string{"cache", "reason"}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_fetches_total",
			Help:      "Intercepted requests by strategy and where the response came from.",
		}, []string{"strategy", "outcome"}),
		ManagerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_manager_state",
			Help:      "Lifecycle state of the cache manager: 0 installing, 1 waiting, 2 active, 3 redundant.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Alert notifications by outcome.",
		}, []string{"outcome"}),
		AlertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_raised_total",
			Help:      "Alerts produced by evaluation, by kind.",
		}, []string{"kind"}),
		WatchRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_runs_total",
			Help:      "Alert watcher runs by outcome.",
		}, []string{"outcome"}),
		WatchRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "watch_run_duration_seconds",
			Help:      "Duration of a complete alert watcher run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.CacheLookups,
		m.CacheStores,
		m.CacheEvictions,
		m.Fetches,
		m.ManagerState,
		m.Notifications,
		m.AlertsRaised,
		m.WatchRuns,
		m.WatchRunDuration,
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CacheLookup records a lookup result for a cache.
func (m *Metrics) CacheLookup(cache, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(cache, result).Inc()
}

// CacheStore records the outcome of a cache write.
func (m *Metrics) CacheStore(cache, outcome string) {
	if m == nil {
		return
	}
	m.CacheStores.WithLabelValues(cache, outcome).Inc()
}

// CacheEviction records removed entries or caches.
func (m *Metrics) CacheEviction(cache, reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CacheEvictions.WithLabelValues(cache, reason).Add(float64(n))
}

// Fetch records how an intercepted request was answered.
func (m *Metrics) Fetch(strategy, outcome string) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(strategy, outcome).Inc()
}

// SetManagerState records the cache manager lifecycle state.
func (m *Metrics) SetManagerState(state int) {
	if m == nil {
		return
	}
	m.ManagerState.Set(float64(state))
}

// Notification records the outcome of one alert notification.
func (m *Metrics) Notification(outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(outcome).Inc()
}

// AlertRaised records an evaluated alert.
func (m *Metrics) AlertRaised(kind string) {
	if m == nil {
		return
	}
	m.AlertsRaised.WithLabelValues(kind).Inc()
}

// WatchRun records a completed watcher run.
func (m *Metrics) WatchRun(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.WatchRuns.WithLabelValues(outcome).Inc()
	m.WatchRunDuration.Observe(seconds)
}
