package offline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/kilamate/kilamate/internal/observability"
)

// StaticAssets is the default app shell manifest.
var StaticAssets = []string{
	"/",
	"/index.html",
	"/logo.webp",
	"/logo2.webp",
	"/android-chrome-192x192.png",
	"/android-chrome-512x512.png",
}

// Predefined errors.
var (
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	ErrUnknownMessage    = errors.New("unknown message type")
	ErrOffline           = errors.New("network unavailable and no cached response")
)

// State is the manager lifecycle state.
type State int32

const (
	StateInstalling State = iota
	StateWaiting
	StateActive
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

// MessageSkipWaiting asks a waiting manager to activate immediately.
const MessageSkipWaiting = "SKIP_WAITING"

// Message is a control message from a client.
type Message struct {
	Type string `json:"type"`
}

// Config holds configuration for a Manager.
type Config struct {
	// Version suffixes the cache names (default: "1").
	Version string

	// Origin is the app's own origin, e.g. "https://kilamate.app".
	Origin string

	// Manifest lists app shell paths pre-cached at install (default: StaticAssets).
	Manifest []string

	// APIHosts are cross-origin hosts served network-first (default: openweathermap.org).
	// A host matches itself and its subdomains.
	APIHosts []string

	// RuntimeMaxEntries bounds the runtime cache (default: 100).
	RuntimeMaxEntries int

	// RuntimeMaxAge expires runtime entries (default: 30 minutes).
	RuntimeMaxAge time.Duration

	// NetworkTimeout bounds network-first fetches before falling back (default: 10 seconds).
	NetworkTimeout time.Duration

	// SkipWaiting activates right after install instead of waiting for a message.
	SkipWaiting bool

	// Production silences store failure logs.
	Production bool

	Storage Storage

	// Shell fetches same-origin requests; Network everything else.
	Shell   Fetcher
	Network Fetcher

	Clock   clockwork.Clock
	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

// Manager is the offline cache manager.
type Manager struct {
	cfg        Config
	origin     *url.URL
	staticName string
	runtime    string

	mu          sync.RWMutex
	state       State
	skipWaiting bool
	claimed     bool
	installedAt time.Time
	activatedAt time.Time

	storeMu sync.Mutex
	pending sync.WaitGroup
}

// NewManager creates a Manager in the installing state.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Version == "" {
		cfg.Version = "1"
	}
	if cfg.Manifest == nil {
		cfg.Manifest = StaticAssets
	}
	if cfg.APIHosts == nil {
		cfg.APIHosts = []string{"openweathermap.org"}
	}
	if cfg.RuntimeMaxEntries == 0 {
		cfg.RuntimeMaxEntries = 100
	}
	if cfg.RuntimeMaxAge == 0 {
		cfg.RuntimeMaxAge = 30 * time.Minute
	}
	if cfg.NetworkTimeout == 0 {
		cfg.NetworkTimeout = 10 * time.Second
	}
	if cfg.Storage == nil {
		cfg.Storage = NewMemoryStorage()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Shell == nil || cfg.Network == nil {
		return nil, errors.New("offline: shell and network fetchers are required")
	}

	origin, err := url.Parse(strings.TrimRight(cfg.Origin, "/"))
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("offline: invalid origin %q", cfg.Origin)
	}
	cfg.Origin = origin.Scheme + "://" + origin.Host

	m := &Manager{
		cfg:         cfg,
		origin:      origin,
		staticName:  "kilamate-v" + cfg.Version,
		runtime:     "kilamate-runtime-v" + cfg.Version,
		state:       StateInstalling,
		skipWaiting: cfg.SkipWaiting,
	}
	cfg.Metrics.SetManagerState(int(StateInstalling))
	return m, nil
}

// StaticCacheName returns the versioned app shell cache name.
func (m *Manager) StaticCacheName() string { return m.staticName }

// RuntimeCacheName returns the versioned runtime cache name.
func (m *Manager) RuntimeCacheName() string { return m.runtime }

// Origin returns the normalised origin.
func (m *Manager) Origin() string { return m.cfg.Origin }

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Status is a snapshot of the manager for the status endpoint.
type Status struct {
	State            string     `json:"state"`
	Version          string     `json:"version"`
	StaticCache      string     `json:"staticCache"`
	RuntimeCache     string     `json:"runtimeCache"`
	StaticEntries    int        `json:"staticEntries"`
	RuntimeEntries   int        `json:"runtimeEntries"`
	Caches           []string   `json:"caches"`
	ClientsClaimed   bool       `json:"clientsClaimed"`
	SkipWaiting      bool       `json:"skipWaiting"`
	InstalledAt      *time.Time `json:"installedAt,omitempty"`
	ActivatedAt      *time.Time `json:"activatedAt,omitempty"`
	RuntimeMaxAgeSec int        `json:"runtimeMaxAgeSeconds"`
}

// Status reports the lifecycle state and cache sizes.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	m.mu.RLock()
	st := Status{
		State:            m.state.String(),
		Version:          m.cfg.Version,
		StaticCache:      m.staticName,
		RuntimeCache:     m.runtime,
		ClientsClaimed:   m.claimed,
		SkipWaiting:      m.skipWaiting,
		RuntimeMaxAgeSec: int(m.cfg.RuntimeMaxAge / time.Second),
	}
	if !m.installedAt.IsZero() {
		t := m.installedAt
		st.InstalledAt = &t
	}
	if !m.activatedAt.IsZero() {
		t := m.activatedAt
		st.ActivatedAt = &t
	}
	m.mu.RUnlock()

	names, err := m.cfg.Storage.Names(ctx)
	if err != nil {
		return st, err
	}
	st.Caches = names

	for _, name := range names {
		if name != m.staticName && name != m.runtime {
			continue
		}
		c, err := m.cfg.Storage.Open(ctx, name)
		if err != nil {
			return st, err
		}
		keys, err := c.Keys(ctx)
		if err != nil {
			return st, err
		}
		if name == m.staticName {
			st.StaticEntries = len(keys)
		} else {
			st.RuntimeEntries = len(keys)
		}
	}
	return st, nil
}

// InstallReport lists the outcome of pre-caching each manifest entry.
type InstallReport struct {
	Cached []string `json:"cached"`
	Failed []string `json:"failed"`
}

// Install pre-caches the manifest into the static cache. Entries that fail to
// fetch or store are logged and skipped; install itself only fails if the
// static cache cannot be opened. On success the manager waits, or activates
// straight away if skip-waiting was requested.
func (m *Manager) Install(ctx context.Context) (InstallReport, error) {
	var report InstallReport

	if s := m.State(); s != StateInstalling {
		return report, fmt.Errorf("%w: install from %s", ErrInvalidTransition, s)
	}

	static, err := m.cfg.Storage.Open(ctx, m.staticName)
	if err != nil {
		return report, fmt.Errorf("opening static cache: %w", err)
	}

	for _, p := range m.cfg.Manifest {
		req := Get(m.resolve(p))

		resp, err := m.cfg.Shell.Fetch(ctx, req)
		if err == nil && !resp.OK() {
			err = fmt.Errorf("status %d", resp.Status)
		}
		if err == nil {
			resp.StoredAt = m.cfg.Clock.Now()
			err = static.Put(ctx, req, resp)
		}
		if err != nil {
			m.cfg.Logger.Warn().Err(err).Str("asset", p).Msg("failed to pre-cache asset")
			m.cfg.Metrics.CacheStore(m.staticName, "failed")
			report.Failed = append(report.Failed, p)
			continue
		}

		m.cfg.Metrics.CacheStore(m.staticName, "stored")
		report.Cached = append(report.Cached, p)
	}

	m.mu.Lock()
	m.state = StateWaiting
	m.installedAt = m.cfg.Clock.Now()
	skip := m.skipWaiting
	m.mu.Unlock()
	m.cfg.Metrics.SetManagerState(int(StateWaiting))

	m.cfg.Logger.Info().
		Str("cache", m.staticName).
		Int("cached", len(report.Cached)).
		Int("failed", len(report.Failed)).
		Msg("offline cache installed")

	if skip {
		if _, err := m.Activate(ctx); err != nil {
			return report, err
		}
	}
	return report, nil
}

// Activate deletes every cache that is neither the current static nor runtime
// cache and takes control of clients. It returns the deleted cache names.
func (m *Manager) Activate(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	if m.state != StateWaiting {
		s := m.state
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: activate from %s", ErrInvalidTransition, s)
	}
	m.mu.Unlock()

	names, err := m.cfg.Storage.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing caches: %w", err)
	}

	var deleted []string
	for _, name := range names {
		if name == m.staticName || name == m.runtime {
			continue
		}
		if _, err := m.cfg.Storage.Delete(ctx, name); err != nil {
			return deleted, fmt.Errorf("deleting cache %s: %w", name, err)
		}
		deleted = append(deleted, name)
		m.cfg.Metrics.CacheEviction(name, "version", 1)
	}

	m.mu.Lock()
	m.state = StateActive
	m.claimed = true
	m.activatedAt = m.cfg.Clock.Now()
	m.mu.Unlock()
	m.cfg.Metrics.SetManagerState(int(StateActive))

	m.cfg.Logger.Info().Strs("deleted", deleted).Msg("offline cache activated")
	return deleted, nil
}

// HandleMessage processes a client control message.
func (m *Manager) HandleMessage(ctx context.Context, msg Message) error {
	if msg.Type != MessageSkipWaiting {
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}

	m.mu.Lock()
	m.skipWaiting = true
	waiting := m.state == StateWaiting
	m.mu.Unlock()

	if !waiting {
		return nil
	}
	_, err := m.Activate(ctx)
	return err
}

// Retire marks the manager as superseded by a newer version.
func (m *Manager) Retire() {
	m.mu.Lock()
	m.state = StateRedundant
	m.mu.Unlock()
	m.cfg.Metrics.SetManagerState(int(StateRedundant))
}

// Wait blocks until every background cache store has settled.
func (m *Manager) Wait() {
	m.pending.Wait()
}

// Fetch answers a request according to its origin:
//   - same origin: cache first, storing 200 basic responses on a miss
//   - API hosts: network first within NetworkTimeout, cache on failure
//   - anything else: network, uncached
//
// Until the manager is active every request goes to the network.
func (m *Manager) Fetch(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", req.URL, err)
	}
	same := strings.EqualFold(u.Scheme, m.origin.Scheme) && strings.EqualFold(u.Host, m.origin.Host)

	if m.State() != StateActive || req.Method != http.MethodGet {
		return m.passThrough(ctx, req, same)
	}

	switch {
	case same:
		return m.cacheFirst(ctx, req)
	case m.isAPIHost(u.Hostname()):
		return m.networkFirst(ctx, req)
	default:
		return m.passThrough(ctx, req, false)
	}
}

func (m *Manager) passThrough(ctx context.Context, req Request, same bool) (*Response, error) {
	fetcher := m.cfg.Network
	if same {
		fetcher = m.cfg.Shell
	}

	resp, err := fetcher.Fetch(ctx, req)
	if err != nil {
		m.cfg.Metrics.Fetch("network_only", "error")
		return nil, err
	}
	m.cfg.Metrics.Fetch("network_only", "network")
	resp.Source = SourceBypass
	return resp, nil
}

func (m *Manager) cacheFirst(ctx context.Context, req Request) (*Response, error) {
	if resp := m.match(ctx, req); resp != nil {
		m.cfg.Metrics.Fetch("cache_first", "cache")
		resp.Source = SourceCache
		return resp, nil
	}

	resp, err := m.cfg.Shell.Fetch(ctx, req)
	if err != nil {
		m.cfg.Metrics.Fetch("cache_first", "error")
		return nil, err
	}

	if resp.OK() && resp.Type == TypeBasic {
		m.storeAsync(ctx, req, resp)
	}

	m.cfg.Metrics.Fetch("cache_first", "network")
	resp.Source = SourceNetwork
	return resp, nil
}

func (m *Manager) networkFirst(ctx context.Context, req Request) (*Response, error) {
	netCtx, cancel := context.WithTimeout(ctx, m.cfg.NetworkTimeout)
	resp, err := m.cfg.Network.Fetch(netCtx, req)
	cancel()

	if err == nil {
		if resp.OK() {
			m.storeAsync(ctx, req, resp)
		}
		m.cfg.Metrics.Fetch("network_first", "network")
		resp.Source = SourceNetwork
		return resp, nil
	}

	if cached := m.matchRuntime(ctx, req); cached != nil {
		m.cfg.Logger.Debug().Err(err).Str("url", req.URL).Msg("network failed, serving cached response")
		m.cfg.Metrics.Fetch("network_first", "fallback")
		cached.Source = SourceStale
		return cached, nil
	}

	m.cfg.Metrics.Fetch("network_first", "error")
	return nil, fmt.Errorf("%w: %w", ErrOffline, err)
}

func (m *Manager) isAPIHost(host string) bool {
	host = strings.ToLower(host)
	for _, h := range m.cfg.APIHosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// match looks in the static cache, then the runtime cache.
func (m *Manager) match(ctx context.Context, req Request) *Response {
	static, err := m.cfg.Storage.Open(ctx, m.staticName)
	if err == nil {
		resp, err := static.Match(ctx, req)
		if err == nil {
			m.cfg.Metrics.CacheLookup(m.staticName, "hit")
			return resp
		}
		if !errors.Is(err, ErrNotCached) {
			m.logStoreFailure(err, m.staticName, req)
		}
		m.cfg.Metrics.CacheLookup(m.staticName, "miss")
	}

	return m.matchRuntime(ctx, req)
}

// matchRuntime ignores and removes entries older than RuntimeMaxAge.
func (m *Manager) matchRuntime(ctx context.Context, req Request) *Response {
	runtime, err := m.cfg.Storage.Open(ctx, m.runtime)
	if err != nil {
		m.logStoreFailure(err, m.runtime, req)
		return nil
	}

	resp, err := runtime.Match(ctx, req)
	if err != nil {
		if !errors.Is(err, ErrNotCached) {
			m.logStoreFailure(err, m.runtime, req)
		}
		m.cfg.Metrics.CacheLookup(m.runtime, "miss")
		return nil
	}

	if m.expired(resp) {
		if _, err := runtime.Delete(ctx, req); err != nil {
			m.logStoreFailure(err, m.runtime, req)
		}
		m.cfg.Metrics.CacheLookup(m.runtime, "expired")
		m.cfg.Metrics.CacheEviction(m.runtime, "age", 1)
		return nil
	}

	m.cfg.Metrics.CacheLookup(m.runtime, "hit")
	return resp
}

func (m *Manager) expired(resp *Response) bool {
	return m.cfg.Clock.Since(resp.StoredAt) > m.cfg.RuntimeMaxAge
}

// storeAsync writes a copy of resp into the runtime cache without holding up
// the caller. The store survives cancellation of ctx; Wait tracks it.
func (m *Manager) storeAsync(ctx context.Context, req Request, resp *Response) {
	entry := resp.Clone()
	entry.Source = ""
	entry.StoredAt = m.cfg.Clock.Now()
	storeCtx := context.WithoutCancel(ctx)

	m.pending.Add(1)
	go func() {
		defer m.pending.Done()

		if err := m.store(storeCtx, req, entry); err != nil {
			m.cfg.Metrics.CacheStore(m.runtime, "failed")
			m.logStoreFailure(err, m.runtime, req)
			return
		}
		m.cfg.Metrics.CacheStore(m.runtime, "stored")
	}()
}

func (m *Manager) store(ctx context.Context, req Request, entry *Response) error {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()

	runtime, err := m.cfg.Storage.Open(ctx, m.runtime)
	if err != nil {
		return err
	}
	if err := runtime.Put(ctx, req, entry); err != nil {
		return err
	}
	return m.trim(ctx, runtime)
}

// trim evicts the oldest runtime entries beyond RuntimeMaxEntries.
func (m *Manager) trim(ctx context.Context, c Cache) error {
	keys, err := c.Keys(ctx)
	if err != nil {
		return err
	}
	excess := len(keys) - m.cfg.RuntimeMaxEntries
	if excess <= 0 {
		return nil
	}

	type aged struct {
		req      Request
		storedAt time.Time
	}
	entries := make([]aged, 0, len(keys))
	for _, k := range keys {
		req := ParseKey(k)
		resp, err := c.Match(ctx, req)
		if err != nil {
			continue
		}
		entries = append(entries, aged{req: req, storedAt: resp.StoredAt})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].storedAt.Before(entries[j].storedAt)
	})

	evicted := 0
	for _, e := range entries {
		if evicted == excess {
			break
		}
		if _, err := c.Delete(ctx, e.req); err != nil {
			return err
		}
		evicted++
	}
	m.cfg.Metrics.CacheEviction(c.Name(), "capacity", evicted)
	return nil
}

func (m *Manager) logStoreFailure(err error, cache string, req Request) {
	if m.cfg.Production {
		return
	}
	m.cfg.Logger.Debug().Err(err).Str("cache", cache).Str("request", req.Key()).Msg("cache operation failed")
}

// resolve turns a manifest path into an absolute same-origin URL.
func (m *Manager) resolve(p string) string {
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return m.cfg.Origin + p
}

// Resolve returns the absolute same-origin URL for a path and raw query.
func (m *Manager) Resolve(path, rawQuery string) string {
	u := m.resolve(path)
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	return u
}
