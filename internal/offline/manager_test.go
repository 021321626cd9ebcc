package offline_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilamate/kilamate/internal/offline"
)

const origin = "https://kilamate.test"

var errNetwork = errors.New("network down")

// fakeNetwork records calls and can be switched off.
type fakeNetwork struct {
	mu     sync.Mutex
	calls  []string
	down   atomic.Bool
	handle func(req offline.Request) *offline.Response
}

func (f *fakeNetwork) Fetch(ctx context.Context, req offline.Request) (*offline.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.URL)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.down.Load() {
		return nil, errNetwork
	}
	return f.handle(req), nil
}

func (f *fakeNetwork) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func shellFS() fstest.MapFS {
	return fstest.MapFS{
		"index.html":                 {Data: []byte("<!doctype html><title>Kilamate</title>")},
		"logo.webp":                  {Data: []byte("RIFFlogo")},
		"logo2.webp":                 {Data: []byte("RIFFlogo2")},
		"android-chrome-192x192.png": {Data: []byte("png192")},
		"android-chrome-512x512.png": {Data: []byte("png512")},
		"assets/app.js":              {Data: []byte("console.log('kilamate')")},
	}
}

func newShell() *fakeNetwork {
	fs := offline.NewFSFetcher(shellFS())
	return &fakeNetwork{handle: func(req offline.Request) *offline.Response {
		resp, _ := fs.Fetch(context.Background(), req)
		return resp
	}}
}

func newAPI() *fakeNetwork {
	return &fakeNetwork{handle: func(req offline.Request) *offline.Response {
		return &offline.Response{
			Status: http.StatusOK,
			Header: http.Header{"Content-Type": []string{"application/json"}},
			Body:   []byte(`{"url":"` + req.URL + `"}`),
			Type:   offline.TypeCORS,
		}
	}}
}

type harness struct {
	manager *offline.Manager
	shell   *fakeNetwork
	api     *fakeNetwork
	storage *offline.MemoryStorage
	clock   fakeClock
}

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

func newHarness(t *testing.T, mutate func(*offline.Config)) *harness {
	t.Helper()

	h := &harness{
		shell:   newShell(),
		api:     newAPI(),
		storage: offline.NewMemoryStorage(),
		clock:   clockwork.NewFakeClockAt(time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)),
	}

	cfg := offline.Config{
		Origin:      origin,
		SkipWaiting: true,
		Storage:     h.storage,
		Shell:       h.shell,
		Network:     h.api,
		Clock:       h.clock,
		Logger:      zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	m, err := offline.NewManager(cfg)
	require.NoError(t, err)
	h.manager = m
	return h
}

func (h *harness) install(t *testing.T) offline.InstallReport {
	t.Helper()
	report, err := h.manager.Install(context.Background())
	require.NoError(t, err)
	return report
}

func (h *harness) runtimeKeys(t *testing.T) []string {
	t.Helper()
	c, err := h.storage.Open(context.Background(), h.manager.RuntimeCacheName())
	require.NoError(t, err)
	keys, err := c.Keys(context.Background())
	require.NoError(t, err)
	return keys
}

func TestManager_CacheNames(t *testing.T) {
	h := newHarness(t, func(c *offline.Config) { c.Version = "7" })

	assert.Equal(t, "kilamate-v7", h.manager.StaticCacheName())
	assert.Equal(t, "kilamate-runtime-v7", h.manager.RuntimeCacheName())
	assert.Equal(t, offline.StateInstalling, h.manager.State())
}

func TestManager_RequiresFetchersAndOrigin(t *testing.T) {
	_, err := offline.NewManager(offline.Config{Origin: origin})
	assert.Error(t, err)

	_, err = offline.NewManager(offline.Config{Origin: "not a url", Shell: newShell(), Network: newAPI()})
	assert.Error(t, err)
}

func TestManager_InstallPrecachesManifest(t *testing.T) {
	h := newHarness(t, nil)

	report := h.install(t)

	assert.ElementsMatch(t, offline.StaticAssets, report.Cached)
	assert.Empty(t, report.Failed)
	assert.Equal(t, offline.StateActive, h.manager.State())
}

func TestManager_InstallKeepsWhatSucceeds(t *testing.T) {
	h := newHarness(t, func(c *offline.Config) {
		c.Manifest = []string{"/", "/missing.png", "/logo.webp"}
	})

	report := h.install(t)

	assert.Equal(t, []string{"/", "/logo.webp"}, report.Cached)
	assert.Equal(t, []string{"/missing.png"}, report.Failed)
	assert.Equal(t, offline.StateActive, h.manager.State())
}

func TestManager_InstallToleratesNetworkFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.shell.down.Store(true)

	report := h.install(t)

	assert.Empty(t, report.Cached)
	assert.Len(t, report.Failed, len(offline.StaticAssets))
}

func TestManager_InstallTwiceFails(t *testing.T) {
	h := newHarness(t, nil)
	h.install(t)

	_, err := h.manager.Install(context.Background())
	assert.ErrorIs(t, err, offline.ErrInvalidTransition)
}

func TestManager_PrecachedAssetNeverReachesNetwork(t *testing.T) {
	h := newHarness(t, nil)
	h.install(t)

	before := h.shell.count()
	h.shell.down.Store(true)
	h.api.down.Store(true)

	for _, p := range offline.StaticAssets {
		resp, err := h.manager.Fetch(context.Background(), offline.Get(origin+p))
		require.NoError(t, err, p)
		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Equal(t, offline.SourceCache, resp.Source)
	}

	assert.Equal(t, before, h.shell.count())
	assert.Zero(t, h.api.count())
}

func TestManager_SameOrigin404NeverStored(t *testing.T) {
	h := newHarness(t, nil)
	h.install(t)

	resp, err := h.manager.Fetch(context.Background(), offline.Get(origin+"/nope.js"))
	require.NoError(t, err)
	h.manager.Wait()

	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, offline.SourceNetwork, resp.Source)
	assert.Empty(t, h.runtimeKeys(t))

	_, err = h.manager.Fetch(context.Background(), offline.Get(origin+"/nope.js"))
	require.NoError(t, err)
	h.manager.Wait()
	assert.Empty(t, h.runtimeKeys(t))
}

func TestManager_SameOriginMissIsStoredThenServedFromCache(t *testing.T) {
	h := newHarness(t, nil)
	h.install(t)

	first, err := h.manager.Fetch(context.Background(), offline.Get(origin+"/assets/app.js"))
	require.NoError(t, err)
	h.manager.Wait()
	assert.Equal(t, offline.SourceNetwork, first.Source)
	assert.Equal(t, []string{"GET " + origin + "/assets/app.js"}, h.runtimeKeys(t))

	h.shell.down.Store(true)
	second, err := h.manager.Fetch(context.Background(), offline.Get(origin+"/assets/app.js"))
	require.NoError(t, err)
	assert.Equal(t, offline.SourceCache, second.Source)
	assert.Equal(t, first.Body, second.Body)
}

func TestManager_SameOriginNonBasicNotStored(t *testing.T) {
	h := newHarness(t, nil)
	h.shell.handle = func(offline.Request) *offline.Response {
		return &offline.Response{Status: http.StatusOK, Type: offline.TypeOpaque}
	}
	h.install(t)

	_, err := h.manager.Fetch(context.Background(), offline.Get(origin+"/embed"))
	require.NoError(t, err)
	h.manager.Wait()

	assert.Empty(t, h.runtimeKeys(t))
}

func TestManager_SameOriginMissWithNetworkDownFails(t *testing.T) {
	h := newHarness(t, nil)
	h.install(t)
	h.shell.down.Store(true)

	_, err := h.manager.Fetch(context.Background(), offline.Get(origin+"/assets/app.js"))
	assert.ErrorIs(t, err, errNetwork)
}

func TestManager_APINetworkFirstWithFallback(t *testing.T) {
	h := newHarness(t, nil)
	h.install(t)
	url := "https://api.openweathermap.org/data/2.5/weather?lat=-1.29&lon=36.82"

	fresh, err := h.manager.Fetch(context.Background(), offline.Get(url))
	require.NoError(t, err)
	h.manager.Wait()
	assert.Equal(t, offline.SourceNetwork, fresh.Source)

	h.api.down.Store(true)
	h.clock.Advance(10 * time.Minute)

	stale, err := h.manager.Fetch(context.Background(), offline.Get(url))
	require.NoError(t, err)
	assert.Equal(t, offline.SourceStale, stale.Source)
	assert.Equal(t, fresh.Body, stale.Body)
	assert.Equal(t, 2, h.api.count())
}

func TestManager_APIAlwaysTriesNetworkFirst(t *testing.T) {
	h := newHarness(t, nil)
	h.install(t)
	url := "https://api.openweathermap.org/data/2.5/forecast?lat=1&lon=2"

	for i := 0; i < 3; i++ {
		resp, err := h.manager.Fetch(context.Background(), offline.Get(url))
		require.NoError(t, err)
		assert.Equal(t, offline.SourceNetwork, resp.Source)
	}
	h.manager.Wait()

	assert.Equal(t, 3, h.api.count())
}

func TestManager_APIFailureWithoutCache(t *testing.T) {
	h := newHarness(t, nil)
	h.install(t)
	h.api.down.Store(true)

	_, err := h.manager.Fetch(context.Background(), offline.Get("https://api.openweathermap.org/data/2.5/weather"))
	assert.ErrorIs(t, err, offline.ErrOffline)
	assert.ErrorIs(t, err, errNetwork)
}

func TestManager_APIExpiredEntryIsIgnoredAndRemoved(t *testing.T) {
	h := newHarness(t, nil)
	h.install(t)
	url := "https://api.openweathermap.org/data/2.5/weather?q=Nairobi"

	_, err := h.manager.Fetch(context.Background(), offline.Get(url))
	require.NoError(t, err)
	h.manager.Wait()
	require.Len(t, h.runtimeKeys(t), 1)

	h.api.down.Store(true)
	h.clock.Advance(31 * time.Minute)

	_, err = h.manager.Fetch(context.Background(), offline.Get(url))
	assert.ErrorIs(t, err, offline.ErrOffline)
	assert.Empty(t, h.runtimeKeys(t))
}

func TestManager_APIErrorStatusNotStored(t *testing.T) {
	h := newHarness(t, nil)
	h.api.handle = func(offline.Request) *offline.Response {
		return &offline.Response{Status: http.StatusUnauthorized, Type: offline.TypeCORS}
	}
	h.install(t)

	resp, err := h.manager.Fetch(context.Background(), offline.Get("https://api.openweathermap.org/data/2.5/weather"))
	require.NoError(t, err)
	h.manager.Wait()

	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Empty(t, h.runtimeKeys(t))
}

func TestManager_NetworkTimeoutFallsBackToCache(t *testing.T) {
	h := newHarness(t, func(c *offline.Config) { c.NetworkTimeout = 20 * time.Millisecond })
	h.install(t)
	url := "https://api.openweathermap.org/data/2.5/weather?id=1"

	_, err := h.manager.Fetch(context.Background(), offline.Get(url))
	require.NoError(t, err)
	h.manager.Wait()

	slow := offline.FetcherFunc(func(ctx context.Context, _ offline.Request) (*offline.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	m, err := offline.NewManager(offline.Config{
		Origin:         origin,
		SkipWaiting:    true,
		NetworkTimeout: 20 * time.Millisecond,
		Storage:        h.storage,
		Shell:          h.shell,
		Network:        slow,
		Clock:          h.clock,
		Logger:         zerolog.Nop(),
	})
	require.NoError(t, err)
	_, err = m.Install(context.Background())
	require.NoError(t, err)

	resp, err := m.Fetch(context.Background(), offline.Get(url))
	require.NoError(t, err)
	assert.Equal(t, offline.SourceStale, resp.Source)
}

func TestManager_SubdomainOfAPIHostIsNetworkFirst(t *testing.T) {
	h := newHarness(t, nil)
	h.install(t)

	resp, err := h.manager.Fetch(context.Background(), offline.Get("https://tile.openweathermap.org/map/clouds_new/1/1/1.png"))
	require.NoError(t, err)
	h.manager.Wait()

	assert.Equal(t, offline.SourceNetwork, resp.Source)
	assert.Len(t, h.runtimeKeys(t), 1)
}

func TestManager_OtherCrossOriginPassesThrough(t *testing.T) {
	h := newHarness(t, nil)
	h.install(t)

	resp, err := h.manager.Fetch(context.Background(), offline.Get("https://fonts.example.com/inter.woff2"))
	require.NoError(t, err)
	h.manager.Wait()

	assert.Equal(t, offline.SourceBypass, resp.Source)
	assert.Empty(t, h.runtimeKeys(t))
	assert.Equal(t, 1, h.api.count())
}

func TestManager_RuntimeCapacityEvictsOldest(t *testing.T) {
	h := newHarness(t, func(c *offline.Config) { c.RuntimeMaxEntries = 2 })
	h.install(t)

	for _, id := range []string{"1", "2", "3"} {
		_, err := h.manager.Fetch(context.Background(), offline.Get("https://api.openweathermap.org/data/2.5/weather?id="+id))
		require.NoError(t, err)
		h.manager.Wait()
		h.clock.Advance(time.Second)
	}

	assert.Equal(t, []string{
		"GET https://api.openweathermap.org/data/2.5/weather?id=2",
		"GET https://api.openweathermap.org/data/2.5/weather?id=3",
	}, h.runtimeKeys(t))
}

func TestManager_WaitingManagerIsNetworkOnly(t *testing.T) {
	h := newHarness(t, func(c *offline.Config) { c.SkipWaiting = false })
	h.install(t)
	require.Equal(t, offline.StateWaiting, h.manager.State())

	before := h.shell.count()
	resp, err := h.manager.Fetch(context.Background(), offline.Get(origin+"/logo.webp"))
	require.NoError(t, err)

	assert.Equal(t, offline.SourceBypass, resp.Source)
	assert.Equal(t, before+1, h.shell.count())

	require.NoError(t, h.manager.HandleMessage(context.Background(), offline.Message{Type: offline.MessageSkipWaiting}))
	assert.Equal(t, offline.StateActive, h.manager.State())

	resp, err = h.manager.Fetch(context.Background(), offline.Get(origin+"/logo.webp"))
	require.NoError(t, err)
	assert.Equal(t, offline.SourceCache, resp.Source)
}

func TestManager_SkipWaitingBeforeInstallActivatesAfterInstall(t *testing.T) {
	h := newHarness(t, func(c *offline.Config) { c.SkipWaiting = false })

	require.NoError(t, h.manager.HandleMessage(context.Background(), offline.Message{Type: offline.MessageSkipWaiting}))
	assert.Equal(t, offline.StateInstalling, h.manager.State())

	h.install(t)
	assert.Equal(t, offline.StateActive, h.manager.State())
}

func TestManager_SkipWaitingWhenActiveIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	h.install(t)

	assert.NoError(t, h.manager.HandleMessage(context.Background(), offline.Message{Type: offline.MessageSkipWaiting}))
	assert.Equal(t, offline.StateActive, h.manager.State())
}

func TestManager_UnknownMessage(t *testing.T) {
	h := newHarness(t, nil)

	err := h.manager.HandleMessage(context.Background(), offline.Message{Type: "CLAIM"})
	assert.ErrorIs(t, err, offline.ErrUnknownMessage)
}

func TestManager_ActivateDeletesOldVersions(t *testing.T) {
	h := newHarness(t, func(c *offline.Config) {
		c.Version = "2"
		c.SkipWaiting = false
	})
	ctx := context.Background()
	for _, name := range []string{"kilamate-v1", "kilamate-runtime-v1", "kilamate-runtime-v2"} {
		_, err := h.storage.Open(ctx, name)
		require.NoError(t, err)
	}

	h.install(t)
	deleted, err := h.manager.Activate(ctx)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"kilamate-v1", "kilamate-runtime-v1"}, deleted)
	names, err := h.storage.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"kilamate-runtime-v2", "kilamate-v2"}, names)
}

func TestManager_ActivateBeforeInstallFails(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.manager.Activate(context.Background())
	assert.ErrorIs(t, err, offline.ErrInvalidTransition)
}

func TestManager_RetiredManagerBypassesCaches(t *testing.T) {
	h := newHarness(t, nil)
	h.install(t)
	h.manager.Retire()

	resp, err := h.manager.Fetch(context.Background(), offline.Get(origin+"/"))
	require.NoError(t, err)
	assert.Equal(t, offline.StateRedundant, h.manager.State())
	assert.Equal(t, offline.SourceBypass, resp.Source)
}

// failingStorage opens caches whose writes always fail.
type failingStorage struct {
	*offline.MemoryStorage
}

type readOnlyCache struct {
	offline.Cache
}

func (readOnlyCache) Put(context.Context, offline.Request, *offline.Response) error {
	return errors.New("quota exceeded")
}

func (s failingStorage) Open(ctx context.Context, name string) (offline.Cache, error) {
	c, err := s.MemoryStorage.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return readOnlyCache{c}, nil
}

func TestManager_StoreFailureDoesNotBreakResponse(t *testing.T) {
	h := newHarness(t, func(c *offline.Config) {
		c.Storage = failingStorage{offline.NewMemoryStorage()}
	})
	report := h.install(t)
	assert.Empty(t, report.Cached)

	resp, err := h.manager.Fetch(context.Background(), offline.Get("https://api.openweathermap.org/data/2.5/weather"))
	require.NoError(t, err)
	h.manager.Wait()

	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestManager_Status(t *testing.T) {
	h := newHarness(t, nil)
	h.install(t)

	_, err := h.manager.Fetch(context.Background(), offline.Get(origin+"/assets/app.js"))
	require.NoError(t, err)
	h.manager.Wait()

	st, err := h.manager.Status(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "active", st.State)
	assert.Equal(t, len(offline.StaticAssets), st.StaticEntries)
	assert.Equal(t, 1, st.RuntimeEntries)
	assert.True(t, st.ClientsClaimed)
	assert.NotNil(t, st.ActivatedAt)
	assert.Equal(t, 1800, st.RuntimeMaxAgeSec)
}

func TestRequestKey(t *testing.T) {
	req := offline.Request{Method: "get", URL: origin + "/"}

	assert.Equal(t, "GET "+origin+"/", req.Key())
	assert.Equal(t, offline.Request{Method: "GET", URL: origin + "/"}, offline.ParseKey(req.Key()))
	assert.Equal(t, "GET x", offline.Request{URL: "x"}.Key())
}

func TestResponseClone(t *testing.T) {
	orig := &offline.Response{Status: 200, Header: http.Header{"A": {"1"}}, Body: []byte("abc")}
	c := orig.Clone()
	c.Body[0] = 'x'
	c.Header.Set("A", "2")

	assert.Equal(t, "abc", string(orig.Body))
	assert.Equal(t, "1", orig.Header.Get("A"))
	assert.Nil(t, (*offline.Response)(nil).Clone())
}
