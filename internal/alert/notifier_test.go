package alert_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilamate/kilamate/internal/alert"
	"github.com/kilamate/kilamate/internal/kv"
	"github.com/kilamate/kilamate/internal/notify"
)

type recordingDispatcher struct {
	mu       sync.Mutex
	payloads []notify.Payload
	err      error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, p notify.Payload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payloads = append(d.payloads, p)
	return d.err
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.payloads)
}

type permissions struct {
	permission notify.Permission
	enabled    bool
}

func (p permissions) Permission(context.Context) notify.Permission { return p.permission }
func (p permissions) NotificationsEnabled(context.Context) bool    { return p.enabled }

var allowed = permissions{permission: notify.PermissionGranted, enabled: true}

type failingStore struct{}

func (failingStore) Load(context.Context) (alert.Record, error) {
	return nil, errors.New("storage unavailable")
}

func (failingStore) Save(context.Context, alert.Record) error {
	return errors.New("quota exceeded")
}

func newNotifier(store alert.Store, d notify.Dispatcher, perms notify.PermissionSource, clock clockwork.Clock) *alert.Notifier {
	return alert.NewNotifier(alert.NotifierConfig{
		Store: store,
		Gate: notify.NewGate(notify.GateConfig{
			Dispatcher:  d,
			Permissions: perms,
			Logger:      zerolog.Nop(),
		}),
		Clock:  clock,
		Logger: zerolog.Nop(),
	})
}

var windAlert = alert.Alert{
	Kind:     alert.KindWind,
	Severity: alert.SeverityMedium,
	Title:    "High Wind Alert",
	Message:  "Strong winds detected at 12 m/s. Exercise caution outdoors.",
}

func TestNotifier_OneSecondApartDispatchesOnce(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, time.May, 10, 8, 0, 0, 0, time.UTC))
	d := &recordingDispatcher{}
	n := newNotifier(alert.NewMemoryStore(), d, allowed, clock)

	first := n.Process(context.Background(), "Nairobi", []alert.Alert{windAlert})
	clock.Advance(time.Second)
	second := n.Process(context.Background(), "Nairobi", []alert.Alert{windAlert})

	assert.Equal(t, 1, d.count())
	assert.Equal(t, 1, first.Dispatched)
	assert.Equal(t, 0, second.Dispatched)
	assert.Equal(t, 1, second.Suppressed)
}

func TestNotifier_TwentyFiveHoursApartDispatchesTwice(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, time.May, 10, 8, 0, 0, 0, time.UTC))
	d := &recordingDispatcher{}
	n := newNotifier(alert.NewMemoryStore(), d, allowed, clock)

	n.Process(context.Background(), "Nairobi", []alert.Alert{windAlert})
	clock.Advance(25 * time.Hour)
	n.Process(context.Background(), "Nairobi", []alert.Alert{windAlert})

	assert.Equal(t, 2, d.count())
}

func TestNotifier_KeyIncludesLocation(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := &recordingDispatcher{}
	n := newNotifier(alert.NewMemoryStore(), d, allowed, clock)

	n.Process(context.Background(), "Nairobi", []alert.Alert{windAlert})
	n.Process(context.Background(), "Mombasa", []alert.Alert{windAlert})

	require.Equal(t, 2, d.count())
	assert.Equal(t, "High Wind Alert-Nairobi", d.payloads[0].Tag)
	assert.Equal(t, "High Wind Alert-Mombasa", d.payloads[1].Tag)
	assert.Equal(t, "⚠️ High Wind Alert", d.payloads[0].Title)
}

func TestNotifier_PersistsRecord(t *testing.T) {
	start := time.Date(2024, time.May, 10, 8, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)
	store := alert.NewMemoryStore()
	n := newNotifier(store, &recordingDispatcher{}, allowed, clock)

	n.Process(context.Background(), "Nairobi", []alert.Alert{windAlert})

	rec, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, start.UnixMilli(), rec["High Wind Alert-Nairobi"])
}

func TestNotifier_SurvivesRestartWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	clock := clockwork.NewFakeClock()
	d := &recordingDispatcher{}

	first := newNotifier(alert.NewKVStore(kv.NewRedisStore(client, "kilamate")), d, allowed, clock)
	first.Process(context.Background(), "Nairobi", []alert.Alert{windAlert})

	clock.Advance(time.Hour)
	restarted := newNotifier(alert.NewKVStore(kv.NewRedisStore(client, "kilamate")), d, allowed, clock)
	res := restarted.Process(context.Background(), "Nairobi", []alert.Alert{windAlert})

	assert.Equal(t, 1, d.count())
	assert.Equal(t, 1, res.Suppressed)
	assert.True(t, mr.Exists("kilamate:"+alert.RecordKey))
}

func TestNotifier_NotPermittedLeavesRecordUntouched(t *testing.T) {
	store := alert.NewMemoryStore()
	d := &recordingDispatcher{}
	n := newNotifier(store, d, permissions{permission: notify.PermissionDenied, enabled: true}, clockwork.NewFakeClock())

	res := n.Process(context.Background(), "Nairobi", []alert.Alert{windAlert})

	assert.True(t, res.Skipped)
	assert.Equal(t, 0, d.count())
	rec, _ := store.Load(context.Background())
	assert.Empty(t, rec)
}

func TestNotifier_NilGateNeverPanics(t *testing.T) {
	n := alert.NewNotifier(alert.NotifierConfig{Logger: zerolog.Nop()})

	assert.NotPanics(t, func() {
		res := n.Process(context.Background(), "Nairobi", []alert.Alert{windAlert})
		assert.True(t, res.Skipped)
	})
}

func TestNotifier_StoreFailuresAreLogged(t *testing.T) {
	d := &recordingDispatcher{}
	n := newNotifier(failingStore{}, d, allowed, clockwork.NewFakeClock())

	res := n.Process(context.Background(), "Nairobi", []alert.Alert{windAlert})

	assert.Equal(t, 1, res.Dispatched)
	assert.Equal(t, 1, d.count())
}

func TestNotifier_TransportFailureStillRecordsSend(t *testing.T) {
	store := alert.NewMemoryStore()
	d := &recordingDispatcher{err: errors.New("broker down")}
	clock := clockwork.NewFakeClock()
	n := newNotifier(store, d, allowed, clock)

	res := n.Process(context.Background(), "Nairobi", []alert.Alert{windAlert})
	assert.Equal(t, 1, res.Failed)

	res = n.Process(context.Background(), "Nairobi", []alert.Alert{windAlert})
	assert.Equal(t, 1, res.Suppressed)
}

func TestNotifier_NoAlerts(t *testing.T) {
	d := &recordingDispatcher{}
	n := newNotifier(alert.NewMemoryStore(), d, allowed, clockwork.NewFakeClock())

	res := n.Process(context.Background(), "Nairobi", nil)

	assert.Equal(t, alert.Result{}, res)
}

// slowStore widens the window between Load and Save.
type slowStore struct {
	*alert.MemoryStore
	delay time.Duration
}

func (s slowStore) Load(ctx context.Context) (alert.Record, error) {
	time.Sleep(s.delay)
	return s.MemoryStore.Load(ctx)
}

func TestNotifier_ConcurrentLocationsKeepEveryEntry(t *testing.T) {
	store := slowStore{MemoryStore: alert.NewMemoryStore(), delay: 5 * time.Millisecond}
	clock := clockwork.NewFakeClock()
	d := &recordingDispatcher{}
	n := newNotifier(store, d, allowed, clock)
	locations := []string{"Nairobi", "Mombasa", "Kisumu"}

	run := func() int {
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			total int
		)
		for _, loc := range locations {
			wg.Add(1)
			go func(loc string) {
				defer wg.Done()
				res := n.Process(context.Background(), loc, []alert.Alert{windAlert})
				mu.Lock()
				total += res.Dispatched
				mu.Unlock()
			}(loc)
		}
		wg.Wait()
		return total
	}

	assert.Equal(t, 3, run())
	clock.Advance(time.Hour)
	assert.Equal(t, 0, run())

	rec, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, rec, 3)
}

// flakyStore fails the next Load when failNext is set.
type flakyStore struct {
	*alert.MemoryStore
	failNext bool
}

func (s *flakyStore) Load(ctx context.Context) (alert.Record, error) {
	if s.failNext {
		s.failNext = false
		return nil, errors.New("storage unavailable")
	}
	return s.MemoryStore.Load(ctx)
}

func TestNotifier_LoadFailureKeepsOtherEntries(t *testing.T) {
	start := time.Date(2024, time.May, 10, 8, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)
	store := &flakyStore{MemoryStore: alert.NewMemoryStore()}
	d := &recordingDispatcher{}
	n := newNotifier(store, d, allowed, clock)

	n.Process(context.Background(), "Nairobi", []alert.Alert{windAlert})

	store.failNext = true
	clock.Advance(time.Hour)
	res := n.Process(context.Background(), "Mombasa", []alert.Alert{windAlert})
	assert.Equal(t, 1, res.Dispatched)

	clock.Advance(time.Hour)
	res = n.Process(context.Background(), "Nairobi", []alert.Alert{windAlert})
	assert.Equal(t, 1, res.Suppressed)
	assert.Equal(t, 2, d.count())

	rec, err := store.MemoryStore.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, start.UnixMilli(), rec["High Wind Alert-Nairobi"])
}

// revokedAfterFirstCheck grants permission only to the first query.
type revokedAfterFirstCheck struct {
	mu    sync.Mutex
	calls int
}

func (p *revokedAfterFirstCheck) Permission(context.Context) notify.Permission {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls == 1 {
		return notify.PermissionGranted
	}
	return notify.PermissionDenied
}

func (p *revokedAfterFirstCheck) NotificationsEnabled(context.Context) bool { return true }

func TestNotifier_PermissionRevokedDuringSendLeavesKeyUnstamped(t *testing.T) {
	store := alert.NewMemoryStore()
	d := &recordingDispatcher{}
	n := newNotifier(store, d, &revokedAfterFirstCheck{}, clockwork.NewFakeClock())

	res := n.Process(context.Background(), "Nairobi", []alert.Alert{windAlert})

	assert.Equal(t, 0, res.Dispatched)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 0, d.count())
	rec, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rec)
}
