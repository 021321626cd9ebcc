package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilamate/kilamate/internal/alert"
	"github.com/kilamate/kilamate/internal/dashboard"
	"github.com/kilamate/kilamate/internal/geolocation"
	"github.com/kilamate/kilamate/internal/kv"
	"github.com/kilamate/kilamate/internal/notify"
	"github.com/kilamate/kilamate/internal/observability"
	"github.com/kilamate/kilamate/internal/worker"
)

// fakeEvaluator raises one wind alert per target, failing for targets listed
// in fail.
type fakeEvaluator struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
	delay time.Duration
}

func (f *fakeEvaluator) Alerts(ctx context.Context, pos *geolocation.Position) (*dashboard.AlertsView, error) {
	f.mu.Lock()
	f.calls = append(f.calls, pos.Name)
	fail := f.fail[pos.Name]
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("provider down")
	}
	return &dashboard.AlertsView{
		Location: pos.Name,
		Alerts:   []alert.Alert{{Kind: alert.KindWind, Title: "High Wind Alert"}},
	}, nil
}

func (f *fakeEvaluator) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type countingNotifier struct {
	mu        sync.Mutex
	locations []string
}

func (c *countingNotifier) Process(_ context.Context, location string, alerts []alert.Alert) alert.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locations = append(c.locations, location)
	return alert.Result{Dispatched: len(alerts)}
}

var targets = []worker.WatchTarget{
	{Name: "Srinagar", Lat: 34.08, Lon: 74.79},
	{Name: "Jammu", Lat: 32.72, Lon: 74.85},
	{Name: "Leh", Lat: 34.15, Lon: 77.57},
}

func newJob(eval worker.Evaluator, notifier worker.AlertProcessor, metrics *observability.Metrics) *worker.WatchJob {
	return worker.NewWatchJob(worker.WatchJobConfig{
		Config:    worker.WatchConfig{Targets: targets, Concurrency: 2, Timeout: time.Second},
		Evaluator: eval,
		Notifier:  notifier,
		Logger:    zerolog.Nop(),
		Metrics:   metrics,
	})
}

func TestDefaultWatchConfig(t *testing.T) {
	cfg := worker.DefaultWatchConfig()

	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	require.NotEmpty(t, cfg.Targets)
	assert.Equal(t, "Srinagar", cfg.Targets[0].Name)
}

func TestWatchJob_Run(t *testing.T) {
	eval := &fakeEvaluator{}
	notifier := &countingNotifier{}
	metrics, _ := observability.NewMetricsForTesting()
	job := newJob(eval, notifier, metrics)

	result := job.Run(context.Background())

	assert.Equal(t, 3, result.Targets)
	assert.Equal(t, 3, result.Successful)
	assert.Zero(t, result.Failed)
	assert.Equal(t, 3, result.Alerts)
	assert.Equal(t, 3, result.Dispatched)
	assert.ElementsMatch(t, []string{"Srinagar", "Jammu", "Leh"}, notifier.locations)

	status := job.Status()
	assert.Equal(t, int64(1), status.Runs)
	assert.Same(t, result, status.Last)
}

// slowKV delays reads so concurrent targets overlap inside Process.
type slowKV struct {
	kv.Store
}

func (s slowKV) Get(ctx context.Context, key string) ([]byte, error) {
	time.Sleep(5 * time.Millisecond)
	return s.Store.Get(ctx, key)
}

type grantedPermissions struct{}

func (grantedPermissions) Permission(context.Context) notify.Permission {
	return notify.PermissionGranted
}
func (grantedPermissions) NotificationsEnabled(context.Context) bool { return true }

func TestWatchJob_ConcurrentRunsRespectCooldown(t *testing.T) {
	notifier := alert.NewNotifier(alert.NotifierConfig{
		Store: alert.NewKVStore(slowKV{Store: kv.NewMemoryStore()}),
		Gate: notify.NewGate(notify.GateConfig{
			Dispatcher:  notify.NewLogDispatcher(zerolog.Nop()),
			Permissions: grantedPermissions{},
			Logger:      zerolog.Nop(),
		}),
		Logger: zerolog.Nop(),
	})
	job := worker.NewWatchJob(worker.WatchJobConfig{
		Config:    worker.WatchConfig{Targets: targets, Concurrency: 3, Timeout: time.Second},
		Evaluator: &fakeEvaluator{},
		Notifier:  notifier,
		Logger:    zerolog.Nop(),
	})

	first := job.Run(context.Background())
	second := job.Run(context.Background())

	assert.Equal(t, 3, first.Dispatched)
	assert.Zero(t, second.Dispatched)
	assert.Equal(t, 3, second.Suppressed)
}

func TestWatchJob_RunRecordsFailures(t *testing.T) {
	eval := &fakeEvaluator{fail: map[string]bool{"Leh": true}}
	notifier := &countingNotifier{}
	job := newJob(eval, notifier, nil)

	result := job.Run(context.Background())

	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Leh", result.Errors[0].Target)
	assert.Len(t, notifier.locations, 2)
}

func TestWatchJob_RunWithoutNotifier(t *testing.T) {
	job := newJob(&fakeEvaluator{}, nil, nil)

	result := job.Run(context.Background())

	assert.Equal(t, 3, result.Alerts)
	assert.Zero(t, result.Dispatched)
}

func TestWatchJob_PerTargetTimeout(t *testing.T) {
	eval := &fakeEvaluator{delay: time.Minute}
	job := worker.NewWatchJob(worker.WatchJobConfig{
		Config:    worker.WatchConfig{Targets: targets[:1], Timeout: 20 * time.Millisecond},
		Evaluator: eval,
		Logger:    zerolog.Nop(),
	})

	result := job.Run(context.Background())

	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error, "deadline exceeded")
}

func TestWatchJob_CancelledContext(t *testing.T) {
	eval := &fakeEvaluator{}
	job := newJob(eval, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := job.Run(ctx)

	assert.Equal(t, 3, result.Targets)
	assert.Equal(t, result.Targets, result.Successful+result.Failed)
}

func TestMessageHandler_EvaluateAlerts(t *testing.T) {
	eval := &fakeEvaluator{}
	handler := worker.NewMessageHandler(newJob(eval, &countingNotifier{}, nil), zerolog.Nop())

	err := handler.Handle(context.Background(), []byte(`{"job_type":"evaluate_alerts"}`))
	require.NoError(t, err)
	assert.Len(t, eval.called(), 3)
}

func TestMessageHandler_EvaluateSelectedTargets(t *testing.T) {
	eval := &fakeEvaluator{}
	handler := worker.NewMessageHandler(newJob(eval, nil, nil), zerolog.Nop())

	err := handler.Handle(context.Background(), []byte(`{"job_type":"evaluate_alerts","targets":["leh"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Leh"}, eval.called())

	err = handler.Handle(context.Background(), []byte(`{"job_type":"evaluate_alerts","targets":["Paris"]}`))
	require.NoError(t, err)
	assert.Len(t, eval.called(), 1)
}

func TestMessageHandler_EvaluateMostlyFailing(t *testing.T) {
	eval := &fakeEvaluator{fail: map[string]bool{"Srinagar": true, "Jammu": true}}
	handler := worker.NewMessageHandler(newJob(eval, nil, nil), zerolog.Nop())

	err := handler.Handle(context.Background(), []byte(`{"job_type":"evaluate_alerts"}`))
	assert.Error(t, err)
}

func TestMessageHandler_HealthCheck(t *testing.T) {
	eval := &fakeEvaluator{}
	handler := worker.NewMessageHandler(newJob(eval, nil, nil), zerolog.Nop())

	require.NoError(t, handler.Handle(context.Background(), []byte(`{"job_type":"health_check"}`)))
	assert.Equal(t, []string{"Srinagar"}, eval.called())

	eval.fail = map[string]bool{"Srinagar": true}
	assert.Error(t, handler.Handle(context.Background(), []byte(`{"job_type":"health_check"}`)))
}

func TestMessageHandler_UnknownAndMalformed(t *testing.T) {
	eval := &fakeEvaluator{}
	handler := worker.NewMessageHandler(newJob(eval, nil, nil), zerolog.Nop())

	assert.NoError(t, handler.Handle(context.Background(), []byte(`{"job_type":"provider_refresh"}`)))
	assert.ErrorIs(t, handler.Handle(context.Background(), []byte(`not json`)), worker.ErrMalformedMessage)
	assert.Empty(t, eval.called())
}
