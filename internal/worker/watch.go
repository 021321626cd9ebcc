package worker

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/kilamate/kilamate/internal/alert"
	"github.com/kilamate/kilamate/internal/dashboard"
	"github.com/kilamate/kilamate/internal/geolocation"
	"github.com/kilamate/kilamate/internal/observability"
	"github.com/kilamate/kilamate/internal/telemetry"
)

// Evaluator evaluates the alerts at a position.
type Evaluator interface {
	Alerts(ctx context.Context, pos *geolocation.Position) (*dashboard.AlertsView, error)
}

// AlertProcessor notifies alerts outside their cooldown.
type AlertProcessor interface {
	Process(ctx context.Context, location string, alerts []alert.Alert) alert.Result
}

// WatchJobConfig holds configuration for creating a WatchJob.
type WatchJobConfig struct {
	Config    WatchConfig
	Evaluator Evaluator
	Notifier  AlertProcessor
	Clock     clockwork.Clock
	Logger    zerolog.Logger
	Metrics   *observability.Metrics
}

// WatchJob evaluates alerts for every target and notifies new ones.
type WatchJob struct {
	config    WatchConfig
	evaluator Evaluator
	notifier  AlertProcessor
	clock     clockwork.Clock
	logger    zerolog.Logger
	metrics   *observability.Metrics

	mu   sync.RWMutex
	last *WatchResult
	runs int64
}

// NewWatchJob creates a new watch job.
func NewWatchJob(cfg WatchJobConfig) *WatchJob {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &WatchJob{
		config:    cfg.Config.withDefaults(),
		evaluator: cfg.Evaluator,
		notifier:  cfg.Notifier,
		clock:     clock,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// WatchResult contains the result of a watch run.
type WatchResult struct {
	StartTime  time.Time     `json:"startTime"`
	EndTime    time.Time     `json:"endTime"`
	Duration   time.Duration `json:"duration"`
	Targets    int           `json:"targets"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Alerts     int           `json:"alerts"`
	Dispatched int           `json:"dispatched"`
	Suppressed int           `json:"suppressed"`
	Errors     []WatchError  `json:"errors,omitempty"`
}

// WatchError records a target that could not be evaluated.
type WatchError struct {
	Target string `json:"target"`
	Error  string `json:"error"`
}

// Run evaluates every configured target.
func (j *WatchJob) Run(ctx context.Context) *WatchResult {
	return j.run(ctx, j.config.Targets)
}

func (j *WatchJob) run(ctx context.Context, targets []WatchTarget) *WatchResult {
	startTime := j.clock.Now()
	result := &WatchResult{
		StartTime: startTime,
		Targets:   len(targets),
	}

	j.logger.Info().
		Int("targets", len(targets)).
		Int("concurrency", j.config.Concurrency).
		Msg("starting alert watch job")

	targetsChan := make(chan WatchTarget, len(targets))
	resultsChan := make(chan targetResult, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.watchWorker(ctx, targetsChan, resultsChan)
		}()
	}

	for _, t := range targets {
		targetsChan <- t
	}
	close(targetsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for tr := range resultsChan {
		if tr.err != nil {
			result.Failed++
			result.Errors = append(result.Errors, WatchError{Target: tr.target.Name, Error: tr.err.Error()})
			continue
		}
		result.Successful++
		result.Alerts += tr.alerts
		result.Dispatched += tr.notified.Dispatched
		result.Suppressed += tr.notified.Suppressed
	}
	// Targets never picked up because ctx ended count as failed.
	if missing := result.Targets - result.Successful - result.Failed; missing > 0 {
		result.Failed += missing
	}

	result.EndTime = j.clock.Now()
	result.Duration = result.EndTime.Sub(startTime)

	outcome := "ok"
	if result.Failed > 0 {
		outcome = "failed"
	}
	j.metrics.WatchRun(outcome, result.Duration.Seconds())
	j.record(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("alerts", result.Alerts).
		Int("dispatched", result.Dispatched).
		Msg("alert watch job completed")

	return result
}

type targetResult struct {
	target   WatchTarget
	alerts   int
	notified alert.Result
	err      error
}

func (j *WatchJob) watchWorker(ctx context.Context, targets <-chan WatchTarget, results chan<- targetResult) {
	for target := range targets {
		select {
		case <-ctx.Done():
			return
		default:
			results <- j.watchTarget(ctx, target)
		}
	}
}

func (j *WatchJob) watchTarget(ctx context.Context, target WatchTarget) targetResult {
	result := targetResult{target: target}

	targetCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	targetCtx, span := telemetry.Start(targetCtx, "worker.watchTarget", telemetry.Coordinates(target.Lat, target.Lon)...)
	defer func() { telemetry.End(span, result.err) }()

	pos := &geolocation.Position{Lat: target.Lat, Lon: target.Lon, Name: target.Name}
	view, err := j.evaluator.Alerts(targetCtx, pos)
	if err != nil {
		j.logger.Warn().Err(err).Str("target", target.Name).Msg("alert evaluation failed")
		result.err = err
		return result
	}

	result.alerts = len(view.Alerts)
	if len(view.Alerts) > 0 && j.notifier != nil {
		result.notified = j.notifier.Process(targetCtx, view.Location, view.Alerts)
	}
	return result
}

func (j *WatchJob) record(result *WatchResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.last = result
	j.runs++
}

// Status summarises past runs.
type Status struct {
	Runs int64        `json:"runs"`
	Last *WatchResult `json:"last,omitempty"`
}

// Status returns the number of completed runs and the most recent result.
func (j *WatchJob) Status() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Status{Runs: j.runs, Last: j.last}
}
