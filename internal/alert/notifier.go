package alert

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/kilamate/kilamate/internal/notify"
	"github.com/kilamate/kilamate/internal/observability"
)

// NotifierConfig holds configuration for a Notifier.
type NotifierConfig struct {
	Store Store
	Gate  *notify.Gate

	// Cooldown is the suppression window per alert key (default: 24 hours).
	Cooldown time.Duration

	// Clock defaults to the real clock.
	Clock clockwork.Clock

	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

// Notifier dispatches notifications for alerts that are outside their cooldown.
// Process calls are serialised so concurrent callers never overwrite each
// other's record entries.
type Notifier struct {
	mu sync.Mutex

	store    Store
	gate     *notify.Gate
	cooldown time.Duration
	clock    clockwork.Clock
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// NewNotifier creates a new Notifier.
func NewNotifier(cfg NotifierConfig) *Notifier {
	cooldown := cfg.Cooldown
	if cooldown == 0 {
		cooldown = DefaultCooldown
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}

	return &Notifier{
		store:    store,
		gate:     cfg.Gate,
		cooldown: cooldown,
		clock:    clock,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// Result summarises one Process call.
type Result struct {
	// Skipped is true when notifications are not permitted; nothing was
	// dispatched and the record was left untouched.
	Skipped    bool `json:"skipped"`
	Dispatched int  `json:"dispatched"`
	Failed     int  `json:"failed"`
	Suppressed int  `json:"suppressed"`
}

// Process notifies every alert whose key is outside its cooldown and records
// the send time. The record is saved once, only if it changed. If the record
// cannot be loaded, alerts are still sent but nothing is saved, so entries of
// other locations are never lost. Store and transport failures are logged;
// the caller still has the alerts for display.
func (n *Notifier) Process(ctx context.Context, location string, alerts []Alert) Result {
	var res Result

	for _, a := range alerts {
		n.metrics.AlertRaised(string(a.Kind))
	}

	if len(alerts) == 0 {
		return res
	}
	if !n.gate.Ready(ctx) {
		res.Skipped = true
		n.metrics.Notification(string(notify.OutcomeSkipped))
		return res
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	rec, err := n.store.Load(ctx)
	loaded := err == nil
	if !loaded {
		n.logger.Warn().Err(err).Msg("alert record unavailable, treating as empty")
		rec = Record{}
	}

	updated := false
	for _, a := range alerts {
		key := Key(a.Title, location)
		now := n.clock.Now()

		if !ShouldNotify(rec, key, now, n.cooldown) {
			res.Suppressed++
			n.metrics.Notification(string(notify.OutcomeSuppressed))
			continue
		}

		switch n.gate.Send(ctx, notify.Payload{
			Title: a.Title,
			Body:  a.Message,
			Tag:   key,
		}) {
		case notify.OutcomeDelivered:
			res.Dispatched++
		case notify.OutcomeFailed:
			res.Failed++
		default:
			// Permission changed after Ready; leave the key unstamped.
			continue
		}

		rec.MarkSent(key, now)
		updated = true
	}

	if updated && loaded {
		if err := n.store.Save(ctx, rec); err != nil {
			n.logger.Warn().Err(err).Msg("failed to save alert record")
		}
	}

	n.logger.Debug().
		Str("location", location).
		Int("alerts", len(alerts)).
		Int("dispatched", res.Dispatched).
		Int("suppressed", res.Suppressed).
		Msg("processed alerts")

	return res
}
