// Package notify delivers alert notifications through a permission-gated
// transport. Delivery is best effort: callers never see transport errors.
package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kilamate/kilamate/internal/observability"
)

// Defaults applied to every payload that leaves a Gate.
const (
	DefaultIcon  = "/logo.webp"
	DefaultBadge = "/logo.webp"
	TitlePrefix  = "⚠️ "
)

// DefaultVibrate is the vibration pattern that triggers a heads-up display on
// mobile devices.
var DefaultVibrate = []int{200, 100, 200}

// ErrTransportClosed is returned by transports used after Close.
var ErrTransportClosed = errors.New("notification transport closed")

// Payload is a single notification.
type Payload struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Icon     string `json:"icon,omitempty"`
	Badge    string `json:"badge,omitempty"`
	Tag      string `json:"tag,omitempty"`
	Vibrate  []int  `json:"vibrate,omitempty"`
	Renotify bool   `json:"renotify"`
	URL      string `json:"url,omitempty"`
}

// Permission is the user's notification permission.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

// ParsePermission maps user input onto a Permission. Anything unrecognised is
// treated as PermissionDefault.
func ParsePermission(s string) Permission {
	switch Permission(strings.ToLower(strings.TrimSpace(s))) {
	case PermissionGranted:
		return PermissionGranted
	case PermissionDenied:
		return PermissionDenied
	default:
		return PermissionDefault
	}
}

// Dispatcher is a notification transport.
type Dispatcher interface {
	Dispatch(ctx context.Context, p Payload) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, p Payload) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, p Payload) error {
	return f(ctx, p)
}

// PermissionSource reports whether the user allows notifications.
type PermissionSource interface {
	Permission(ctx context.Context) Permission
	NotificationsEnabled(ctx context.Context) bool
}

// Outcome describes what happened to a payload handed to a Gate.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"

	// OutcomeSuppressed is reported by callers that hold back a payload
	// inside its cooldown. A Gate never returns it.
	OutcomeSuppressed Outcome = "suppressed"
)

// GateConfig holds configuration for a Gate.
type GateConfig struct {
	// Dispatcher is the underlying transport. Nil means notifications are
	// unsupported and every payload is skipped.
	Dispatcher Dispatcher

	// Permissions reports the current permission. Nil means not granted.
	Permissions PermissionSource

	// URL is attached to payloads without one so a click opens the dashboard.
	URL string

	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

// Gate wraps a transport with permission checks and payload defaults.
type Gate struct {
	dispatcher  Dispatcher
	permissions PermissionSource
	url         string
	logger      zerolog.Logger
	metrics     *observability.Metrics
}

// NewGate creates a new Gate.
func NewGate(cfg GateConfig) *Gate {
	return &Gate{
		dispatcher:  cfg.Dispatcher,
		permissions: cfg.Permissions,
		url:         cfg.URL,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

// Ready reports whether a payload sent now would reach the transport.
func (g *Gate) Ready(ctx context.Context) bool {
	if g == nil || g.dispatcher == nil || g.permissions == nil {
		return false
	}
	return g.permissions.Permission(ctx) == PermissionGranted &&
		g.permissions.NotificationsEnabled(ctx)
}

// Send delivers p if the gate is open. Transport errors are logged and
// reported as OutcomeFailed; Send never panics and never returns an error.
func (g *Gate) Send(ctx context.Context, p Payload) Outcome {
	if !g.Ready(ctx) {
		if g != nil {
			g.logger.Debug().Str("tag", p.Tag).Msg("notification skipped: not permitted")
			g.metrics.Notification(string(OutcomeSkipped))
		}
		return OutcomeSkipped
	}

	p = g.withDefaults(p)
	if err := g.safeDispatch(ctx, p); err != nil {
		g.logger.Warn().Err(err).Str("tag", p.Tag).Msg("notification dispatch failed")
		g.metrics.Notification(string(OutcomeFailed))
		return OutcomeFailed
	}

	g.metrics.Notification(string(OutcomeDelivered))
	return OutcomeDelivered
}

// Dispatch implements Dispatcher. It always returns nil.
func (g *Gate) Dispatch(ctx context.Context, p Payload) error {
	g.Send(ctx, p)
	return nil
}

func (g *Gate) safeDispatch(ctx context.Context, p Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("notification transport panicked")
			g.logger.Error().Interface("panic", r).Msg("recovered from notification transport panic")
		}
	}()
	return g.dispatcher.Dispatch(ctx, p)
}

func (g *Gate) withDefaults(p Payload) Payload {
	if !strings.HasPrefix(p.Title, TitlePrefix) {
		p.Title = TitlePrefix + p.Title
	}
	if p.Icon == "" {
		p.Icon = DefaultIcon
	}
	if p.Badge == "" {
		p.Badge = DefaultBadge
	}
	if len(p.Vibrate) == 0 {
		p.Vibrate = append([]int(nil), DefaultVibrate...)
	}
	if p.URL == "" {
		p.URL = g.url
	}
	p.Renotify = true
	return p
}
