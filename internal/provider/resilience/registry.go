package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Health is a point-in-time view of one upstream.
type Health struct {
	Name          string
	State         gobreaker.State
	Counts        gobreaker.Counts
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string
}

// Healthy reports a closed breaker.
func (h *Health) Healthy() bool { return h.State == gobreaker.StateClosed }

// Degraded reports a half-open breaker.
func (h *Health) Degraded() bool { return h.State == gobreaker.StateHalfOpen }

// Unhealthy reports an open breaker.
func (h *Health) Unhealthy() bool { return h.State == gobreaker.StateOpen }

// Status maps the breaker state to ok, degraded or down.
func (h *Health) Status() string {
	switch h.State {
	case gobreaker.StateHalfOpen:
		return "degraded"
	case gobreaker.StateOpen:
		return "down"
	default:
		return "ok"
	}
}

// Registry tracks upstream clients for the status endpoint.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	client        *Client
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds or replaces the client under name.
func (r *Registry) Register(name string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = &entry{client: c}
}

// Unregister removes name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// RecordSuccess stamps the last success of name. Unknown names are ignored.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		now := time.Now()
		e.lastSuccessAt = &now
	}
}

// RecordFailure stamps the last failure of name and keeps its message.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		now := time.Now()
		e.lastFailureAt = &now
		if err != nil {
			e.lastError = err.Error()
		}
	}
}

// Health returns the view of name, or nil if it is not registered.
func (r *Registry) Health(name string) *Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil
	}
	return e.health(name)
}

// All returns every upstream sorted by name.
func (r *Registry) All() []*Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Health, 0, len(r.entries))
	for name, e := range r.entries {
		out = append(out, e.health(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered upstreams.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (e *entry) health(name string) *Health {
	return &Health{
		Name:          name,
		State:         e.client.State(),
		Counts:        e.client.Counts(),
		LastSuccessAt: e.lastSuccessAt,
		LastFailureAt: e.lastFailureAt,
		LastError:     e.lastError,
	}
}
