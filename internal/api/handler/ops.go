package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/kilamate/kilamate/internal/api/models"
	"github.com/kilamate/kilamate/internal/api/response"
	"github.com/kilamate/kilamate/internal/gridcache"
	"github.com/kilamate/kilamate/internal/offline"
	"github.com/kilamate/kilamate/internal/provider/resilience"
)

// pingTimeout bounds dependency checks on the ops endpoints.
const pingTimeout = 2 * time.Second

// Pinger is a dependency that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsConfig holds the dependencies reported on by the ops endpoints. Nil
// dependencies are left out of the reports.
type OpsConfig struct {
	Version   string
	BuildTime string

	Storage   Pinger
	Providers *resilience.Registry
	Offline   interface{ State() offline.State }

	// Caches reports the response caches by name.
	Caches func() map[string]gridcache.Stats
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. The service is ready once its
// preference and alert storage answers.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	storage := h.storageStatus(r.Context())

	health := models.Health{
		Status: storage.Status,
		Time:   models.Timestamp(time.Now()),
	}
	if storage.Detail != nil {
		health.Details = map[string]interface{}{"storage": *storage.Detail}
	}

	status := http.StatusOK
	if storage.Status == models.HealthStatusFail {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Time:       models.Timestamp(time.Now()),
		Subsystems: []models.SubsystemStatus{h.storageStatus(r.Context())},
		Providers:  []models.ProviderStatus{},
	}
	if h.cfg.Offline != nil {
		status.Subsystems = append(status.Subsystems, offlineStatus(h.cfg.Offline.State()))
	}

	if h.cfg.Providers != nil {
		for _, p := range h.cfg.Providers.All() {
			ps := models.ProviderStatus{
				Provider:      p.Name,
				Status:        providerHealth(p),
				LastSuccessAt: timestampPtr(p.LastSuccessAt),
				LastFailureAt: timestampPtr(p.LastFailureAt),
			}
			if p.LastError != "" {
				msg := p.LastError
				ps.Message = &msg
			}
			if ps.Status != models.HealthStatusOK {
				status.ActiveDegradationFlags = append(status.ActiveDegradationFlags, "provider_"+p.Name+"_"+p.Status())
			}
			status.Providers = append(status.Providers, ps)
		}
	}

	if h.cfg.Caches != nil {
		for name, st := range h.cfg.Caches() {
			status.Caches = append(status.Caches, models.CacheStatus{
				Name:         name,
				Entries:      st.Entries,
				FreshEntries: st.FreshEntries,
			})
		}
		sort.Slice(status.Caches, func(i, j int) bool { return status.Caches[i].Name < status.Caches[j].Name })
	}

	status.Status = overall(status)
	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) storageStatus(ctx context.Context) models.SubsystemStatus {
	s := models.SubsystemStatus{Name: "storage", Status: models.HealthStatusOK}
	if h.cfg.Storage == nil {
		return s
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := h.cfg.Storage.Ping(ctx); err != nil {
		detail := err.Error()
		s.Status = models.HealthStatusFail
		s.Detail = &detail
	}
	return s
}

func offlineStatus(state offline.State) models.SubsystemStatus {
	s := models.SubsystemStatus{Name: "offline-cache", Status: models.HealthStatusOK}
	if state != offline.StateActive {
		detail := state.String()
		s.Status = models.HealthStatusDegraded
		s.Detail = &detail
	}
	return s
}

func providerHealth(h *resilience.Health) models.HealthStatus {
	switch {
	case h.Unhealthy():
		return models.HealthStatusFail
	case h.Degraded():
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}

// overall is the worst status of any part. A failed provider only degrades
// the service since cached data can still be served.
func overall(s models.SystemStatus) models.HealthStatus {
	result := models.HealthStatusOK
	for _, sub := range s.Subsystems {
		if sub.Status == models.HealthStatusFail && sub.Name == "storage" {
			return models.HealthStatusFail
		}
		if sub.Status != models.HealthStatusOK {
			result = models.HealthStatusDegraded
		}
	}
	for _, p := range s.Providers {
		if p.Status != models.HealthStatusOK {
			result = models.HealthStatusDegraded
		}
	}
	return result
}

func timestampPtr(t *time.Time) *models.Timestamp {
	if t == nil {
		return nil
	}
	ts := models.Timestamp(*t)
	return &ts
}
