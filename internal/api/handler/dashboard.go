package handler

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/kilamate/kilamate/internal/api/response"
	"github.com/kilamate/kilamate/internal/dashboard"
	"github.com/kilamate/kilamate/internal/geolocation"
)

// PositionResolver turns the client-reported location into a position.
type PositionResolver interface {
	Resolve(ctx context.Context, q geolocation.Query) (*geolocation.Position, error)
}

// DashboardBuilder assembles dashboard views.
type DashboardBuilder interface {
	Build(ctx context.Context, pos *geolocation.Position) (*dashboard.View, error)
	Alerts(ctx context.Context, pos *geolocation.Position) (*dashboard.AlertsView, error)
}

// DashboardHandler handles the dashboard and alert endpoints.
type DashboardHandler struct {
	resolver  PositionResolver
	dashboard DashboardBuilder
	logger    zerolog.Logger
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(resolver PositionResolver, builder DashboardBuilder, logger zerolog.Logger) *DashboardHandler {
	return &DashboardHandler{
		resolver:  resolver,
		dashboard: builder,
		logger:    logger,
	}
}

// GetDashboard handles GET /v1/dashboard. Viewing the dashboard dispatches
// notifications for any alerts that are out of cooldown.
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	pos, err := h.resolver.Resolve(r.Context(), positionQuery(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	view, err := h.dashboard.Build(r.Context(), pos)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, view)
}

// GetAlerts handles GET /v1/alerts. Alerts are evaluated but never
// dispatched.
func (h *DashboardHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	pos, err := h.resolver.Resolve(r.Context(), positionQuery(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	view, err := h.dashboard.Alerts(r.Context(), pos)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, view)
}
