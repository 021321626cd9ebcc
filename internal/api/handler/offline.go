package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/kilamate/kilamate/internal/api/models"
	"github.com/kilamate/kilamate/internal/api/response"
	"github.com/kilamate/kilamate/internal/offline"
)

// OfflineManager is the offline cache manager as seen by the API.
type OfflineManager interface {
	State() offline.State
	Status(ctx context.Context) (offline.Status, error)
	HandleMessage(ctx context.Context, msg offline.Message) error
}

// OfflineHandler exposes the offline cache lifecycle.
type OfflineHandler struct {
	manager OfflineManager
	logger  zerolog.Logger
}

// NewOfflineHandler creates a new OfflineHandler.
func NewOfflineHandler(manager OfflineManager, logger zerolog.Logger) *OfflineHandler {
	return &OfflineHandler{manager: manager, logger: logger}
}

// GetStatus handles GET /v1/offline/status.
func (h *OfflineHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.manager.Status(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, status)
}

// PostMessage handles POST /v1/offline/messages, the client control channel.
func (h *OfflineHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var msg offline.Message
	if !decodeJSON(w, r, &msg) {
		return
	}

	err := h.manager.HandleMessage(r.Context(), msg)
	switch {
	case errors.Is(err, offline.ErrUnknownMessage):
		response.BadRequest(w, r, err.Error(), []models.FieldError{
			{Field: "type", Message: "must be " + offline.MessageSkipWaiting, Code: "INVALID_VALUE"},
		})
		return
	case errors.Is(err, offline.ErrInvalidTransition):
		response.Conflict(w, r, err.Error())
		return
	case err != nil:
		writeError(w, r, h.logger, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.OfflineMessageResult{State: h.manager.State().String()})
}
