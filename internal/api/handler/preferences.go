package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/kilamate/kilamate/internal/api/models"
	"github.com/kilamate/kilamate/internal/api/response"
	"github.com/kilamate/kilamate/internal/notify"
	"github.com/kilamate/kilamate/internal/preferences"
	"github.com/kilamate/kilamate/internal/units"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 16 << 10

// PreferenceService reads and updates user preferences.
type PreferenceService interface {
	Get(ctx context.Context) (preferences.Preferences, error)
	Update(ctx context.Context, patch preferences.Patch) (preferences.Preferences, error)
	SetPermission(ctx context.Context, perm notify.Permission) (preferences.Preferences, error)
}

// NotificationSender is a permission-gated notification transport.
type NotificationSender interface {
	Ready(ctx context.Context) bool
	Send(ctx context.Context, p notify.Payload) notify.Outcome
}

// PreferencesHandler handles preference and notification settings endpoints.
type PreferencesHandler struct {
	prefs  PreferenceService
	sender NotificationSender
	logger zerolog.Logger
}

// NewPreferencesHandler creates a new PreferencesHandler.
func NewPreferencesHandler(prefs PreferenceService, sender NotificationSender, logger zerolog.Logger) *PreferencesHandler {
	return &PreferencesHandler{prefs: prefs, sender: sender, logger: logger}
}

// GetPreferences handles GET /v1/preferences.
func (h *PreferencesHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.prefs.Get(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, prefs)
}

// UpdatePreferences handles PUT /v1/preferences. Omitted fields keep their
// stored value.
func (h *PreferencesHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var patch preferences.Patch
	if !decodeJSON(w, r, &patch) {
		return
	}

	prefs, err := h.prefs.Update(r.Context(), patch)
	if err != nil {
		if fe, ok := preferenceFieldError(err); ok {
			response.BadRequest(w, r, "invalid preferences", []models.FieldError{fe})
			return
		}
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, prefs)
}

// GetNotificationSettings handles GET /v1/notifications/settings.
func (h *PreferencesHandler) GetNotificationSettings(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.prefs.Get(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, h.settings(r.Context(), prefs))
}

// UpdateNotificationSettings handles PUT /v1/notifications/settings. The
// permission is applied before the toggle, so granting and disabling in one
// request leaves notifications off.
func (h *PreferencesHandler) UpdateNotificationSettings(w http.ResponseWriter, r *http.Request) {
	var input models.NotificationSettingsUpdate
	if !decodeJSON(w, r, &input) {
		return
	}

	var perm notify.Permission
	if input.Permission != nil {
		perm = notify.ParsePermission(*input.Permission)
		if string(perm) != *input.Permission {
			response.BadRequest(w, r, "invalid notification settings", []models.FieldError{
				{Field: "permission", Message: "must be one of granted, denied, default", Code: "INVALID_VALUE"},
			})
			return
		}
	}

	ctx := r.Context()
	prefs, err := h.prefs.Get(ctx)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if input.Permission != nil {
		if prefs, err = h.prefs.SetPermission(ctx, perm); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}
	if input.Enabled != nil {
		if prefs, err = h.prefs.Update(ctx, preferences.Patch{NotificationsEnabled: input.Enabled}); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}
	response.JSON(w, r, http.StatusOK, h.settings(ctx, prefs))
}

// SendTestNotification handles POST /v1/notifications/test.
func (h *PreferencesHandler) SendTestNotification(w http.ResponseWriter, r *http.Request) {
	if h.sender == nil || !h.sender.Ready(r.Context()) {
		response.Conflict(w, r, "notifications are not enabled")
		return
	}

	outcome := h.sender.Send(r.Context(), notify.Payload{
		Title: "Test Notification",
		Body:  "Weather alerts are enabled for this device.",
		Tag:   "test-notification",
	})
	response.JSON(w, r, http.StatusOK, models.TestNotificationResult{Outcome: string(outcome)})
}

func (h *PreferencesHandler) settings(ctx context.Context, prefs preferences.Preferences) models.NotificationSettings {
	return models.NotificationSettings{
		Permission: string(prefs.NotificationPermission),
		Enabled:    prefs.NotificationsEnabled,
		Ready:      h.sender != nil && h.sender.Ready(ctx),
	}
}

func preferenceFieldError(err error) (models.FieldError, bool) {
	switch {
	case errors.Is(err, units.ErrUnknownTemperatureUnit):
		return models.FieldError{Field: "temperatureUnit", Message: "must be celsius or fahrenheit", Code: "INVALID_VALUE"}, true
	case errors.Is(err, units.ErrUnknownWindSpeedUnit):
		return models.FieldError{Field: "windSpeedUnit", Message: "must be kmh, mph or ms", Code: "INVALID_VALUE"}, true
	case errors.Is(err, preferences.ErrUnsupportedLanguage):
		return models.FieldError{Field: "language", Message: "must be one of en, hi, ur", Code: "INVALID_VALUE"}, true
	}
	return models.FieldError{}, false
}

// decodeJSON decodes the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return false
	}
	return true
}
