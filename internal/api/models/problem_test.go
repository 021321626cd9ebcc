package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilamate/kilamate/internal/api/models"
)

func TestProblem_Builders(t *testing.T) {
	p := models.NewProblem(
		models.ProblemTypeLocationDenied,
		"Location permission denied",
		http.StatusForbidden,
		"req_test123",
	).WithDetail("Location permission denied. Please enable location access.").
		WithInstance("/v1/dashboard").
		WithErrors([]models.FieldError{{Field: "geoError", Message: "permission denied", Code: "1"}})

	assert.Equal(t, "https://kilamate.app/problems/location-permission-denied", p.Type)
	assert.Equal(t, http.StatusForbidden, p.Status)
	assert.Equal(t, "req_test123", p.TraceID)
	assert.Equal(t, "/v1/dashboard", p.Instance)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "geoError", p.Errors[0].Field)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", "invalid coordinates", []models.FieldError{
		{Field: "lat", Message: "must be between -90 and 90"},
	})
	p.Instance = "/v1/air-quality"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var result models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))

	assert.Equal(t, models.ProblemTypeValidation, result.Type)
	assert.Equal(t, "Validation error", result.Title)
	assert.Equal(t, "invalid coordinates", result.Detail)
	assert.Equal(t, "/v1/air-quality", result.Instance)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "lat", result.Errors[0].Field)
}

func TestProblem_WriteWithoutTraceID(t *testing.T) {
	w := httptest.NewRecorder()
	models.NewInternalError("", "boom").Write(w)

	assert.Empty(t, w.Header().Get("X-Request-Id"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestProblemConstructors(t *testing.T) {
	tests := []struct {
		name   string
		p      *models.Problem
		typ    string
		title  string
		status int
	}{
		{"not found", models.NewNotFound("req_1", "x"), models.ProblemTypeNotFound, "Not found", http.StatusNotFound},
		{"conflict", models.NewConflict("req_1", "x"), models.ProblemTypeConflict, "Conflict", http.StatusConflict},
		{"too many", models.NewTooManyRequests("req_1", "x"), models.ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests},
		{"internal", models.NewInternalError("req_1", "x"), models.ProblemTypeInternal, "Internal server error", http.StatusInternalServerError},
		{"unavailable", models.NewServiceUnavailable("req_1", "x"), models.ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable},
		{"offline", models.NewOffline("req_1", "x"), models.ProblemTypeOffline, "Offline", http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.p.Type)
			assert.Equal(t, tt.title, tt.p.Title)
			assert.Equal(t, tt.status, tt.p.Status)
			assert.Equal(t, "x", tt.p.Detail)
			assert.Equal(t, "req_1", tt.p.TraceID)
		})
	}
}
