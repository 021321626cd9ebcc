package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilamate/kilamate/internal/api/middleware"
	"github.com/kilamate/kilamate/internal/api/models"
	"github.com/kilamate/kilamate/internal/api/response"
)

// requestWithContext creates an HTTP request that has been processed by the
// RequestID middleware.
func requestWithContext(t *testing.T, method, path string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(method, path, http.NoBody)

	var processedReq *http.Request
	handler := middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		processedReq = r
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	return processedReq, httptest.NewRecorder()
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var problem models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	return problem
}

func TestJSON_IncludesRequestID(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodGet, "/v1/preferences")

	response.JSON(rec, req, http.StatusOK, map[string]string{"language": "en"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, middleware.GetRequestID(req.Context()), rec.Header().Get("X-Request-Id"))
	assert.JSONEq(t, `{"language":"en"}`, rec.Body.String())
}

func TestJSON_WithoutRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusOK, nil)

	assert.Empty(t, rec.Header().Get("X-Request-Id"))
	assert.Zero(t, rec.Body.Len())
}

func TestNoContent(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodPost, "/v1/offline/messages")

	response.NoContent(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestBadRequest_IncludesFieldErrors(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodGet, "/v1/air-quality")

	response.BadRequest(rec, req, "invalid coordinates", []models.FieldError{
		{Field: "lat", Message: "must be between -90 and 90"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	problem := decodeProblem(t, rec)
	assert.Equal(t, models.ProblemTypeValidation, problem.Type)
	assert.Equal(t, "/v1/air-quality", problem.Instance)
	assert.Equal(t, middleware.GetRequestID(req.Context()), problem.TraceID)
	require.Len(t, problem.Errors, 1)
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, *http.Request, string)
		status int
		typ    string
	}{
		{"not found", response.NotFound, http.StatusNotFound, models.ProblemTypeNotFound},
		{"conflict", response.Conflict, http.StatusConflict, models.ProblemTypeConflict},
		{"internal", response.InternalError, http.StatusInternalServerError, models.ProblemTypeInternal},
		{"unavailable", response.ServiceUnavailable, http.StatusServiceUnavailable, models.ProblemTypeUnavailable},
		{"offline", response.Offline, http.StatusGatewayTimeout, models.ProblemTypeOffline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := requestWithContext(t, http.MethodGet, "/v1/dashboard")

			tt.write(rec, req, "detail")

			assert.Equal(t, tt.status, rec.Code)
			problem := decodeProblem(t, rec)
			assert.Equal(t, tt.typ, problem.Type)
			assert.Equal(t, tt.status, problem.Status)
			assert.Equal(t, "detail", problem.Detail)
			assert.Equal(t, "/v1/dashboard", problem.Instance)
		})
	}
}

func TestRequestIDPropagation(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("X-Request-Id", "client-request-123")

	var processedReq *http.Request
	handler := middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		processedReq = r
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	response.JSON(rec, processedReq, http.StatusOK, map[string]string{"status": "ok"})

	assert.Equal(t, "client-request-123", rec.Header().Get("X-Request-Id"))
}
