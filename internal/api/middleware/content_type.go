package middleware

import (
	"net/http"
	"strings"

	"github.com/kilamate/kilamate/internal/api/models"
)

// ContentTypeJSON sets the Content-Type header to application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only set if not already set (allows handlers to override)
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireJSON checks that the request Content-Type is application/json for
// POST, PUT, and PATCH requests.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			contentType := r.Header.Get("Content-Type")
			if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
				problem := models.NewProblem(
					models.ProblemTypeValidation,
					"Unsupported media type",
					http.StatusUnsupportedMediaType,
					GetRequestID(r.Context()),
				)
				problem.Detail = "Content-Type must be application/json"
				problem.Instance = r.URL.Path
				problem.Write(w)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
