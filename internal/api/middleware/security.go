package middleware

import (
	"net/http"

	"github.com/kilamate/kilamate/internal/api/models"
)

// SecurityPolicy is the set of per-surface security headers.
type SecurityPolicy struct {
	ContentSecurityPolicy string
	PermissionsPolicy     string
	FrameOptions          string
}

var (
	// APIPolicy locks JSON endpoints down completely.
	APIPolicy = SecurityPolicy{
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		PermissionsPolicy:     "geolocation=(), camera=(), microphone=()",
		FrameOptions:          "DENY",
	}

	// ShellPolicy applies to the app shell. The dashboard asks for the
	// browser position and talks to the proxied weather API on its own origin.
	ShellPolicy = SecurityPolicy{
		ContentSecurityPolicy: "default-src 'self'; img-src 'self' https://openweathermap.org data:; " +
			"style-src 'self' 'unsafe-inline'; connect-src 'self'; frame-ancestors 'none'",
		PermissionsPolicy: "geolocation=(self), camera=(), microphone=()",
		FrameOptions:      "DENY",
	}
)

// SecurityHeaders adds the APIPolicy headers to all HTTP responses.
func SecurityHeaders(next http.Handler) http.Handler {
	return Secure(APIPolicy)(next)
}

// Secure returns a middleware that sets the standard security headers with
// the surface-specific values from policy.
func Secure(policy SecurityPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", policy.FrameOptions)
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			h.Set("Content-Security-Policy", policy.ContentSecurityPolicy)
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", policy.PermissionsPolicy)

			next.ServeHTTP(w, r)
		})
	}
}

// RequireTLS returns a middleware that rejects requests a load balancer
// forwarded over plain HTTP. Requests without X-Forwarded-Proto are direct
// connections and pass.
func RequireTLS(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			proto := r.Header.Get("X-Forwarded-Proto")
			if proto != "" && proto != "https" {
				problem := models.NewProblem(
					models.ProblemTypeTLSRequired,
					"TLS required",
					http.StatusForbidden,
					GetRequestID(r.Context()),
				)
				problem.Detail = "This endpoint requires HTTPS"
				problem.Instance = r.URL.Path
				problem.Write(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
