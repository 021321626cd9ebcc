package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// unmatchedRoute labels requests no API route claimed, such as app shell
// assets served by the offline gateway.
const unmatchedRoute = "unmatched"

// routePattern returns the chi route pattern that handled r, e.g.
// "/v1/dashboard". It is only complete after the handler ran.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}

// routeLabel is routePattern with a fixed fallback so metric label
// cardinality stays bounded.
func routeLabel(r *http.Request) string {
	if p := routePattern(r); p != "" && p != "/*" {
		return p
	}
	return unmatchedRoute
}
