package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/kilamate/kilamate/internal/api/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// Requests per window
	RequestLimit int
	// Window duration
	WindowLength time.Duration
}

// Default rate limit configurations.
var (
	// ExpensiveRateLimit applies to endpoints that fan out to several
	// upstream calls (30 req/min).
	ExpensiveRateLimit = RateLimitConfig{
		RequestLimit: 30,
		WindowLength: time.Minute,
	}

	// StandardRateLimit applies to standard endpoints (100 req/min).
	StandardRateLimit = RateLimitConfig{
		RequestLimit: 100,
		WindowLength: time.Minute,
	}
)

// PerMinute returns a one-minute window allowing n requests. Non-positive n
// falls back to StandardRateLimit.
func PerMinute(n int) RateLimitConfig {
	if n <= 0 {
		return StandardRateLimit
	}
	return RateLimitConfig{RequestLimit: n, WindowLength: time.Minute}
}

// RateLimitByIP creates a rate limiter middleware using client IP address.
// Uses X-Forwarded-For header if present (extracted by chi's RealIP middleware).
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(rateLimitExceededHandler(cfg.WindowLength)),
	)
}

// rateLimitExceededHandler writes an RFC7807 Problem response when rate limit is exceeded.
func rateLimitExceededHandler(window time.Duration) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(window / time.Second))
	return func(w http.ResponseWriter, r *http.Request) {
		problem := models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.")
		problem.Instance = r.URL.Path

		// httprate doesn't expose the exact reset time; the full window is a safe upper bound.
		w.Header().Set("Retry-After", retryAfter)

		problem.Write(w)
	}
}
