package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/agentoven/agentoven/control-plane/internal/metrics"
	"github.com/go-chi/chi/v5"
)

// Metrics returns middleware recording HTTP request counts and latency
// against m. Falls back to a no-op if m is nil.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			path := routePattern(r)
			m.RecordHTTPRequest(r.Method, path, strconv.Itoa(rw.statusCode), time.Since(start))
		})
	}
}

// routePattern returns the matched chi route pattern (e.g.
// "/{connectionID}/discover") rather than the literal path, so per-path
// cardinality stays bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
