package middleware

import (
	"net/http"
	"time"

	"github.com/sakif/campus-clubs/internal/metrics"
)

// Instrument records every request's status and latency, labelled by route
// pattern rather than raw path.
func Instrument(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrap(w)

			next.ServeHTTP(wrapped, r)

			m.ObserveRequest(r.Method, routePattern(r), wrapped.statusCode, time.Since(start))
		})
	}
}
