package middleware

import (
	"net/http"

	"github.com/bistrohq/bistro-backend/pkg/metrics"
)

// Metrics records request counts and latency labelled by chi route pattern so
// ids in the path do not explode label cardinality.
func Metrics(m *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			done := m.Start()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			route := ""
			if pattern := routePattern(r); pattern != r.URL.Path {
				route = pattern
			}
			done(route, r.Method, rec.statusCode())
		})
	}
}
