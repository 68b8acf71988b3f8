package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics records request counts and latency per route pattern.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewHTTPMetrics registers the HTTP collectors on reg. A nil registerer yields a
// no-op recorder.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		return &HTTPMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route and method.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"route", "method"})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "HTTP requests currently being served.",
	})
	reg.MustRegister(requests, duration, inFlight)
	return &HTTPMetrics{requests: requests, duration: duration, inFlight: inFlight}
}

// Start marks a request as in flight and returns the func that records its outcome.
func (h *HTTPMetrics) Start() func(route, method string, status int) {
	if h == nil || h.requests == nil {
		return func(string, string, int) {}
	}
	h.inFlight.Inc()
	started := time.Now()
	return func(route, method string, status int) {
		h.inFlight.Dec()
		route = normalizeLabel(route)
		h.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
		h.duration.WithLabelValues(route, method).Observe(time.Since(started).Seconds())
	}
}
