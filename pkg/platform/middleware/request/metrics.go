package request

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the HTTP-level histogram. Domain counters live in
// internal/platform/metrics.
type Metrics struct {
	latency *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		latency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zkcred_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern, method and status code.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"route", "method", "code"}),
	}
}

func (m *Metrics) observe(r *http.Request, status int, seconds float64) {
	m.latency.WithLabelValues(routePattern(r), r.Method, strconv.Itoa(status)).Observe(seconds)
}

// routePattern is the matched chi pattern, so claim and session ids never
// become label values.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
