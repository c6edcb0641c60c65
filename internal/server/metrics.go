package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dativo-io/piiredact/internal/classifier"
)

// Metrics groups the Prometheus instruments exposed on /metrics. Each
// Metrics owns its registry, so several servers can coexist in one process.
type Metrics struct {
	registry        *prometheus.Registry
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Redactions      *prometheus.CounterVec
	Units           prometheus.Counter
}

// NewMetrics creates the instruments under namespace.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"route"}),
		Redactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redactions_total",
			Help:      "Redactions applied through the API by category and sensitivity tier.",
		}, []string{"category", "sensitivity"}),
		Units: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redacted_units_total",
			Help:      "Text units processed by the redact endpoint.",
		}),
	}
}

// ObserveRedactions adds the stats of units processed text units to the
// redaction counters. registry supplies each category's tier.
func (m *Metrics) ObserveRedactions(registry *classifier.Registry, stats classifier.Stats, units int) {
	m.Units.Add(float64(units))
	for _, c := range stats.CategoriesInOrder() {
		tier := "unknown"
		if def, ok := registry.Get(c); ok {
			tier = string(def.Sensitivity)
		}
		m.Redactions.WithLabelValues(string(c), tier).Add(float64(stats.ByCategory[c]))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Unmatched paths share one label to keep cardinality bounded.
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.Requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
