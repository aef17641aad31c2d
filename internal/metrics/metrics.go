package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "weather_widget"

// Outcome labels for RendersTotal.
const (
	OutcomeSuccess      = "success"
	OutcomeMountMissing = "mount_missing"
	OutcomeFetchError   = "fetch_error"
	OutcomeDecodeError  = "decode_error"
	OutcomeRenderError  = "render_error"
	OutcomePanic        = "panic"
)

// Metrics holds the Prometheus collectors for the widget and its HTTP surface.
type Metrics struct {
	RendersTotal        *prometheus.CounterVec   // labels: outcome
	FetchDuration       prometheus.Histogram     // upstream weather API latency
	HTTPRequestsTotal   *prometheus.CounterVec   // labels: method, path, status_class
	HTTPRequestDuration *prometheus.HistogramVec // labels: method, path

	registry *prometheus.Registry
}

// New builds the collectors on a private registry so several instances can coexist in tests.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RendersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      "Weather widget runs by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Latency of the upstream weather API call.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests received.",
		}, []string{"method", "path", "status_class"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request latencies.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		registry: reg,
	}

	reg.MustRegister(
		m.RendersTotal,
		m.FetchDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRender counts one widget run.
func (m *Metrics) ObserveRender(outcome string) {
	if m == nil {
		return
	}
	m.RendersTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware instruments every request passing through next. Paths are
// labelled by route pattern so per-document URLs do not explode cardinality.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, statusClass(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}
