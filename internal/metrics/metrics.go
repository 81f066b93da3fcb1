// Package metrics holds the Prometheus collectors of the document service.
package metrics

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	uploads     *prometheus.CounterVec
	queries     *prometheus.CounterVec
	annotations *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pythagorean",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pythagorean",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pythagorean",
			Name:      "uploads_total",
			Help:      "Uploaded files by outcome.",
		}, []string{"outcome"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pythagorean",
			Name:      "queries_total",
			Help:      "Questions answered by link type and outcome.",
		}, []string{"link_type", "outcome"}),
		annotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pythagorean",
			Name:      "annotations_total",
			Help:      "Reactions and comments added.",
		}, []string{"kind"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "pythagorean",
		Name:      "goroutines",
		Help:      "Number of goroutines.",
	}, func() float64 { return float64(runtime.NumGoroutine()) })

	m.registry.MustRegister(
		m.requests, m.latency, m.uploads, m.queries, m.annotations,
		goroutines,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) Upload(ok bool) {
	m.uploads.WithLabelValues(outcome(ok)).Inc()
}

func (m *Metrics) Query(linkType string, ok bool) {
	if linkType == "" {
		linkType = "unknown"
	}
	m.queries.WithLabelValues(linkType, outcome(ok)).Inc()
}

func (m *Metrics) Annotation(kind string) {
	m.annotations.WithLabelValues(kind).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
