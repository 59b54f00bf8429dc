// Package metrics exposes Prometheus collectors for provisioning and HTTP
// traffic on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gbp"

// Metrics holds every collector the service reports.
type Metrics struct {
	registry *prometheus.Registry

	Provisions          *prometheus.CounterVec
	ProvisionDuration   *prometheus.HistogramVec
	Generations         *prometheus.CounterVec
	GenerationDuration  prometheus.Histogram
	ClaimConflicts      prometheus.Counter
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Provisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provisions_total",
			Help:      "Provisioning requests by outcome source (client, ai_reuse, generated, error).",
		}, []string{"source"}),
		ProvisionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provision_duration_seconds",
			Help:      "End-to-end provisioning latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"source"}),
		Generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Image generation calls by status.",
		}, []string{"status"}),
		GenerationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Latency of generate plus download.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 90, 120},
		}),
		ClaimConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claim_conflicts_total",
			Help:      "Claims that found their selected asset already gone.",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status_code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.Provisions,
		m.ProvisionDuration,
		m.Generations,
		m.GenerationDuration,
		m.ClaimConflicts,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveProvision records one finished provisioning request.
func (m *Metrics) ObserveProvision(source string, d time.Duration) {
	m.Provisions.WithLabelValues(source).Inc()
	m.ProvisionDuration.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveGeneration records one generator call.
func (m *Metrics) ObserveGeneration(err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Generations.WithLabelValues(status).Inc()
	m.GenerationDuration.Observe(d.Seconds())
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
