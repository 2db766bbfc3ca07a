// Package metrics exposes Prometheus instrumentation for policy evaluation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "policyrouter"

// Reload results.
const (
	ReloadSuccess = "success"
	ReloadFailure = "failure"
)

// Metrics holds all collectors, registered on a private registry.
type Metrics struct {
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	policiesLoaded     prometheus.Gauge
	policyWarnings     prometheus.Gauge
	reloadsTotal       *prometheus.CounterVec
	lastReload         prometheus.Gauge
	rateLimitHits      *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	registry           *prometheus.Registry
}

// New creates a Metrics instance. An empty namespace uses DefaultNamespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.evaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Total number of event evaluations by transport and outcome",
		},
		[]string{"transport", "outcome"},
	)

	m.evaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent projecting and matching one event",
			Buckets: []float64{
				.00001, .000025, .00005, .0001, .00025,
				.0005, .001, .0025, .005, .01,
			},
		},
		[]string{"transport"},
	)

	m.policiesLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "policies_loaded",
		Help:      "Number of policies in the active policy set",
	})

	m.policyWarnings = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "policy_warnings",
		Help:      "Number of policies with unusable rule expressions in the active set",
	})

	m.reloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_reloads_total",
			Help:      "Total number of policy set reloads by result",
		},
		[]string{"result"},
	)

	m.lastReload = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "policy_last_reload_timestamp_seconds",
		Help:      "Unix time of the last successful policy set reload",
	})

	m.rateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total number of requests rejected by the rate limiter",
		},
		[]string{"transport"},
	)

	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	m.registry.MustRegister(
		m.evaluationsTotal,
		m.evaluationDuration,
		m.policiesLoaded,
		m.policyWarnings,
		m.reloadsTotal,
		m.lastReload,
		m.rateLimitHits,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Pre-populate so the series exist before the first reload.
	m.reloadsTotal.WithLabelValues(ReloadSuccess)
	m.reloadsTotal.WithLabelValues(ReloadFailure)

	return m
}

// ObserveEvaluation records one evaluation.
func (m *Metrics) ObserveEvaluation(transport, outcome string, d time.Duration) {
	m.evaluationsTotal.WithLabelValues(transport, outcome).Inc()
	m.evaluationDuration.WithLabelValues(transport).Observe(d.Seconds())
}

// ObserveReload records a reload attempt. policies and warnings are ignored
// on failure since the previous set stays active.
func (m *Metrics) ObserveReload(err error, policies, warnings int) {
	if err != nil {
		m.reloadsTotal.WithLabelValues(ReloadFailure).Inc()
		return
	}
	m.reloadsTotal.WithLabelValues(ReloadSuccess).Inc()
	m.policiesLoaded.Set(float64(policies))
	m.policyWarnings.Set(float64(warnings))
	m.lastReload.SetToCurrentTime()
}

// RecordRateLimitHit records a rejected request.
func (m *Metrics) RecordRateLimitHit(transport string) {
	m.rateLimitHits.WithLabelValues(transport).Inc()
}

// RecordHTTPRequest records a completed HTTP request. route must be the
// registered pattern, not the raw path.
func (m *Metrics) RecordHTTPRequest(method, route string, status int) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
