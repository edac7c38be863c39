// Package observability provides the Prometheus collectors shared by the
// settlement service. Each instance owns its own registry so tests can
// construct servers without colliding on the global default.
package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SettlementMetrics wraps collectors tracking settlement engine health.
type SettlementMetrics struct {
	registry        *prometheus.Registry
	providerLatency *prometheus.HistogramVec
	withdrawals     *prometheus.CounterVec
	callbacks       *prometheus.CounterVec
	requests        *prometheus.CounterVec
	durations       *prometheus.HistogramVec
}

// NewSettlementMetrics constructs a metrics registry for one service instance.
func NewSettlementMetrics() *SettlementMetrics {
	registry := prometheus.NewRegistry()
	m := &SettlementMetrics{
		registry: registry,
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "settlement",
			Subsystem: "provider",
			Name:      "transfer_latency_seconds",
			Help:      "Latency distribution for provider transfer initiations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "outcome"}),
		withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "withdrawals_total",
			Help:      "Count of withdrawal requests segmented by outcome.",
		}, []string{"outcome"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "callbacks_total",
			Help:      "Count of provider callbacks segmented by kind and outcome.",
		}, []string{"kind", "outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed by the service.",
		}, []string{"route", "method", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "settlement",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	registry.MustRegister(m.providerLatency, m.withdrawals, m.callbacks, m.requests, m.durations)
	return m
}

// Handler exposes the registry for the /metrics endpoint.
func (m *SettlementMetrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveProvider records the latency and outcome of one transfer initiation.
func (m *SettlementMetrics) ObserveProvider(provider string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "accepted"
	if err != nil {
		outcome = "error"
	}
	m.providerLatency.WithLabelValues(labelOrUnknown(provider), outcome).Observe(d.Seconds())
}

// RecordWithdrawal counts one withdrawal request outcome.
func (m *SettlementMetrics) RecordWithdrawal(outcome string) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(labelOrUnknown(outcome)).Inc()
}

// RecordCallback counts one provider callback by kind and outcome.
func (m *SettlementMetrics) RecordCallback(kind, outcome string) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(labelOrUnknown(kind), labelOrUnknown(outcome)).Inc()
}

// Middleware instruments HTTP handlers with request counts and durations.
func (m *SettlementMetrics) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			m.requests.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
			m.durations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func labelOrUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return "unknown"
	}
	return v
}
