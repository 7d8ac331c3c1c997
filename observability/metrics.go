package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	commerceMetricsOnce sync.Once
	commerceRegistry    *CommerceMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecom",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecom",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ecom",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecom",
				Subsystem: "module",
				Name:      "throttles_total",
				Help:      "Count of module requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" so dashboards
// and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// CommerceMetrics tracks state transitions and custody audits.
type CommerceMetrics struct {
	transitions     *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	vaultViolations prometheus.Counter
	audits          *prometheus.CounterVec
	auditedEscrows  prometheus.Gauge
}

// Commerce returns the commerce metrics registry.
func Commerce() *CommerceMetrics {
	commerceMetricsOnce.Do(func() {
		commerceRegistry = &CommerceMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecom",
				Subsystem: "commerce",
				Name:      "transitions_total",
				Help:      "State transitions segmented by operation and result kind.",
			}, []string{"operation", "result"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ecom",
				Subsystem: "commerce",
				Name:      "transition_duration_seconds",
				Help:      "Time spent applying and committing a transition.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			vaultViolations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ecom",
				Subsystem: "commerce",
				Name:      "vault_violations_total",
				Help:      "Vault balances found inconsistent with their escrow.",
			}),
			audits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecom",
				Subsystem: "commerce",
				Name:      "vault_audits_total",
				Help:      "Completed vault audit sweeps by outcome.",
			}, []string{"outcome"}),
			auditedEscrows: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "ecom",
				Subsystem: "commerce",
				Name:      "audited_escrows",
				Help:      "Escrows inspected by the most recent audit sweep.",
			}),
		}
		prometheus.MustRegister(
			commerceRegistry.transitions,
			commerceRegistry.duration,
			commerceRegistry.vaultViolations,
			commerceRegistry.audits,
			commerceRegistry.auditedEscrows,
		)
	})
	return commerceRegistry
}

// ObserveTransition records one operation. result is "ok" or an error kind.
func (m *CommerceMetrics) ObserveTransition(operation, result string, duration time.Duration) {
	if m == nil {
		return
	}
	if result == "" {
		result = "ok"
	}
	m.transitions.WithLabelValues(operation, result).Inc()
	m.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordVaultViolation counts a consistency failure on a vault.
func (m *CommerceMetrics) RecordVaultViolation() {
	if m == nil {
		return
	}
	m.vaultViolations.Inc()
}

// RecordAudit records a finished audit sweep.
func (m *CommerceMetrics) RecordAudit(checked, violations int, err error) {
	if m == nil {
		return
	}
	outcome := "clean"
	switch {
	case err != nil:
		outcome = "error"
	case violations > 0:
		outcome = "violations"
	}
	m.audits.WithLabelValues(outcome).Inc()
	m.auditedEscrows.Set(float64(checked))
}
