package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	transfers *prometheus.CounterVec
	emitted   *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking structured node events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecom",
				Subsystem: "events",
				Name:      "transfers_total",
				Help:      "Count of native transfers segmented by reason.",
			}, []string{"reason"}),
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecom",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Committed events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.transfers, eventRegistry.emitted)
	})
	return eventRegistry
}

// RecordTransfer increments the transfer counter for the supplied reason.
func (m *eventMetrics) RecordTransfer(reason string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToLower(reason))
	if normalized == "" {
		normalized = "unknown"
	}
	m.transfers.WithLabelValues(normalized).Inc()
}

// RecordEvent counts a committed event.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.emitted.WithLabelValues(eventType).Inc()
}
