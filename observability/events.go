package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	published *prometheus.CounterVec
	dropped   *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking the committed event stream.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			published: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "colend",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Count of committed events segmented by event type.",
			}, []string{"type"}),
			dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "colend",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Count of events dropped by slow consumers segmented by sink.",
			}, []string{"sink"}),
		}
		prometheus.MustRegister(eventRegistry.published, eventRegistry.dropped)
	})
	return eventRegistry
}

// RecordPublished increments the publish counter for the supplied event type.
func (m *eventMetrics) RecordPublished(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.published.WithLabelValues(normalized).Inc()
}

// RecordDropped increments the drop counter for the supplied sink label.
func (m *eventMetrics) RecordDropped(sink string) {
	if m == nil {
		return
	}
	if sink = strings.TrimSpace(sink); sink == "" {
		sink = "unknown"
	}
	m.dropped.WithLabelValues(sink).Inc()
}
