package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics tracks the signed event fanout pipeline.
type WebhookMetrics struct {
	deliveries *prometheus.CounterVec
	failures   *prometheus.CounterVec
	retries    *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	queueDepth prometheus.Gauge
}

var (
	webhookOnce     sync.Once
	webhookRegistry *WebhookMetrics
)

// Webhooks returns the lazily-initialised webhook metrics registry.
func Webhooks() *WebhookMetrics {
	webhookOnce.Do(func() {
		webhookRegistry = &WebhookMetrics{
			deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "colend_webhook_deliveries_total",
				Help: "Count of successful webhook deliveries by destination.",
			}, []string{"destination"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "colend_webhook_failures_total",
				Help: "Number of failed webhook delivery attempts by destination.",
			}, []string{"destination"}),
			retries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "colend_webhook_retries_total",
				Help: "Number of webhook delivery retries by destination.",
			}, []string{"destination"}),
			dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "colend_webhook_dropped_total",
				Help: "Events dropped after exhausting delivery attempts, by destination.",
			}, []string{"destination"}),
			queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "colend_webhook_queue_depth",
				Help: "Events currently buffered for delivery.",
			}),
		}
		prometheus.MustRegister(
			webhookRegistry.deliveries,
			webhookRegistry.failures,
			webhookRegistry.retries,
			webhookRegistry.dropped,
			webhookRegistry.queueDepth,
		)
	})
	return webhookRegistry
}

func destinationLabel(destination string) string {
	if destination == "" {
		return "unknown"
	}
	return destination
}

// IncDelivery counts one successful delivery.
func (m *WebhookMetrics) IncDelivery(destination string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(destinationLabel(destination)).Inc()
}

// IncFailure counts one failed delivery attempt.
func (m *WebhookMetrics) IncFailure(destination string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(destinationLabel(destination)).Inc()
}

// IncRetry counts one scheduled redelivery.
func (m *WebhookMetrics) IncRetry(destination string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(destinationLabel(destination)).Inc()
}

// IncDropped counts one event abandoned after exhausting attempts.
func (m *WebhookMetrics) IncDropped(destination string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(destinationLabel(destination)).Inc()
}

// SetQueueDepth records the current delivery backlog.
func (m *WebhookMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// InitDestination pre-creates the counter series for a destination so
// dashboards show zero instead of absent.
func (m *WebhookMetrics) InitDestination(destination string) {
	if m == nil {
		return
	}
	label := destinationLabel(destination)
	m.deliveries.WithLabelValues(label).Add(0)
	m.failures.WithLabelValues(label).Add(0)
	m.retries.WithLabelValues(label).Add(0)
	m.dropped.WithLabelValues(label).Add(0)
}
