package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gymdesk"

// WebhookMetrics counts provider deliveries by what happened to them.
type WebhookMetrics struct {
	events              *prometheus.CounterVec
	rejections          *prometheus.CounterVec
	enrichmentFailures  prometheus.Counter
	duplicateDeliveries prometheus.Counter
}

// NewWebhookMetrics registers the webhook collectors on reg. A nil registerer
// yields a no-op recorder.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	m := &WebhookMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Accepted webhook events by type and reconcile outcome.",
		}, []string{"event_type", "outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_rejections_total",
			Help:      "Webhook deliveries rejected before processing.",
		}, []string{"reason"}),
		enrichmentFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_enrichment_failures_total",
			Help:      "Provider lookups for period dates that failed or timed out.",
		}),
		duplicateDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_duplicate_deliveries_total",
			Help:      "Deliveries skipped because the event id was already processed.",
		}),
	}
	reg.MustRegister(m.events, m.rejections, m.enrichmentFailures, m.duplicateDeliveries)
	return m
}

// IncEvent records an accepted event.
func (m *WebhookMetrics) IncEvent(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// IncRejection records a rejected delivery.
func (m *WebhookMetrics) IncRejection(reason string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *WebhookMetrics) IncEnrichmentFailure() {
	if m == nil || m.enrichmentFailures == nil {
		return
	}
	m.enrichmentFailures.Inc()
}

func (m *WebhookMetrics) IncDuplicate() {
	if m == nil || m.duplicateDeliveries == nil {
		return
	}
	m.duplicateDeliveries.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
