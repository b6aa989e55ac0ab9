package metrics

import "github.com/prometheus/client_golang/prometheus"

// Processing outcomes shared by the webhook and totals counters.
const (
	StatusSuccess   = "success"
	StatusDuplicate = "duplicate"
	StatusError     = "error"
	StatusIgnored   = "ignored"
)

// EventMetrics counts processed inbound events by type and outcome.
type EventMetrics struct {
	processed *prometheus.CounterVec
}

// NewWebhookMetrics registers webhooks_processed_total.
func NewWebhookMetrics(reg prometheus.Registerer) *EventMetrics {
	return newEventMetrics(reg, "webhooks_processed_total", "Payment webhooks handled by outcome.")
}

// NewTotalsMetrics registers totals_events_processed_total.
func NewTotalsMetrics(reg prometheus.Registerer) *EventMetrics {
	return newEventMetrics(reg, "totals_events_processed_total", "Bus events handled by the totals consumer by outcome.")
}

func newEventMetrics(reg prometheus.Registerer, name, help string) *EventMetrics {
	if reg == nil {
		return &EventMetrics{}
	}
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: help,
	}, []string{"event_type", "status"})
	reg.MustRegister(processed)
	return &EventMetrics{processed: processed}
}

func (m *EventMetrics) Inc(eventType, status string) {
	if m == nil || m.processed == nil {
		return
	}
	m.processed.WithLabelValues(normalizeLabel(eventType), normalizeLabel(status)).Inc()
}
