package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the receipt workflow. All
// methods are nil-safe so tests and the CLI can run without a registry.
type Metrics struct {
	InboundEvents    *prometheus.CounterVec
	OutboundSends    *prometheus.CounterVec
	StatusCallbacks  *prometheus.CounterVec
	AckTransitions   *prometheus.CounterVec
	BroadcastRows    *prometheus.CounterVec
	SessionConflicts prometheus.Counter
	TurnDuration     prometheus.Histogram
	DocstoreDuration prometheus.Histogram
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		InboundEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recibos_inbound_events_total",
			Help: "Inbound webhook events by kind (text, button, empty)",
		}, []string{"kind"}),
		OutboundSends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recibos_outbound_sends_total",
			Help: "Outbound messages by kind (template, document) and result",
		}, []string{"kind", "result"}),
		StatusCallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recibos_status_callbacks_total",
			Help: "Delivery status callbacks by status",
		}, []string{"status"}),
		AckTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recibos_ack_transitions_total",
			Help: "Acknowledgment transitions by action and resulting state",
		}, []string{"action", "state"}),
		BroadcastRows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recibos_broadcast_rows_total",
			Help: "Broadcast registry rows by outcome",
		}, []string{"outcome"}),
		SessionConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "recibos_session_conflicts_total",
			Help: "Conversation session saves rejected by a concurrent writer",
		}),
		TurnDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "recibos_turn_duration_seconds",
			Help:    "Duration of one inbound conversation turn",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		DocstoreDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "recibos_docstore_lookup_duration_seconds",
			Help:    "Duration of document store enumerations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncInbound(kind string) {
	if m == nil {
		return
	}
	m.InboundEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncSend(kind, result string) {
	if m == nil {
		return
	}
	m.OutboundSends.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) IncStatus(status string) {
	if m == nil {
		return
	}
	m.StatusCallbacks.WithLabelValues(status).Inc()
}

func (m *Metrics) IncTransition(action, state string) {
	if m == nil {
		return
	}
	m.AckTransitions.WithLabelValues(action, state).Inc()
}

func (m *Metrics) IncBroadcast(outcome string) {
	if m == nil {
		return
	}
	m.BroadcastRows.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncSessionConflict() {
	if m == nil {
		return
	}
	m.SessionConflicts.Inc()
}

// ObserveTurn records a turn duration. Call with time.Now() at the start.
func (m *Metrics) ObserveTurn(start time.Time) {
	if m == nil {
		return
	}
	m.TurnDuration.Observe(time.Since(start).Seconds())
}

// ObserveDocstore records a document store lookup duration.
func (m *Metrics) ObserveDocstore(start time.Time) {
	if m == nil {
		return
	}
	m.DocstoreDuration.Observe(time.Since(start).Seconds())
}
