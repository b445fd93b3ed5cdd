package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons for inbound messages that produce no broadcast.
const (
	ReasonMalformed   = "malformed"
	ReasonUnknown     = "unknown"
	ReasonNoop        = "noop"
	ReasonRateLimited = "rate_limited"
	ReasonNotMember   = "not_member"
)

// Metrics holds the relay's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	members       prometheus.Gauge
	historyLength prometheus.Gauge
	eventsTotal   *prometheus.CounterVec
	messagesSent  prometheus.Counter
	sendFailures  prometheus.Counter
	dropped       *prometheus.CounterVec
}

// New registers the relay collectors with reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		members: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "members",
			Help:      "Number of connections currently joined to the hub",
		}),

		historyLength: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_length",
			Help:      "Number of durable events in the session history",
		}),

		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of accepted events by type",
		}, []string{"type"}),

		messagesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Total number of messages queued to connections",
		}),

		sendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Total number of sends that failed and dropped the connection",
		}),

		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_messages_total",
			Help:      "Total number of inbound messages ignored, by reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) SetMembers(n int) {
	if m == nil {
		return
	}
	m.members.Set(float64(n))
}

func (m *Metrics) SetHistoryLength(n int) {
	if m == nil {
		return
	}
	m.historyLength.Set(float64(n))
}

func (m *Metrics) EventAccepted(eventType string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(eventType).Inc()
}

func (m *Metrics) MessageSent() {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
}

func (m *Metrics) SendFailed() {
	if m == nil {
		return
	}
	m.sendFailures.Inc()
}

func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}
