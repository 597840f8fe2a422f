package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "salon"

// MessagingMetrics exposes counters/histograms for the SMS transport.
type MessagingMetrics struct {
	inboundTotal   *prometheus.CounterVec
	outboundTotal  *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewMessagingMetrics(reg prometheus.Registerer) *MessagingMetrics {
	m := &MessagingMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound Twilio SMS webhooks",
		}, []string{"status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound SMS replies",
		}, []string{"mode", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of Twilio webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.webhookLatency)
	return m
}

func (m *MessagingMetrics) ObserveInbound(status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(status).Inc()
}

// InboundCounter returns the webhook counter for status.
func (m *MessagingMetrics) InboundCounter(status string) prometheus.Counter {
	return m.inboundTotal.WithLabelValues(status)
}

func (m *MessagingMetrics) ObserveOutbound(mode, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(mode, status).Inc()
}

func (m *MessagingMetrics) ObserveWebhookLatency(mode string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(mode).Observe(seconds)
}

// ConversationMetrics tracks the booking state machine.
type ConversationMetrics struct {
	messagesTotal      *prometheus.CounterVec
	transitionsTotal   *prometheus.CounterVec
	bookingsTotal      *prometheus.CounterVec
	collaboratorErrors *prometheus.CounterVec
	phrasingTotal      *prometheus.CounterVec
	handleLatency      prometheus.Histogram
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "messages_total",
			Help:      "Inbound messages by interpreted intent",
		}, []string{"intent"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "transitions_total",
			Help:      "Conversation step transitions",
		}, []string{"from", "to"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		collaboratorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "collaborator_errors_total",
			Help:      "Failed or timed out collaborator calls",
		}, []string{"operation"}),
		phrasingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "phrasing_total",
			Help:      "LLM rephrasing attempts by outcome",
		}, []string{"outcome"}),
		handleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "handle_latency_seconds",
			Help:      "Time spent handling one inbound message",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.transitionsTotal, m.bookingsTotal, m.collaboratorErrors, m.phrasingTotal, m.handleLatency)
	return m
}

func (m *ConversationMetrics) ObserveMessage(intent string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(intent).Inc()
}

func (m *ConversationMetrics) ObserveTransition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *ConversationMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *ConversationMetrics) ObserveCollaboratorError(operation string) {
	if m == nil {
		return
	}
	m.collaboratorErrors.WithLabelValues(operation).Inc()
}

func (m *ConversationMetrics) ObservePhrasing(outcome string) {
	if m == nil {
		return
	}
	m.phrasingTotal.WithLabelValues(outcome).Inc()
}

func (m *ConversationMetrics) ObserveHandleLatency(seconds float64) {
	if m == nil {
		return
	}
	m.handleLatency.Observe(seconds)
}
