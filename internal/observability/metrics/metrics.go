package metrics

import "github.com/prometheus/client_golang/prometheus"

// BotMetrics exposes counters/histograms for the WhatsApp dialogue and reminder flows.
type BotMetrics struct {
	inboundTotal    *prometheus.CounterVec
	transitionTotal *prometheus.CounterVec
	bookingTotal    *prometheus.CounterVec
	remindersTotal  *prometheus.CounterVec
	turnLatency     *prometheus.HistogramVec
}

func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	m := &BotMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hospital_bot",
			Subsystem: "webhook",
			Name:      "inbound_messages_total",
			Help:      "Total inbound WhatsApp messages by kind and outcome",
		}, []string{"kind", "status"}),
		transitionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hospital_bot",
			Subsystem: "dialogue",
			Name:      "transitions_total",
			Help:      "Session state transitions",
		}, []string{"from", "to"}),
		bookingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hospital_bot",
			Subsystem: "dialogue",
			Name:      "booking_attempts_total",
			Help:      "Booking commit attempts by outcome",
		}, []string{"outcome"}),
		remindersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hospital_bot",
			Subsystem: "reminder",
			Name:      "sent_total",
			Help:      "Reminders dispatched by kind and status",
		}, []string{"kind", "status"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hospital_bot",
			Subsystem: "dialogue",
			Name:      "turn_latency_seconds",
			Help:      "Time to process one inbound message",
			Buckets:   prometheus.DefBuckets,
		}, []string{"state"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.transitionTotal, m.bookingTotal, m.remindersTotal, m.turnLatency)
	return m
}

func (m *BotMetrics) ObserveInbound(kind, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(kind, status).Inc()
}

func (m *BotMetrics) ObserveTransition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.transitionTotal.WithLabelValues(from, to).Inc()
}

// ObserveBooking records one commit attempt: booked, conflict or error.
func (m *BotMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingTotal.WithLabelValues(outcome).Inc()
}

// ObserveReminder records one reminder: sent, failed or deferred.
func (m *BotMetrics) ObserveReminder(kind, status string) {
	if m == nil {
		return
	}
	m.remindersTotal.WithLabelValues(kind, status).Inc()
}

func (m *BotMetrics) ObserveTurnLatency(state string, seconds float64) {
	if m == nil {
		return
	}
	m.turnLatency.WithLabelValues(state).Observe(seconds)
}
