package telemetry

import "github.com/prometheus/client_golang/prometheus"

const liveroomNamespace string = "liveroom"

var (
	promParticipantsTotal   prometheus.Gauge
	promNegotiationsTotal   prometheus.Counter
	promChatMessagesTotal   prometheus.Counter
	ServiceOperationCounter *prometheus.CounterVec
)

func init() {
	promParticipantsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: liveroomNamespace,
		Subsystem: "room",
		Name:      "participants_total",
	})

	promNegotiationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: liveroomNamespace,
		Subsystem: "mesh",
		Name:      "negotiations_total",
	})

	promChatMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: liveroomNamespace,
		Subsystem: "chat",
		Name:      "messages_total",
	})

	ServiceOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: liveroomNamespace,
			Subsystem: "node",
			Name:      "service_operation",
		},
		[]string{"type", "status", "error_type"},
	)

	prometheus.MustRegister(promParticipantsTotal)
	prometheus.MustRegister(promNegotiationsTotal)
	prometheus.MustRegister(promChatMessagesTotal)
	prometheus.MustRegister(ServiceOperationCounter)
}

func ParticipantJoined() {
	promParticipantsTotal.Inc()
}

func ParticipantLeft() {
	promParticipantsTotal.Dec()
}

func NegotiationStarted() {
	promNegotiationsTotal.Inc()
}

func ChatMessageRelayed() {
	promChatMessagesTotal.Inc()
}
