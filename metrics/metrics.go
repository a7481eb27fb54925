package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// RequestCounter tracks lock requests issued by this peer.
	RequestCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lamport_requests_total",
		Help: "Total number of lock requests issued",
	})
	// GrantCounter tracks lock grants obtained by this peer.
	GrantCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lamport_grants_total",
		Help: "Total number of lock grants obtained",
	})
	// ReleaseCounter tracks release events observed, own releases included.
	ReleaseCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lamport_releases_total",
		Help: "Total number of release events observed",
	})
	// AckCounter tracks acknowledgments sent to other peers.
	AckCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lamport_acks_sent_total",
		Help: "Total number of acknowledgments sent",
	})
	// AckObservedCounter tracks acknowledgments accepted for the local
	// peer's current request. Stale rounds and other peers' acks do not
	// count.
	AckObservedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lamport_acks_observed_total",
		Help: "Total number of acknowledgments accepted for the current request",
	})
	// SendFailureCounter tracks outbound messages the transport dropped.
	SendFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lamport_send_failures_total",
		Help: "Total number of outbound messages dropped on send failure",
	})
	// MalformedCounter tracks inbound lines dropped as unparseable.
	MalformedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lamport_malformed_lines_total",
		Help: "Total number of inbound lines dropped as malformed",
	})
	// QueueDepthGauge reports the number of pending requests in the queue.
	QueueDepthGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lamport_queue_depth",
		Help: "Current number of pending requests in the queue",
	})
	// StateGauge reports the lock state machine's current state.
	StateGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lamport_agent_state",
		Help: "Current lock state (0 idle, 1 requesting, 2 waiting, 3 granted, 4 releasing)",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterCoreMetrics registers the coordination metrics on the provided
// registry.
func RegisterCoreMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		RequestCounter,
		GrantCounter,
		ReleaseCounter,
		AckCounter,
		AckObservedCounter,
		SendFailureCounter,
		MalformedCounter,
		QueueDepthGauge,
		StateGauge,
	)
}
