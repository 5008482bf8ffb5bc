// Package simmetrics defines the Prometheus instruments the simulator
// exposes for operational visibility. Mirrors tcp-info/metrics: a handful
// of package-level promauto instruments, labeled where there's a natural
// low-cardinality dimension (policy kind, connection state).
package simmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RoundDurationHistogram tracks wall-clock time spent executing a
	// single scheduler round (prepare -> execute-events -> collect-info).
	RoundDurationHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "netsim_round_duration_seconds",
			Help:    "wall-clock duration of one scheduler round",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
	)

	// RoundWindowHistogram tracks the simulated-time width of each round
	// (window_end - window_start), i.e. how much look-ahead safe_delta bought.
	RoundWindowHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "netsim_round_window_nanoseconds",
			Help:    "simulated-time width of a scheduler round",
			Buckets: prometheus.ExponentialBuckets(1000, 2, 20),
		},
	)

	// EventsPopped counts events popped per policy kind.
	EventsPopped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsim_events_popped_total",
			Help: "number of events popped from scheduler queues",
		},
		[]string{"policy"},
	)

	// CausalityClamps counts cross-thread pushes whose delivery time was
	// raised to round_end by the causality rule.
	CausalityClamps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netsim_causality_clamps_total",
			Help: "cross-thread pushes whose time was clamped to round_end",
		},
	)

	// RetransmitsTotal counts packets retransmitted per trigger.
	RetransmitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsim_tcp_retransmits_total",
			Help: "segments retransmitted, by trigger",
		},
		[]string{"trigger"}, // "fast" or "rto"
	)

	// CwndGauge tracks current congestion window size, labeled by connection id.
	CwndGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "netsim_tcp_cwnd_bytes",
			Help: "current congestion window",
		},
		[]string{"conn"},
	)

	// StateTransitions counts TCP state machine transitions.
	StateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsim_tcp_state_transitions_total",
			Help: "TCP connection state transitions",
		},
		[]string{"from", "to"},
	)
)
