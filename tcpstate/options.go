package tcpstate

// Options holds the tuning knobs the distilled design flags as
// configurable-with-defaults rather than fixed constants: delayed-ack
// timing, the quick-ack threshold, RTO bounds, autotuning, and the
// congestion control scheme. Built with functional options, the same
// pattern schedpolicy.Option uses.
type Options struct {
	delayedAckQuick   int64
	delayedAckSlow    int64
	quickAckThreshold int
	rtoMinMs          float64
	rtoMaxMs          float64
	rtoInitialMs      float64
	autotuneEnabled   bool
	congestion        CongestionHooks
}

// Option configures a new Conn.
type Option func(*Options)

// WithDelayedAck overrides the delayed-ack schedule: quick and slow are
// nanosecond delays, applied for the first quickThreshold in-order data
// packets and every one after, respectively.
func WithDelayedAck(quick, slow int64, quickThreshold int) Option {
	return func(o *Options) {
		o.delayedAckQuick = quick
		o.delayedAckSlow = slow
		o.quickAckThreshold = quickThreshold
	}
}

// WithRTOBounds overrides the retransmission timer's clamps and initial
// value, all in milliseconds.
func WithRTOBounds(minMs, maxMs, initialMs float64) Option {
	return func(o *Options) {
		o.rtoMinMs = minMs
		o.rtoMaxMs = maxMs
		o.rtoInitialMs = initialMs
	}
}

// WithAutotune enables or disables send/receive buffer autotuning for
// the connection. Enabled by default.
func WithAutotune(enabled bool) Option {
	return func(o *Options) { o.autotuneEnabled = enabled }
}

// WithCongestionHooks overrides the congestion control scheme. Reno is
// used by default.
func WithCongestionHooks(h CongestionHooks) Option {
	return func(o *Options) { o.congestion = h }
}

func defaultOptions() Options {
	return Options{
		delayedAckQuick:   delayedAckQuick,
		delayedAckSlow:    delayedAckSlow,
		quickAckThreshold: quickAckThreshold,
		rtoMinMs:          rtoMinMs,
		rtoMaxMs:          rtoMaxMs,
		rtoInitialMs:      rtoInitialMs,
		autotuneEnabled:   true,
		congestion:        Reno{},
	}
}

func newOptions(opts []Option) Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
