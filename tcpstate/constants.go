package tcpstate

// defaultMSS is the maximum segment size used when nothing else has been
// negotiated: 1500-byte Ethernet MTU minus a 20-byte IPv4 header and a
// 32-byte TCP header (20-byte base plus room for options), matching the
// commonly-seen 1448-byte MSS on a loopback-free path.
const defaultMSS uint32 = 1448

const pmtu uint32 = defaultMSS + 52

// Delayed-ack tuning defaults, overridable per connection via
// WithDelayedAck.
const (
	delayedAckQuick   = 1 * msInNanos
	delayedAckSlow    = 5 * msInNanos
	quickAckThreshold = 1000
)

const msInNanos = 1_000_000

// timeWaitDuration is how long a connection lingers in TIME_WAIT before
// its final teardown, loosely standing in for 2*MSL.
const timeWaitDuration = 4000 * msInNanos

// Retransmission timer bounds (RFC 6298 §2.4): RTO is clamped to
// [rtoMin, rtoMax] regardless of the computed sample, and starts at
// rtoInitial before any RTT sample exists (RFC 6298 §2.1 recommends 1s).
const (
	rtoInitialMs = 1000.0
	rtoMinMs     = 200.0
	rtoMaxMs     = 60_000.0
)

// Buffer autotuning bounds. minBufSize/maxBufSize clamp the computed
// initial size in both directions; loopback connections (src == dst
// host) skip the RTT*bandwidth formula entirely and get maxBufSize in
// both directions, since there's no meaningful bandwidth-delay product
// to size for.
const (
	minBufSize      = 4096
	maxBufSize      = 4 * 1024 * 1024
	loopbackBufSize = maxBufSize
)

// defaultBacklog is the pending-accept queue depth a listening socket
// gets when Listen is called with backlog <= 0.
const defaultBacklog = 16
