package tcpstate

import (
	"github.com/m-lab/netsim/netid"
	"github.com/m-lab/netsim/simlog"
	"github.com/m-lab/netsim/topology"
	"github.com/m-lab/netsim/wire"
)

// Environment is everything a Conn needs from outside its own state: the
// simulated clock, the network it hands packets to, the timer facility a
// scheduler built on, and the topology oracle autotuning consults. A real
// engine implements this once per host; tests supply a fake. Keeping this
// narrow is what lets tcpstate stay ignorant of schedpolicy/roundbarrier —
// it only ever sees "now," "send this," and "call me back later."
type Environment interface {
	// Now returns the current simulated time, in nanoseconds.
	Now() int64
	// Oracle is the topology/latency service, consulted for autotuning.
	Oracle() topology.Oracle
	// Transmit hands a fully-formed packet to the network delivery layer.
	// The caller (flush, handshake, the retransmit timer) has already set
	// every header field; Transmit only moves bytes, it never mutates the
	// header.
	Transmit(hdr *wire.Header, payload []byte)
	// ScheduleTimer arranges for fn to run once, after delay nanoseconds
	// of simulated time have passed, on this connection's owning host.
	// There is no cancellation primitive; a timer that should no longer
	// fire is silenced by the desired-expiration marker pattern (see
	// retransmit.go), not by removing it from whatever queue holds it.
	ScheduleTimer(delay int64, fn func())
	// Logger is this connection's structured logging sink.
	Logger() *simlog.Logger
	// ResolveHost maps a peer's wire-level address to the host identity
	// the topology oracle understands, so a freshly spawned child
	// connection can look up its peer's bandwidth figures.
	ResolveHost(ip [4]byte) netid.HostID
}
