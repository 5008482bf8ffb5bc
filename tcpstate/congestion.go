package tcpstate

// congState is the connection's congestion-recovery state, independent of
// the RFC 793 connection State.
type congState uint8

const (
	congOpen congState = iota
	congRecovery
	congLoss
)

func (s congState) String() string {
	switch s {
	case congOpen:
		return "OPEN"
	case congRecovery:
		return "RECOVERY"
	case congLoss:
		return "LOSS"
	default:
		return "UNKNOWN"
	}
}

// CongestionHooks is the pluggable strategy table congestion control
// schemes implement. The state machine calls these at the moments RFC
// 5681-style control needs to react; none of them may change connection
// State or touch the retransmit tally directly — only cwnd/ssthresh and
// the connection's congestion recovery state.
type CongestionHooks interface {
	// NewAck is called whenever the cumulative ack advances, with the
	// number of bytes newly acknowledged.
	NewAck(c *Conn, ackedBytes uint32)
	// DupAck is called on every duplicate ack, including the ones before
	// fast retransmit fires.
	DupAck(c *Conn)
	// Timeout is called when the retransmission timer expires.
	Timeout(c *Conn)
	// SSThresh returns the scheme's current slow-start threshold, for
	// GetInfo reporting.
	SSThresh(c *Conn) uint32
	// Delete is called once, when the connection is destroyed, so a
	// scheme holding external resources (unused by Reno) can release them.
	Delete(c *Conn)
}

// Reno is the one required congestion control scheme: slow start plus
// additive-increase/multiplicative-decrease congestion avoidance.
type Reno struct{}

func mss(c *Conn) uint32 {
	if c.sndMSS == 0 {
		return defaultMSS
	}
	return c.sndMSS
}

// NewAck implements CongestionHooks.
func (Reno) NewAck(c *Conn, ackedBytes uint32) {
	m := mss(c)
	if c.cwnd < c.ssthresh {
		// Slow start: grow by up to one MSS per newly-acked MSS-worth of data.
		c.cwnd += ackedBytes
	} else {
		// Congestion avoidance: classic mss*mss/cwnd approximation of +1
		// MSS per round trip.
		inc := uint64(m) * uint64(m) / uint64(maxu32(c.cwnd, m))
		c.cwnd += uint32(inc)
	}
	if c.congSt != congLoss {
		c.congSt = congOpen
	}
}

// DupAck implements CongestionHooks. Reno only reacts on the triggering
// (third consecutive) duplicate ack — the tally is the source of truth
// for the count.
func (Reno) DupAck(c *Conn) {
	if c.tally.DupAckCount() != 3 {
		return
	}
	m := mss(c)
	c.ssthresh = maxu32(c.cwnd/2, 2*m)
	c.cwnd = c.ssthresh
	c.congSt = congRecovery
}

// Timeout implements CongestionHooks.
func (Reno) Timeout(c *Conn) {
	m := mss(c)
	c.ssthresh = maxu32(c.cwnd/2, 2*m)
	c.cwnd = m
	c.congSt = congLoss
}

// SSThresh implements CongestionHooks.
func (Reno) SSThresh(c *Conn) uint32 { return c.ssthresh }

// Delete implements CongestionHooks.
func (Reno) Delete(c *Conn) {}

func maxu32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func minu32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
