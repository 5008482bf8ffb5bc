package tcpstate

import "github.com/m-lab/netsim/wire"

// segment is one outgoing unit of data, alive in at most one of
// throttledOutput (queued, not yet sent) or the retransmit map (sent,
// awaiting ack) at a time — a retransmit moves it from the map back onto
// throttledOutput rather than copying it, so the two never hold distinct
// copies of the same bytes.
type segment struct {
	seq    uint32 // starting sequence number; 0 only for a pure control segment
	data   []byte
	flags  wire.Flag
	sentAt int64 // simulated time of most recent transmission, for RTT sampling
}

// end is one past this segment's sequence number. Sequence numbers here
// are per-segment (one unit per packet carrying data or a SYN/FIN
// control flag), not per-byte — see the package doc for why.
func (s *segment) end() uint32 { return s.seq + 1 }

// inflight is one packet sent and not yet acked, tracked in the
// retransmit map by its starting sequence number.
type inflight struct {
	seg *segment
}
