package tcpstate

import "github.com/m-lab/netsim/wire"

// sendRaw is the single chokepoint every outgoing packet passes through.
// Every packet this connection sends carries an ack (transmitSegment sets
// the ACK flag even on the opening SYN), so this is also
// where a pending delayed ack gets cancelled — any outgoing header
// already reports the current receive.next, making a separately
// scheduled ack redundant.
func (c *Conn) sendRaw(hdr *wire.Header, payload []byte) {
	c.delayedAckSched = false
	now := c.env.Now()
	if hdr.Flags.Has(wire.FlagACK) {
		c.lastAckSentAt = now
	}
	if len(payload) > 0 || hdr.Flags.Has(wire.FlagSYN) || hdr.Flags.Has(wire.FlagFIN) {
		c.lastDataSentAt = now
	}
	c.packetsSent++
	c.env.Transmit(hdr, payload)
}

// transmitSegment sends seg (a data or control segment that must be
// retransmitted if unacked) and registers it in the retransmit map.
func (c *Conn) transmitSegment(seg *segment) {
	seg.sentAt = c.env.Now()
	hdr := &wire.Header{
		SrcIP: c.localIP, DstIP: c.peerIP,
		SrcPort: c.localPort, DstPort: c.peerPort,
		Seq: seg.seq, Ack: c.rcvNext,
		Window: uint16(minu32(c.rcvWindow, 65535)),
		Flags:  seg.flags | wire.FlagACK,
		SACK:   append([]wire.Range(nil), c.sackList...),
	}
	c.sendRaw(hdr, seg.data)
	c.registerInflight(seg)
	c.rearmRTO()
}

// sendPureAck sends an ack carrying no sequence-consuming data, for
// both immediate and delayed-ack-timer-fired acknowledgments.
func (c *Conn) sendPureAck() {
	hdr := &wire.Header{
		SrcIP: c.localIP, DstIP: c.peerIP,
		SrcPort: c.localPort, DstPort: c.peerPort,
		Seq: 0, Ack: c.rcvNext,
		Window: uint16(minu32(c.rcvWindow, 65535)),
		Flags:  wire.FlagACK,
		SACK:   append([]wire.Range(nil), c.sackList...),
	}
	c.sendRaw(hdr, nil)
}

func (c *Conn) registerInflight(seg *segment) {
	if _, exists := c.retransMap[seg.seq]; !exists {
		c.retransQueueLen += len(seg.data)
	}
	c.retransMap[seg.seq] = &inflight{seg: seg}
	if seg.seq > c.highestSent {
		c.highestSent = seg.seq
	}
}

func (c *Conn) evictInflight(seq uint32) {
	if inf, ok := c.retransMap[seq]; ok {
		c.retransQueueLen -= len(inf.seg.data)
		delete(c.retransMap, seq)
	}
}

func toTallyRanges(sack []wire.Range) []wire.Range {
	return append([]wire.Range(nil), sack...)
}

// addSackRange inserts r into the advertised SACK list, merging it with
// any touching or overlapping block so the list stays small. Capped at
// a handful of blocks, the same bound a real stack's fixed-size SACK
// option field imposes.
const maxSackBlocks = 8

func addSackRange(rs []wire.Range, r wire.Range) []wire.Range {
	out := make([]wire.Range, 0, len(rs)+1)
	inserted := false
	for _, cur := range rs {
		switch {
		case !inserted && r.Overlaps(cur):
			if cur.Begin < r.Begin {
				r.Begin = cur.Begin
			}
			if cur.End > r.End {
				r.End = cur.End
			}
		case !inserted && cur.Begin > r.End:
			out = append(out, r, cur)
			inserted = true
		default:
			out = append(out, cur)
		}
	}
	if !inserted {
		out = append(out, r)
	}
	if len(out) > maxSackBlocks {
		out = out[len(out)-maxSackBlocks:]
	}
	return out
}

// pruneSackList drops any advertised block now below floor, since it's
// been superseded by the cumulative ack.
func pruneSackList(rs []wire.Range, floor uint32) []wire.Range {
	out := rs[:0]
	for _, r := range rs {
		if r.End <= floor {
			continue
		}
		if r.Begin < floor {
			r.Begin = floor
		}
		out = append(out, r)
	}
	return out
}
