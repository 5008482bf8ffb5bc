package tcpstate

import (
	"github.com/m-lab/netsim/tally"
	"github.com/m-lab/netsim/wire"
)

// dataOutcome classifies what processData did with an incoming packet's
// payload, driving the delayed-ack decision in handleDataAndAck.
type dataOutcome int

const (
	dataNone dataOutcome = iota
	dataAcceptedInOrder
	dataAcceptedOutOfOrder
	dataDroppedOutsideWindow
)

// processData buffers an incoming packet's payload into unorderedInput
// if it falls inside the advertised receive window, leaving delivery
// into the user-visible input buffer to flush's fourth stage.
func (c *Conn) processData(hdr *wire.Header, payload []byte) dataOutcome {
	if len(payload) == 0 && !hdr.Flags.Has(wire.FlagFIN) {
		return dataNone
	}
	seq := hdr.Seq
	if seq < c.rcvNext || (c.rcvWindow > 0 && seq >= c.rcvNext+c.rcvWindow) {
		return dataDroppedOutsideWindow
	}
	if _, exists := c.unorderedInput.Find(seq); !exists {
		seg := &segment{seq: seq, data: append([]byte(nil), payload...), flags: hdr.Flags}
		c.unorderedInput.Push(seq, seg)
		c.unorderedLen += len(seg.data)
	}
	c.lastDataRecvAt = c.env.Now()
	if seq != c.rcvNext {
		c.sackList = addSackRange(c.sackList, wire.Range{Begin: seq, End: seq + 1})
		return dataAcceptedOutOfOrder
	}
	return dataAcceptedInOrder
}

// processAck validates and applies an incoming ack, per §4.7.3: a valid
// new ack in (send.unacked, send.next] evicts the acked range from the
// retransmit map and feeds the tally and congestion hooks; an ack equal
// to send.unacked with outstanding unacked data is a duplicate.
func (c *Conn) processAck(hdr *wire.Header) {
	if !hdr.Flags.Has(wire.FlagACK) {
		return
	}
	ack := hdr.Ack
	c.peerWindow = uint32(hdr.Window)

	if ack == c.sndUna {
		isDup := c.sndUna < c.sndNext
		flags := c.tally.Update(c.sndUna, c.highestSent+1, isDup)
		if isDup {
			c.cong.DupAck(c)
		}
		if flags&tally.DataSacked != 0 && len(hdr.SACK) > 0 {
			c.tally.MarkSacked(toTallyRanges(hdr.SACK))
			c.peerSack = hdr.SACK
		}
		return
	}
	if ack < c.sndUna || ack > c.sndNext {
		return
	}

	var sampleSentAt int64
	for seq := c.sndUna; seq < ack; seq++ {
		if inf, ok := c.retransMap[seq]; ok {
			sampleSentAt = inf.seg.sentAt
		}
		c.evictInflight(seq)
	}
	newlyAcked := ack - c.sndUna
	c.sndUna = ack
	c.lastAck = ack
	c.lastAckRecvAt = c.env.Now()
	if len(hdr.SACK) > 0 {
		c.tally.MarkSacked(toTallyRanges(hdr.SACK))
		c.peerSack = hdr.SACK
	}
	c.tally.Update(ack, c.highestSent+1, false)
	if sampleSentAt != 0 {
		c.sampleRTT(c.env.Now() - sampleSentAt)
	}
	c.cong.NewAck(c, newlyAcked*mss(c))
	c.maybeGrowSendBuffer()
	c.checkFinAcked()
	c.rearmRTO()
}

// checkFinAcked advances past FIN_WAIT_1/CLOSING/LAST_ACK once our own
// outstanding FIN has been fully acked.
func (c *Conn) checkFinAcked() {
	if !c.sndEndValid || c.sndUna < c.sndEnd {
		return
	}
	c.sendEOFSignaled = true
	switch c.state {
	case FIN_WAIT_1:
		c.setState(FIN_WAIT_2)
	case CLOSING:
		c.setState(TIME_WAIT)
		c.armCloseTimer()
	case LAST_ACK:
		c.setState(CLOSED)
		c.finalizeClose()
	}
}

// handleDataAndAck is the shared receive-side continuation for every
// state past the handshake: buffer any data, apply the ack, and decide
// whether to ack immediately or schedule a delayed ack.
func (c *Conn) handleDataAndAck(hdr *wire.Header, payload []byte) {
	outcome := c.processData(hdr, payload)
	c.processAck(hdr)
	if c.state == CLOSED {
		return // the ack of our FIN finalized the connection
	}
	c.flush()

	switch outcome {
	case dataAcceptedOutOfOrder, dataDroppedOutsideWindow:
		c.cancelDelayedAck()
		c.sendPureAck()
	case dataAcceptedInOrder:
		if hdr.Flags.Has(wire.FlagFIN) {
			c.cancelDelayedAck()
			c.sendPureAck()
		} else {
			c.scheduleDelayedAck()
		}
	}
}

func (c *Conn) cancelDelayedAck() { c.delayedAckSched = false }

// scheduleDelayedAck arms a delayed-ack timer if one isn't already
// pending, per the connection's quick/slow schedule.
func (c *Conn) scheduleDelayedAck() {
	if c.delayedAckSched {
		return
	}
	c.delayedAckSched = true
	c.delayedAckCount++
	delay := c.opts.delayedAckSlow
	if c.quickAcksUsed < c.opts.quickAckThreshold {
		delay = c.opts.delayedAckQuick
	}
	c.quickAcksUsed++
	conn := c
	c.env.ScheduleTimer(delay, func() {
		if !conn.delayedAckSched {
			return // cancelled by a piggyback ack in the meantime
		}
		conn.sendPureAck()
	})
}

// computeRecvWindow is the spare input-buffer space, in receive-MSS
// units, never advertising 0 while the input buffer still holds data
// awaiting the user — a window of 0 with nothing outstanding would
// stall the sender with no way to ever recover.
func (c *Conn) computeRecvWindow() uint32 {
	capacity := c.recvSpaceCap
	used := uint32(len(c.inputBuf))
	var spareBytes uint32
	if capacity > used {
		spareBytes = capacity - used
	}
	spareSegs := spareBytes / mssRecv(c)
	if spareSegs == 0 && used > 0 {
		spareSegs = 1
	}
	return spareSegs
}

func mssRecv(c *Conn) uint32 {
	if c.rcvMSS == 0 {
		return defaultMSS
	}
	return c.rcvMSS
}
