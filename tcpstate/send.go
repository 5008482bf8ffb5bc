package tcpstate

import (
	"github.com/m-lab/netsim/descriptor"
	"github.com/m-lab/netsim/simmetrics"
	"github.com/m-lab/netsim/wire"
)

// SendUserData accepts up to len(buf) bytes of application data, clamped
// by however much room the send buffer currently has, segments it into
// MSS-sized chunks, and queues those chunks for transmission. It never
// blocks: a connection with a full send buffer reports ErrWouldBlock.
func (c *Conn) SendUserData(buf []byte) (int, error) {
	if err := c.Err(); err != nil {
		return 0, err
	}
	switch c.state {
	case ESTABLISHED, CLOSE_WAIT:
	default:
		return 0, ErrNotConnected
	}
	if c.flags.has(flagWriteFinPending) || c.sendEOFSignaled {
		return 0, ErrBrokenPipe
	}

	room := c.sendBufferSpace()
	n := len(buf)
	if n > room {
		n = room
	}
	if n == 0 {
		if len(buf) == 0 {
			return 0, nil
		}
		return 0, ErrWouldBlock
	}

	chunk := int(mss(c))
	for off := 0; off < n; off += chunk {
		end := off + chunk
		if end > n {
			end = n
		}
		seg := &segment{seq: c.sndNext, data: append([]byte(nil), buf[off:end]...)}
		c.sndNext++
		c.throttledOutput.Push(seg.seq, seg)
		c.throttledLen += len(seg.data)
	}
	c.flush()
	return n, nil
}

// sendBufferSpace is how many more bytes of user data this connection
// will currently accept, bounded by the autotuned send capacity minus
// whatever is already queued or in flight.
func (c *Conn) sendBufferSpace() int {
	outstanding := c.throttledLen + c.retransQueueLen
	capacity := int(c.sendSpaceCap)
	if outstanding >= capacity {
		return 0
	}
	return capacity - outstanding
}

// flush is the four-stage pipeline that runs after every state change
// that could make more work possible: a new ack, new data queued for
// send, a retransmit timeout, or a freshly opened window.
//
//  1. refresh the advertised receive window and prune the SACK list
//     against the current cumulative ack point
//  2. drain anything the tally currently considers lost, requeuing it
//     for retransmission ahead of fresh data
//  3. drain throttledOutput in sequence order while the send window and
//     congestion window both still have room
//  4. drain unorderedInput, delivering any run starting at rcvNext into
//     the user-visible input buffer
func (c *Conn) flush() {
	c.refreshRecvWindow()
	c.drainLost()
	c.drainThrottledOutput()
	c.drainUnorderedInput()
	c.maybeEmitFin()
	c.updateReadiness()
	simmetrics.CwndGauge.WithLabelValues(c.id.String()).Set(float64(c.cwnd))
}

func (c *Conn) refreshRecvWindow() {
	c.rcvWindow = c.computeRecvWindow()
	c.sackList = pruneSackList(c.sackList, c.rcvNext)
}

// drainLost requeues every currently-lost range onto throttledOutput
// ahead of anything already there, and records it retransmitted so a
// second timeout doesn't requeue the same bytes twice before this one
// has had a chance to go out.
func (c *Conn) drainLost() {
	c.tally.PopulateLostRanges(&c.lostScratch)
	if len(c.lostScratch) == 0 {
		return
	}
	trigger := "fast"
	if c.congSt == congLoss {
		trigger = "rto"
	}
	counter := simmetrics.RetransmitsTotal.WithLabelValues(trigger)
	for _, r := range c.lostScratch {
		for seq := r.Begin; seq < r.End; seq++ {
			inf, ok := c.retransMap[seq]
			if !ok {
				continue
			}
			c.evictInflight(seq)
			c.throttledOutput.Push(seq, inf.seg)
			c.throttledLen += len(inf.seg.data)
			c.totalRetrans++
			counter.Inc()
		}
		c.tally.MarkRetransmitted(r.Begin, r.End)
	}
}

// drainThrottledOutput sends as many queued segments as the send window
// and congestion window jointly allow, in sequence order.
func (c *Conn) drainThrottledOutput() {
	for {
		seg, ok := c.throttledOutput.Peek()
		if !ok {
			return
		}
		windowEnd := c.sndUna + minu32(c.peerWindow, c.cwnd/mss(c))
		if c.peerWindow == 0 && c.sndUna == seg.seq {
			windowEnd = seg.seq + 1 // a zero window still allows a one-segment probe
		}
		if seg.seq >= windowEnd {
			return
		}
		c.throttledOutput.Pop()
		c.throttledLen -= len(seg.data)
		c.transmitSegment(seg)
	}
}

// drainUnorderedInput copies every contiguous run starting at rcvNext
// out of unorderedInput into the user-visible input buffer.
func (c *Conn) drainUnorderedInput() {
	for {
		seg, ok := c.unorderedInput.Find(c.rcvNext)
		if !ok {
			return
		}
		c.unorderedInput.Remove(c.rcvNext)
		c.unorderedLen -= len(seg.data)
		c.inputBuf = append(c.inputBuf, seg.data...)
		c.rcvNext = seg.end()
		if seg.flags.Has(wire.FlagFIN) {
			c.onPeerFINConsumed()
		}
	}
}

// maybeEmitFin sends our own queued FIN once every byte of user data
// ahead of it has drained out of throttledOutput and the retransmit map.
func (c *Conn) maybeEmitFin() {
	if !c.flags.has(flagWriteFinPending) {
		return
	}
	if c.throttledOutput.Len() > 0 || len(c.retransMap) > 0 {
		return
	}
	c.flags = c.flags.without(flagWriteFinPending)
	seg := &segment{seq: c.sndNext, flags: wire.FlagFIN}
	c.sndNext++
	c.sndEnd = seg.end()
	c.sndEndValid = true
	c.transmitSegment(seg)
}

// updateReadiness flips the descriptor's readable/writable bits to
// match the connection's current buffers, so application code polling
// or waiting on the descriptor wakes up exactly when there's something
// to do.
func (c *Conn) updateReadiness() {
	if len(c.inputBuf) > 0 || c.recvEOFSignaled {
		c.desc.Set(descriptor.Readable)
	} else {
		c.desc.Clear(descriptor.Readable)
	}
	writable := false
	switch c.state {
	case ESTABLISHED, CLOSE_WAIT:
		writable = c.sendBufferSpace() > 0
	}
	if writable {
		c.desc.Set(descriptor.Writable)
	} else {
		c.desc.Clear(descriptor.Writable)
	}
}

// ReadUserData copies up to len(buf) bytes out of the connection's
// received-and-ordered input buffer, reporting io.EOF-equivalent via
// ErrBrokenPipe's absence: a zero-length read with recvEOFSignaled true
// means the peer has finished sending and there is nothing more to read.
func (c *Conn) ReadUserData(buf []byte) (int, error) {
	if len(c.inputBuf) == 0 {
		if c.recvEOFSignaled {
			return 0, nil
		}
		if err := c.Err(); err != nil {
			return 0, err
		}
		return 0, ErrWouldBlock
	}
	n := copy(buf, c.inputBuf)
	c.inputBuf = c.inputBuf[n:]
	c.bytesCopied += uint64(n)
	c.maybeGrowRecvBuffer()
	c.updateReadiness()
	return n, nil
}

// onPeerFINConsumed fires once the peer's FIN has been delivered in
// order, reaching the front of the input buffer. This is where the
// automaton actually reacts to "received FIN" — not when the FIN packet
// first arrives, since an out-of-order FIN must wait its turn like any
// other segment.
func (c *Conn) onPeerFINConsumed() {
	c.recvEOFSignaled = true
	c.desc.Set(descriptor.Readable)
	switch c.state {
	case ESTABLISHED:
		c.setState(CLOSE_WAIT)
	case FIN_WAIT_1:
		c.setState(CLOSING)
	case FIN_WAIT_2:
		c.setState(TIME_WAIT)
		c.armCloseTimer()
	}
}
