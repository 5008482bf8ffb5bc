package tcpstate

// Buffer autotuning: on the first RTT sample, size both buffers from
// bandwidth x RTT x 1.25, the standard "keep a bit more than one BDP
// in flight" rule of thumb. After that, the receive buffer grows on
// every user read, once the bytes copied since the last adjustment show
// the current buffer is undersized, and the send buffer grows on every
// new ack to track the congestion window. A loopback connection (peer on
// the same host) always gets the maximum, since there's no real network
// path whose bandwidth-delay product to estimate.

// maybeInitAutotune runs once, on the connection's first RTT sample,
// when autotuning is enabled.
func (c *Conn) maybeInitAutotune(rttMs float64) {
	if c.autotuneInit || !c.opts.autotuneEnabled {
		return
	}
	c.autotuneInit = true

	if c.host == c.peerHost {
		c.sendSpaceCap = loopbackBufSize
		c.recvSpaceCap = loopbackBufSize
		c.autotuneSendOff = true
		c.autotuneRecvOff = true
		return
	}

	oracle := c.env.Oracle()
	c.sendSpaceCap = clampBuf(bdpBytes(rttMs, min(oracle.BandwidthUp(c.host), oracle.BandwidthDown(c.peerHost)), 1.25))
	c.recvSpaceCap = clampBuf(bdpBytes(rttMs, min(oracle.BandwidthDown(c.host), oracle.BandwidthUp(c.peerHost)), 1.25))
	c.lastAdjustAt = c.env.Now()
}

// bdpBytes is multiplier times the bandwidth-delay product, bandwidth
// given in KiB/s and rtt in milliseconds.
func bdpBytes(rttMs, bandwidthKiBs, multiplier float64) uint32 {
	bytes := bandwidthKiBs * 1024 * (rttMs / 1000) * multiplier
	if bytes < 0 {
		return 0
	}
	if bytes > float64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(bytes)
}

func clampBuf(want uint32) uint32 {
	if want < minBufSize {
		return minBufSize
	}
	if want > maxBufSize {
		return maxBufSize
	}
	return want
}

// maybeGrowRecvBuffer runs on every user read. c.bytesCopied is the
// running total since the last adjustment; once twice that exceeds the
// current receive buffer size, the buffer grows to
// min(2*bytesCopied, RTT*down_bw*10). The counter resets once per SRTT
// regardless of whether growth fired, so a connection reads that never
// individually trip the threshold still get re-measured periodically.
func (c *Conn) maybeGrowRecvBuffer() {
	if c.autotuneRecvOff || !c.opts.autotuneEnabled {
		return
	}
	now := c.env.Now()
	if c.srtt > 0 && now-c.lastAdjustAt >= int64(c.srtt*msInNanos) {
		c.bytesCopied = 0
		c.lastAdjustAt = now
	}
	if 2*c.bytesCopied <= uint64(c.recvSpaceCap) {
		return
	}
	ceiling := bdpBytes(c.srtt, c.env.Oracle().BandwidthDown(c.host), 10)
	want := 2 * c.bytesCopied
	if want > uint64(ceiling) {
		want = uint64(ceiling)
	}
	grown := clampBuf(uint32(want))
	if grown >= maxBufSize {
		c.autotuneRecvOff = true
	}
	c.recvSpaceCap = grown
}

// maybeGrowSendBuffer runs on every new ack: the send buffer grows to
// min(2*cwnd*2404, RTT*up_bw*10), the send-side counterpart to
// maybeGrowRecvBuffer's read-triggered growth.
func (c *Conn) maybeGrowSendBuffer() {
	if c.autotuneSendOff || !c.opts.autotuneEnabled {
		return
	}
	ceiling := bdpBytes(c.srtt, c.env.Oracle().BandwidthUp(c.host), 10)
	want := uint64(c.cwnd) * 2 * 2404
	if want > uint64(ceiling) {
		want = uint64(ceiling)
	}
	grown := clampBuf(uint32(want))
	if grown >= maxBufSize {
		c.autotuneSendOff = true
	}
	c.sendSpaceCap = grown
}
