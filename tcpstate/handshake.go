package tcpstate

import (
	"github.com/m-lab/netsim/descriptor"
	"github.com/m-lab/netsim/netid"
	"github.com/m-lab/netsim/wire"
)

// Connect initiates an outbound handshake to peerIP:peerPort, owned by
// peerHost. It never blocks: the SYN goes out immediately and Connect
// reports ErrInProgress, with completion observable once the descriptor
// becomes writable (or, on failure, once it reports a reset).
func (c *Conn) Connect(peerHost netid.HostID, peerIP [4]byte, peerPort uint16) error {
	if c.state != CLOSED {
		return ErrAlready
	}
	c.peerHost = peerHost
	c.peerIP = peerIP
	c.peerPort = peerPort
	c.setState(SYN_SENT)
	c.flags = c.flags.with(flagConnectSignalNeeded)
	c.refreshRecvWindow()
	seg := &segment{seq: c.sndNext, flags: wire.FlagSYN}
	c.sndNext++
	c.transmitSegment(seg)
	return ErrInProgress
}

// Listen puts the connection into LISTEN, ready to demultiplex inbound
// SYNs into spawned children. backlog <= 0 uses defaultBacklog.
func (c *Conn) Listen(backlog int) error {
	if c.state != CLOSED {
		return ErrAlready
	}
	if backlog <= 0 {
		backlog = defaultBacklog
	}
	c.setState(LISTEN)
	c.server = &serverRole{backlogCap: backlog, children: make(map[childKey]*Conn)}
	return nil
}

// Accept pops one fully-established child off the backlog, or reports
// ErrWouldBlock if none is waiting yet.
func (c *Conn) Accept() (*Conn, error) {
	if c.server == nil {
		return nil, ErrNotConnected
	}
	if len(c.server.backlog) == 0 {
		return nil, ErrWouldBlock
	}
	child := c.server.backlog[0]
	c.server.backlog = c.server.backlog[1:]
	c.updateServerReadiness()
	return child, nil
}

// Close begins tearing the connection down: a listening socket or one
// still in SYN_SENT closes immediately, while one in SYN_RECEIVED,
// ESTABLISHED or CLOSE_WAIT queues a FIN behind any pending output.
func (c *Conn) Close() error {
	switch c.state {
	case CLOSED:
		return nil
	case LISTEN, SYN_SENT:
		c.setState(CLOSED)
		c.finalizeClose()
		return nil
	case SYN_RECEIVED, ESTABLISHED:
		c.queueFin()
		c.setState(FIN_WAIT_1)
		return nil
	case CLOSE_WAIT:
		c.queueFin()
		c.setState(LAST_ACK)
		return nil
	default:
		return nil // already closing
	}
}

// Shutdown half-closes the connection for writing: a FIN is queued the
// same way Close queues one, but the peer's data can still be read until
// it sends its own FIN.
func (c *Conn) Shutdown() error {
	switch c.state {
	case ESTABLISHED:
		c.flags = c.flags.with(flagHalfClose)
		c.queueFin()
		c.setState(FIN_WAIT_1)
		return nil
	case CLOSE_WAIT:
		c.flags = c.flags.with(flagHalfClose)
		c.queueFin()
		c.setState(LAST_ACK)
		return nil
	default:
		return ErrNotConnected
	}
}

func (c *Conn) queueFin() {
	if c.flags.has(flagWriteFinPending) {
		return
	}
	c.flags = c.flags.with(flagWriteFinPending)
	c.flush()
}

// Err reports the terminal error a reset connection should surface to
// further calls, or nil if none is pending.
func (c *Conn) Err() error {
	if c.refused {
		return ErrConnRefused
	}
	if c.flags.has(flagResetSignaled) {
		return ErrConnReset
	}
	return nil
}

// ProcessPacket is the single entry point the owning engine feeds every
// inbound packet addressed to this connection (or, for a LISTEN socket,
// addressed to its bound address generally) through.
func (c *Conn) ProcessPacket(hdr *wire.Header, payload []byte) {
	switch c.state {
	case CLOSED:
		// A closed listener still routes packets to the children it is
		// waiting on, so they can finish their own close.
		if c.server != nil && c.server.closing {
			if child, ok := c.server.children[keyOf(hdr.SrcIP, hdr.SrcPort)]; ok {
				child.ProcessPacket(hdr, payload)
			}
		}
		return
	case LISTEN:
		// A listening socket demultiplexes by peer address first — an
		// unsolicited RST addressed to the listener itself must not reset
		// the whole backlog, only whichever child (if any) it matches.
		c.processListen(hdr, payload)
		return
	}
	if hdr.Flags.Has(wire.FlagRST) {
		c.onReset()
		return
	}
	switch c.state {
	case SYN_SENT:
		c.processSynSent(hdr)
	case SYN_RECEIVED:
		c.processSynReceivedAck(hdr, payload)
	case TIME_WAIT:
		if hdr.Flags.Has(wire.FlagFIN) {
			c.sendPureAck()
		}
	default:
		c.handleDataAndAck(hdr, payload)
	}
}

// processListen demultiplexes an inbound packet on a listening socket to
// the child already handshaking or established for that peer, spawning
// one for a fresh SYN if there's backlog room.
func (c *Conn) processListen(hdr *wire.Header, payload []byte) {
	key := keyOf(hdr.SrcIP, hdr.SrcPort)
	if child, ok := c.server.children[key]; ok {
		child.ProcessPacket(hdr, payload)
		return
	}
	if !hdr.Flags.Has(wire.FlagSYN) {
		return
	}
	if len(c.server.children) >= c.server.backlogCap {
		return // backlog full; drop the SYN, the peer's retransmit will retry
	}
	child := c.spawnChild(key, hdr)
	c.server.children[key] = child
	child.processSynReceived(hdr)
}

// spawnChild builds a connection for a peer that just SYNed a listening
// socket. It shares the parent's address and tuning options but gets its
// own identity, buffers, and automaton state.
func (c *Conn) spawnChild(key childKey, hdr *wire.Header) *Conn {
	peerHost := c.env.ResolveHost(hdr.SrcIP)
	child := newConnWithOptions(c.host, c.localIP, c.localPort, c.env, c.opts)
	child.peerIP = hdr.SrcIP
	child.peerPort = hdr.SrcPort
	child.peerHost = peerHost
	child.child = &childRole{parent: c, key: key}
	return child
}

// processSynSent handles the reply to our own outbound SYN: a SYN+ACK
// completes the handshake, anything else (absent a RST, already handled
// by ProcessPacket) is ignored.
func (c *Conn) processSynSent(hdr *wire.Header) {
	if !hdr.Flags.Has(wire.FlagSYN) {
		return
	}
	c.rcvNext = hdr.Seq + 1
	if hdr.Flags.Has(wire.FlagACK) {
		c.processAck(hdr)
	}
	c.setState(ESTABLISHED)
	c.onEstablished()
	c.sendPureAck()
	c.flush()
}

// processSynReceived handles a fresh inbound SYN on a spawned child: it
// answers with our own SYN, piggybacking the ack via transmitSegment's
// always-ack framing.
func (c *Conn) processSynReceived(hdr *wire.Header) {
	c.rcvNext = hdr.Seq + 1
	c.setState(SYN_RECEIVED)
	c.refreshRecvWindow()
	seg := &segment{seq: c.sndNext, flags: wire.FlagSYN}
	c.sndNext++
	c.transmitSegment(seg)
}

// processSynReceivedAck handles the final ack of an inbound handshake:
// once it lands, the child is fully established and handed to the
// parent's backlog for Accept.
func (c *Conn) processSynReceivedAck(hdr *wire.Header, payload []byte) {
	if hdr.Flags.Has(wire.FlagACK) {
		c.processAck(hdr)
	}
	c.setState(ESTABLISHED)
	c.onEstablished()
	if c.child != nil {
		c.child.parent.admitToBacklog(c)
	}
	if len(payload) > 0 || hdr.Flags.Has(wire.FlagFIN) {
		c.handleDataAndAck(hdr, payload)
		return
	}
	c.flush()
}

func (c *Conn) onEstablished() {
	if c.flags.has(flagConnectSignalNeeded) {
		c.flags = c.flags.without(flagConnectSignalNeeded)
		c.log.Info().Int("peer_host", int(c.peerHost)).Log("outbound connect completed")
	}
	c.flags = c.flags.with(flagEstablishedOnce)
	c.desc.Set(descriptor.Writable)
}

func (c *Conn) admitToBacklog(child *Conn) {
	c.server.backlog = append(c.server.backlog, child)
	c.updateServerReadiness()
}

func (c *Conn) updateServerReadiness() {
	if len(c.server.backlog) > 0 {
		c.desc.Set(descriptor.Readable)
	} else {
		c.desc.Clear(descriptor.Readable)
	}
}

// onReset handles an inbound RST at any non-listen state with no prior
// reset: it moves to TIME_WAIT and arms the same close timer every other
// path into TIME_WAIT uses, rather than tearing the connection down on
// the spot.
func (c *Conn) onReset() {
	if c.state == CLOSED || c.flags.has(flagResetSignaled) {
		return
	}
	if c.state == SYN_SENT {
		c.refused = true
	}
	c.flags = c.flags.with(flagResetSignaled)
	c.setState(TIME_WAIT)
	c.desc.Set(descriptor.Readable)
	c.armCloseTimer()
}

// armCloseTimer starts the TIME_WAIT hold, after which the connection is
// finally torn down.
func (c *Conn) armCloseTimer() {
	conn := c
	c.env.ScheduleTimer(timeWaitDuration, func() {
		if conn.state != TIME_WAIT {
			return
		}
		conn.setState(CLOSED)
		conn.finalizeClose()
	})
}

// finalizeClose marks the descriptor Closed and, for a spawned child,
// removes it from its parent's child table. A server whose own Close was
// called while children remained doesn't reach Closed here; it's deferred
// until the last of those children finalizes, per the rule that a server
// socket is destroyed only once every child it handed off has closed too.
func (c *Conn) finalizeClose() {
	if c.server != nil && len(c.server.children) > 0 {
		c.server.closing = true
		return
	}
	c.desc.SetStatus(descriptor.Closed)
	if c.child != nil && c.child.parent != nil {
		parent := c.child.parent
		delete(parent.server.children, c.child.key)
		if parent.server.closing && len(parent.server.children) == 0 {
			parent.desc.SetStatus(descriptor.Closed)
		}
	}
}
