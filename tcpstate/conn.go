// Package tcpstate implements the per-host TCP connection state machine:
// the eleven-state RFC 793 automaton, reliable delivery with SACK-driven
// loss tracking, Reno congestion control, and send/receive buffer
// autotuning. A Conn is owned by exactly one host at a time and needs no
// internal locking — the scheduler never hands the same host to two
// workers at once.
//
// Sequence numbers here count segments, not bytes: each packet that
// carries data or a SYN/FIN consumes exactly one sequence unit,
// regardless of its payload size. A real TCP stack's byte-granular
// sequence space is explicitly out of scope (bit-exact Linux behavior is
// a non-goal); counting segments keeps the window and retransmit
// arithmetic simple while preserving every invariant a byte-granular
// implementation would have to honor (unacked ≤ next ≤ unacked+window,
// three dup-acks trigger fast retransmit on the right range, and so on).
package tcpstate

import (
	"github.com/m-lab/netsim/descriptor"
	"github.com/m-lab/netsim/netid"
	"github.com/m-lab/netsim/pqueue"
	"github.com/m-lab/netsim/simlog"
	"github.com/m-lab/netsim/simmetrics"
	"github.com/m-lab/netsim/tally"
	"github.com/m-lab/netsim/wire"
)

// childKey demultiplexes packets arriving at a listening socket to the
// right spawned child, by the peer's address.
type childKey struct {
	peerIP   [4]byte
	peerPort uint16
}

func keyOf(ip [4]byte, port uint16) childKey { return childKey{peerIP: ip, peerPort: port} }

// serverRole holds the state a Conn in (or that has been in) LISTEN
// carries: children being handshaked or already established, and the
// subset of established children waiting for Accept.
type serverRole struct {
	backlog    []*Conn
	backlogCap int
	children   map[childKey]*Conn
	// closing is set once Close has been called on the listener while
	// server.children was still non-empty; the listener's own descriptor
	// isn't marked Closed until the last child finalizes.
	closing bool
}

// childRole is carried by a Conn spawned off a listener. The back
// reference to parent is non-owning — the owning direction is
// parent.server.children — so the two can't form a reference cycle that
// outlives either side's explicit removal.
type childRole struct {
	parent *Conn
	key    childKey
}

// Conn is one TCP connection's complete state.
type Conn struct {
	id       netid.ConnID
	host     netid.HostID
	peerHost netid.HostID
	env      Environment
	desc     *descriptor.Descriptor
	log      *simlog.Logger
	opts     Options

	state State
	flags connFlags

	sendEOFSignaled bool
	recvEOFSignaled bool
	refused         bool // set by onReset when the reset arrived while still SYN_SENT

	localIP, peerIP     [4]byte
	localPort, peerPort uint16

	// Receive window state.
	rcvNext   uint32
	rcvWindow uint32 // segments, our advertised window, refreshed every flush
	sackList  []wire.Range

	peerWindow uint32 // segments, the peer's last advertised window

	// Send window state.
	sndUna      uint32
	sndNext     uint32
	sndEnd      uint32
	sndEndValid bool
	lastAck     uint32
	highestSent uint32
	packetsSent uint64

	delayedAckCount int
	delayedAckSched bool
	quickAcksUsed   int
	peerSack        []wire.Range

	// Retransmit state.
	retransMap      map[uint32]*inflight
	retransQueueLen int // bytes, kept consistent with the map's payload sizes
	rto             float64
	desiredRTO      int64
	backoffCount    int
	totalRetrans    uint64
	tally           *tally.Tally
	lostScratch     []wire.Range

	srtt, rttvar float64
	haveRTT      bool

	cwnd, ssthresh uint32
	congSt         congState
	cong           CongestionHooks

	sndMSS, rcvMSS uint32

	autotuneInit    bool
	autotuneSendOff bool
	autotuneRecvOff bool
	bytesCopied     uint64
	lastAdjustAt    int64
	sendSpaceCap    uint32
	recvSpaceCap    uint32

	throttledOutput *pqueue.Queue[uint32, *segment]
	throttledLen    int
	unorderedInput  *pqueue.Queue[uint32, *segment]
	unorderedLen    int

	inputBuf []byte

	server *serverRole
	child  *childRole

	lastDataSentAt, lastAckSentAt int64
	lastDataRecvAt, lastAckRecvAt int64
}

func segLess(a, b *segment) bool { return a.seq < b.seq }

// New constructs an unconnected Conn (state CLOSED) owned by host, bound
// to localIP:localPort, driven by env.
func New(host netid.HostID, localIP [4]byte, localPort uint16, env Environment, opts ...Option) *Conn {
	return newConnWithOptions(host, localIP, localPort, env, newOptions(opts))
}

// newConnWithOptions is the shared constructor New and spawnChild both
// use, taking an already-resolved Options so a spawned child can inherit
// its parent's tuning without re-running the functional-option chain.
func newConnWithOptions(host netid.HostID, localIP [4]byte, localPort uint16, env Environment, o Options) *Conn {
	c := &Conn{
		id:              netid.NewConnID(),
		host:            host,
		env:             env,
		desc:            descriptor.New(descriptor.Active),
		log:             env.Logger(),
		opts:            o,
		state:           CLOSED,
		localIP:         localIP,
		localPort:       localPort,
		sndMSS:          defaultMSS,
		rcvMSS:          defaultMSS,
		retransMap:      make(map[uint32]*inflight),
		rto:             o.rtoInitialMs,
		tally:           tally.New(),
		cong:            o.congestion,
		cwnd:            defaultMSS,
		ssthresh:        1 << 30,
		throttledOutput: pqueue.New[uint32, *segment](segLess),
		unorderedInput:  pqueue.New[uint32, *segment](segLess),
		sendSpaceCap:    minBufSize,
		recvSpaceCap:    minBufSize,
		sndNext:         1, // 0 is reserved for a pure-control, no-sequence packet
		sndUna:          1,
		lastAck:         1,
	}
	return c
}

// ID is this connection's identity, for logging and metrics labels.
func (c *Conn) ID() netid.ConnID { return c.id }

// State returns the connection's current automaton state.
func (c *Conn) State() State { return c.state }

// Descriptor exposes the status bit-set/listener-fanout object, so
// application code can poll or register for readability/writability.
func (c *Conn) Descriptor() *descriptor.Descriptor { return c.desc }

// Host is the simulated host this connection is bound to.
func (c *Conn) Host() netid.HostID { return c.host }

// PeerHost is the simulated host on the other end of the connection.
// Zero until the handshake resolves it (a listener still in LISTEN has
// no peer yet).
func (c *Conn) PeerHost() netid.HostID { return c.peerHost }

// LocalAddr returns the connection's local IP and port.
func (c *Conn) LocalAddr() ([4]byte, uint16) { return c.localIP, c.localPort }

// PeerAddr returns the connection's peer IP and port. Before the
// handshake resolves a child's identity (while still in LISTEN) this is
// the zero address.
func (c *Conn) PeerAddr() ([4]byte, uint16) { return c.peerIP, c.peerPort }

func (c *Conn) setState(next State) {
	if c.state == next {
		return
	}
	simmetrics.StateTransitions.WithLabelValues(c.state.String(), next.String()).Inc()
	if c.log != nil {
		c.log.Info().Str("from", c.state.String()).Str("to", next.String()).Log("tcp state transition")
	}
	c.state = next
}

// Info is the public snapshot GetInfo returns, a slim remodeling of
// Linux's tcp_info restricted to the fields the descriptor I/O surface
// exposes.
type Info struct {
	State          State
	SndMSS         uint32
	RcvMSS         uint32
	Unacked        uint32
	Retransmits    uint32
	LastDataSentUs int64
	LastAckSentUs  int64
	LastDataRecvUs int64
	LastAckRecvUs  int64
	PMTU           uint32
	RTT            float64 // microseconds
	RTTVar         float64 // microseconds
	SndSSThresh    uint32
	SndCwnd        uint32
	AdvMSS         uint32
	RcvRTT         float64 // microseconds
	RcvSpace       uint32
	TotalRetrans   uint64
}

// GetInfo returns a snapshot of the connection's current state, safe to
// call at any point in its lifecycle.
func (c *Conn) GetInfo() Info {
	now := c.env.Now()
	return Info{
		State:          c.state,
		SndMSS:         c.sndMSS,
		RcvMSS:         c.rcvMSS,
		Unacked:        uint32(len(c.retransMap)),
		Retransmits:    uint32(c.backoffCount),
		LastDataSentUs: nsToUs(now - c.lastDataSentAt),
		LastAckSentUs:  nsToUs(now - c.lastAckSentAt),
		LastDataRecvUs: nsToUs(now - c.lastDataRecvAt),
		LastAckRecvUs:  nsToUs(now - c.lastAckRecvAt),
		PMTU:           pmtu,
		RTT:            c.srtt * 1000,
		RTTVar:         c.rttvar * 1000,
		SndSSThresh:    c.cong.SSThresh(c),
		SndCwnd:        c.cwnd,
		AdvMSS:         c.sndMSS,
		RcvRTT:         c.srtt * 1000,
		RcvSpace:       c.recvSpaceCap,
		TotalRetrans:   c.totalRetrans,
	}
}

func nsToUs(ns int64) int64 {
	if ns < 0 {
		return 0
	}
	return ns / 1000
}
