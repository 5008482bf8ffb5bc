package tcpstate

import (
	"github.com/m-lab/netsim/netid"
	"github.com/m-lab/netsim/simlog"
	"github.com/m-lab/netsim/topology"
	"github.com/m-lab/netsim/wire"
)

// pendingTimer is one ScheduleTimer callback awaiting its fire time on a
// harness's shared clock.
type pendingTimer struct {
	at int64
	fn func()
}

// harness is a minimal deterministic scheduler for driving a pair of Conns
// through a test without the real engine: a shared clock and a flat timer
// queue, advanced by advanceTo, which fires every due timer (including ones
// scheduled by an earlier firing within the same call) before returning.
type harness struct {
	now    int64
	timers []pendingTimer
	oracle topology.Oracle
}

func (h *harness) schedule(delay int64, fn func()) {
	if delay < 0 {
		delay = 0
	}
	h.timers = append(h.timers, pendingTimer{at: h.now + delay, fn: fn})
}

// advanceTo fires every timer due at or before target, in ascending time
// order, then parks the clock at target.
func (h *harness) advanceTo(target int64) {
	for {
		idx := -1
		for i, p := range h.timers {
			if p.at > target {
				continue
			}
			if idx < 0 || p.at < h.timers[idx].at {
				idx = i
			}
		}
		if idx < 0 {
			break
		}
		p := h.timers[idx]
		h.timers = append(h.timers[:idx], h.timers[idx+1:]...)
		h.now = p.at
		p.fn()
	}
	if target > h.now {
		h.now = target
	}
}

// connEnv implements Environment against a shared harness, delivering
// every transmitted packet to deliver after the harness's configured
// latency for this direction.
type connEnv struct {
	h        *harness
	host     netid.HostID
	resolve  map[[4]byte]netid.HostID
	latency  int64
	deliver  func(hdr *wire.Header, payload []byte)
	dropFunc func(hdr *wire.Header, payload []byte) bool // optional: true drops the packet instead of delivering it
}

func (e *connEnv) Now() int64                    { return e.h.now }
func (e *connEnv) Oracle() topology.Oracle       { return e.h.oracle }
func (e *connEnv) Logger() *simlog.Logger        { return simlog.Nop() }
func (e *connEnv) ResolveHost(ip [4]byte) netid.HostID { return e.resolve[ip] }
func (e *connEnv) ScheduleTimer(delay int64, fn func()) { e.h.schedule(delay, fn) }

func (e *connEnv) Transmit(hdr *wire.Header, payload []byte) {
	if e.dropFunc != nil && e.dropFunc(hdr, payload) {
		return
	}
	h, d := hdr, append([]byte(nil), payload...)
	e.h.schedule(e.latency, func() { e.deliver(h, d) })
}

// twoHosts wires a pair of Conns (a connecting client and a listener) over
// a harness with the given one-way latency and bandwidth, returning the
// client Conn and the listener Conn (not yet Accept-ed children).
func twoHosts(latencyMs float64, bwKiBs float64) (h *harness, client, listener *Conn) {
	h, client, listener, _, _ = twoHostsEnv(latencyMs, bwKiBs)
	return h, client, listener
}

// twoHostsEnv is twoHosts plus direct access to each side's connEnv, for
// tests that need to inject packet loss.
func twoHostsEnv(latencyMs float64, bwKiBs float64) (h *harness, client, listener *Conn, envA, envB *connEnv) {
	const hostA, hostB netid.HostID = 1, 2
	ipA := [4]byte{10, 0, 0, 1}
	ipB := [4]byte{10, 0, 0, 2}
	const portA, portB uint16 = 40000, 80

	h = &harness{
		oracle: topology.NewStatic(
			map[[2]netid.HostID]float64{
				{hostA, hostB}: latencyMs,
				{hostB, hostA}: latencyMs,
			},
			map[netid.HostID][2]float64{
				hostA: {bwKiBs, bwKiBs},
				hostB: {bwKiBs, bwKiBs},
			},
		),
	}
	latencyNs := int64(latencyMs * float64(msInNanos))

	envA = &connEnv{h: h, host: hostA, latency: latencyNs, resolve: map[[4]byte]netid.HostID{ipB: hostB}}
	envB = &connEnv{h: h, host: hostB, latency: latencyNs, resolve: map[[4]byte]netid.HostID{ipA: hostA}}

	client = New(hostA, ipA, portA, envA)
	listener = New(hostB, ipB, portB, envB)

	envB.deliver = func(hdr *wire.Header, payload []byte) {
		if hdr.DstPort != portA {
			return
		}
		client.ProcessPacket(hdr, payload)
	}
	envA.deliver = func(hdr *wire.Header, payload []byte) {
		if hdr.DstPort != portB {
			return
		}
		listener.ProcessPacket(hdr, payload)
	}
	return h, client, listener, envA, envB
}

// handshake drives a full three-way handshake to completion and returns
// the client Conn and its matching server-side child, both ESTABLISHED.
func handshake(h *harness, client, listener *Conn) *Conn {
	listener.Listen(4)
	client.Connect(listener.host, listener.localIP, listener.localPort)
	// Three legs of the handshake, each one a full one-way trip, plus
	// slack: advance in small steps so this works regardless of the
	// harness's configured link latency.
	step := int64(msInNanos)
	for i := 0; i < 10000; i++ {
		h.advanceTo(h.now + step)
		if child, err := listener.Accept(); err == nil {
			return child
		}
	}
	panic("handshake: never completed")
}
