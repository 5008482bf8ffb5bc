package snapshot_test

import (
	"bytes"
	"sort"
	"strings"
	"testing"

	"github.com/m-lab/netsim/netid"
	"github.com/m-lab/netsim/simlog"
	"github.com/m-lab/netsim/snapshot"
	"github.com/m-lab/netsim/tcpstate"
	"github.com/m-lab/netsim/topology"
	"github.com/m-lab/netsim/wire"
)

// timer is a scheduled callback in the test harness's flat queue.
type timer struct {
	at int64
	fn func()
}

// harness is the smallest possible tcpstate.Environment: a shared flat
// timer queue standing in for the scheduler, and a host registry so two
// Conns can deliver packets directly to each other, mirroring
// tcpstate's own single-threaded test harness.
type harness struct {
	now    int64
	timers []timer
	oracle topology.Oracle
	byAddr map[[4]byte]map[uint16]*tcpstate.Conn
	hosts  map[[4]byte]netid.HostID
}

func newHarness() *harness {
	return &harness{
		oracle: topology.NewStatic(
			map[[2]netid.HostID]float64{{1, 2}: 2, {2, 1}: 2},
			map[netid.HostID][2]float64{1: {2048, 2048}, 2: {2048, 2048}},
		),
		byAddr: map[[4]byte]map[uint16]*tcpstate.Conn{},
		hosts:  map[[4]byte]netid.HostID{},
	}
}

func (h *harness) register(ip [4]byte, port uint16, host netid.HostID, c *tcpstate.Conn) {
	if h.byAddr[ip] == nil {
		h.byAddr[ip] = map[uint16]*tcpstate.Conn{}
	}
	h.byAddr[ip][port] = c
	h.hosts[ip] = host
}

func (h *harness) schedule(delay int64, fn func()) {
	h.timers = append(h.timers, timer{at: h.now + delay, fn: fn})
}

// drain runs every pending timer in time order until none remain,
// letting new timers scheduled mid-drain run in their turn.
func (h *harness) drain() {
	for len(h.timers) > 0 {
		sort.SliceStable(h.timers, func(i, j int) bool { return h.timers[i].at < h.timers[j].at })
		next := h.timers[0]
		h.timers = h.timers[1:]
		h.now = next.at
		next.fn()
	}
}

// env adapts harness to tcpstate.Environment for one host.
type env struct {
	h    *harness
	self netid.HostID
}

func (e *env) Now() int64              { return e.h.now }
func (e *env) Oracle() topology.Oracle { return e.h.oracle }
func (e *env) Logger() *simlog.Logger  { return simlog.Nop() }
func (e *env) ResolveHost(ip [4]byte) netid.HostID { return e.h.hosts[ip] }

func (e *env) ScheduleTimer(delay int64, fn func()) {
	e.h.schedule(delay, fn)
}

func (e *env) Transmit(hdr *wire.Header, payload []byte) {
	latencyMs := e.h.oracle.Latency(e.h.hosts[hdr.SrcIP], e.h.hosts[hdr.DstIP])
	h, body := hdr, append([]byte(nil), payload...)
	e.h.schedule(int64(latencyMs*1e6), func() {
		if c := e.h.byAddr[h.DstIP][h.DstPort]; c != nil {
			c.ProcessPacket(h, body)
		}
	})
}

// TestFromConnRoundTripsThroughCSV drives a tiny handshake and transfer,
// samples both ends, and checks the CSV output carries the fields
// spec.md §6 names for get_info through unmangled.
func TestFromConnRoundTripsThroughCSV(t *testing.T) {
	h := newHarness()
	ipA := [4]byte{10, 0, 0, 1}
	ipB := [4]byte{10, 0, 0, 2}
	const portA, portB uint16 = 51000, 7

	client := tcpstate.New(1, ipA, portA, &env{h: h, self: 1})
	listener := tcpstate.New(2, ipB, portB, &env{h: h, self: 2})
	h.register(ipA, portA, 1, client)
	h.register(ipB, portB, 2, listener)

	if err := listener.Listen(1); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := client.Connect(2, ipB, portB); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	h.drain()

	child, err := listener.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}

	if _, err := client.SendUserData([]byte("snapshot me")); err != nil {
		t.Fatalf("SendUserData: %v", err)
	}
	h.drain()

	w := snapshot.NewWriter()
	w.Sample(client, h.now)
	w.Sample(child, h.now)
	if w.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", w.Len())
	}

	var buf bytes.Buffer
	if err := w.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3 (header + 2 rows): %q", len(lines), out)
	}
	if !strings.Contains(lines[0], "conn_id") || !strings.Contains(lines[0], "snd_cwnd") {
		t.Fatalf("header missing expected columns: %q", lines[0])
	}
	if !strings.Contains(lines[1], "ESTABLISHED") {
		t.Fatalf("client row missing ESTABLISHED state: %q", lines[1])
	}
	if !strings.Contains(lines[2], "10.0.0.1") {
		t.Fatalf("child row missing client's peer IP: %q", lines[2])
	}
}

// TestMarshalEmpty checks Marshal on no rows returns no error, the way
// an empty simulation run's export should behave.
func TestMarshalEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := snapshot.Marshal(nil, &buf); err != nil {
		t.Fatalf("Marshal(nil): %v", err)
	}
}
