// Package schedpolicy implements the four scheduler policy variants: how
// hosts and their event queues are partitioned across worker threads,
// and the push/pop/next-time contract every policy honors identically
// regardless of partitioning strategy. This is the capability-interface
// pattern: callers construct one concrete variant and talk to it only
// through Policy.
package schedpolicy

import (
	"math"

	"github.com/m-lab/netsim/netid"
	"github.com/m-lab/netsim/simevent"
	"github.com/m-lab/netsim/simlog"
	"github.com/m-lab/netsim/simmetrics"
)

// Infinite is the next-event time returned when a thread's queues are
// empty.
const Infinite int64 = math.MaxInt64

// Policy is the strategy object every scheduler variant implements.
type Policy interface {
	// AddHost assigns host to thread. Callers must only call this during
	// single-threaded setup, before any worker starts popping.
	AddHost(host netid.HostID, thread int)
	// AssignedHosts returns the hosts owned by thread.
	AssignedHosts(thread int) []netid.HostID
	// Push enqueues ev, addressed to dstHost, as observed by a worker
	// currently executing on behalf of srcHost. If the push crosses a
	// thread boundary and ev's time is less than roundEnd, the causality
	// clamp raises it to roundEnd before enqueue.
	Push(ev *simevent.Event, srcHost, dstHost netid.HostID, roundEnd int64)
	// Pop returns the next event for thread with time strictly less than
	// roundEnd, or (nil, false) if none is currently available.
	Pop(thread int, roundEnd int64) (*simevent.Event, bool)
	// NextTime returns the earliest time across thread's queues, or
	// Infinite if none are pending. Some variants require EndRound to
	// have been called first so deliveries made during the round are
	// visible.
	NextTime(thread int) int64
	// EndRound performs a policy's between-round maintenance for thread:
	// draining secondary queues into the primary, or resetting the
	// unprocessed/processed host sweep.
	EndRound(thread int)
}

func less(a, b *simevent.Event) bool { return a.Time() < b.Time() }

// hostTable tracks host -> owning-thread assignment and thread ->
// assigned-hosts, built once during setup and read-only afterward.
type hostTable struct {
	hostThread map[netid.HostID]int
	assigned   map[int][]netid.HostID
}

func newHostTable() *hostTable {
	return &hostTable{
		hostThread: make(map[netid.HostID]int),
		assigned:   make(map[int][]netid.HostID),
	}
}

func (h *hostTable) add(host netid.HostID, thread int) {
	h.hostThread[host] = thread
	h.assigned[thread] = append(h.assigned[thread], host)
}

func (h *hostTable) threadOf(host netid.HostID) int { return h.hostThread[host] }

func (h *hostTable) hostsOf(thread int) []netid.HostID {
	out := h.assigned[thread]
	cp := make([]netid.HostID, len(out))
	copy(cp, out)
	return cp
}

// clamp raises ev's time to roundEnd when the push crosses threads and
// the event's time would otherwise fall inside the current round,
// logging and counting the adjustment (spec's causality rule).
func clamp(ev *simevent.Event, srcThread, dstThread int, roundEnd int64, log *simlog.Logger) {
	if srcThread == dstThread {
		return
	}
	if ev.ClampTo(roundEnd) {
		simmetrics.CausalityClamps.Inc()
		if log != nil {
			log.Info().Int("dst_thread", dstThread).Int64("round_end", roundEnd).Log("clamped event time to round end")
		}
	}
}

// assertMonotone panics on a non-monotone pop within a thread — an
// internal invariant violation, fatal per the error-handling design.
func assertMonotone(last *int64, haveLast *bool, ev *simevent.Event) {
	if *haveLast && ev.Time() < *last {
		panic("schedpolicy: non-monotone event time popped within thread")
	}
	*last = ev.Time()
	*haveLast = true
}
