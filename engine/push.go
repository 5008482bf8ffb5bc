package engine

import (
	"github.com/m-lab/netsim/netid"
	"github.com/m-lab/netsim/simevent"
)

// Now returns the simulated time as of the event currently executing
// on host's owning thread — the network delivery layer's notion of
// "now" for whichever host called in, per spec §6's external
// interfaces. It is only meaningful when called synchronously from
// within a Boot hook or an event's Deliver(), on the thread that owns
// host; calling it from anywhere else returns a stale value.
func (f *Facade) Now(host netid.HostID) int64 {
	return f.nowByThread[f.hostThread[host]]
}

// Push schedules run to execute on dstHost's owning thread at
// simulated time at, as a push made on behalf of srcHost (the host
// whose event is currently executing). It applies the causality clamp
// itself, via the policy, using the pushing thread's current round end
// — exactly the cross-thread guarantee spec §4.3 requires network
// delivery to honor. Intended for a tcpstate.Environment implementation
// to schedule a Transmit's delivery or a ScheduleTimer's callback.
func (f *Facade) Push(srcHost, dstHost netid.HostID, at int64, kind simevent.Kind, run func()) {
	srcThread := f.hostThread[srcHost]
	roundEnd := f.curRoundEnd[srcThread]
	ev := simevent.New(dstHost, at, kind, run)
	f.policy.Push(ev, srcHost, dstHost, roundEnd)
}
