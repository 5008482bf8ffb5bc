package schedpolicy

import (
	"github.com/m-lab/netsim/netid"
	"github.com/m-lab/netsim/pqueue"
	"github.com/m-lab/netsim/simevent"
)

// serialGlobal is the nWorkers=0 variant: a single global priority
// queue. Only the driver thread ever calls Push/Pop, so no locking is
// needed at all.
type serialGlobal struct {
	table    *hostTable
	q        *pqueue.Queue[netid.EventID, *simevent.Event]
	last     int64
	haveLast bool
}

// NewSerialGlobal constructs the serial-global policy variant.
func NewSerialGlobal() Policy {
	return &serialGlobal{
		table: newHostTable(),
		q:     pqueue.New[netid.EventID, *simevent.Event](less),
	}
}

func (s *serialGlobal) AddHost(host netid.HostID, thread int) { s.table.add(host, thread) }

func (s *serialGlobal) AssignedHosts(thread int) []netid.HostID { return s.table.hostsOf(thread) }

func (s *serialGlobal) Push(ev *simevent.Event, srcHost, dstHost netid.HostID, roundEnd int64) {
	// A single thread ever runs events, so cross-thread causality clamps
	// never apply here.
	s.q.Push(ev.ID(), ev)
}

func (s *serialGlobal) Pop(thread int, roundEnd int64) (*simevent.Event, bool) {
	ev, ok := s.q.Peek()
	if !ok || ev.Time() >= roundEnd {
		return nil, false
	}
	ev, _ = s.q.Pop()
	assertMonotone(&s.last, &s.haveLast, ev)
	return ev, true
}

func (s *serialGlobal) NextTime(thread int) int64 {
	if ev, ok := s.q.Peek(); ok {
		return ev.Time()
	}
	return Infinite
}

func (s *serialGlobal) EndRound(thread int) {}
