package schedpolicy

import (
	"sync"

	"github.com/m-lab/netsim/netid"
	"github.com/m-lab/netsim/pqueue"
	"github.com/m-lab/netsim/simevent"
	"github.com/m-lab/netsim/simlog"
)

// threadPerHost is like threadPerThread, except the secondary queues
// receiving cross-thread deliveries are keyed by the sending host rather
// than the sending thread — a finer lock granularity when many hosts on
// the same thread send to the same destination thread.
type threadPerHost struct {
	table *hostTable
	log   *simlog.Logger

	mu        sync.Mutex
	primary   map[int]*pqueue.Queue[netid.EventID, *simevent.Event]
	secondary map[int]*secondaryTable[netid.HostID]

	lastMu sync.Mutex
	last   map[int]int64
	have   map[int]bool
}

// NewThreadPerHost constructs the parallel thread-per-host policy
// variant.
func NewThreadPerHost(opts ...Option) Policy {
	cfg := newConfig(opts)
	return &threadPerHost{
		table:     newHostTable(),
		log:       cfg.log,
		primary:   make(map[int]*pqueue.Queue[netid.EventID, *simevent.Event]),
		secondary: make(map[int]*secondaryTable[netid.HostID]),
		last:      make(map[int]int64),
		have:      make(map[int]bool),
	}
}

func (p *threadPerHost) primaryFor(thread int) *pqueue.Queue[netid.EventID, *simevent.Event] {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.primary[thread]
	if !ok {
		q = pqueue.New[netid.EventID, *simevent.Event](less)
		p.primary[thread] = q
	}
	return q
}

func (p *threadPerHost) secondaryFor(thread int) *secondaryTable[netid.HostID] {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.secondary[thread]
	if !ok {
		s = newSecondaryTable[netid.HostID]()
		p.secondary[thread] = s
	}
	return s
}

func (p *threadPerHost) AddHost(host netid.HostID, thread int) {
	p.table.add(host, thread)
	p.primaryFor(thread)
}

func (p *threadPerHost) AssignedHosts(thread int) []netid.HostID { return p.table.hostsOf(thread) }

func (p *threadPerHost) Push(ev *simevent.Event, srcHost, dstHost netid.HostID, roundEnd int64) {
	srcThread, dstThread := p.table.threadOf(srcHost), p.table.threadOf(dstHost)
	if srcThread == dstThread {
		p.primaryFor(dstThread).Push(ev.ID(), ev)
		return
	}
	clamp(ev, srcThread, dstThread, roundEnd, p.log)
	lq := p.secondaryFor(dstThread).queueFor(srcHost)
	lq.mu.Lock()
	lq.q.Push(ev.ID(), ev)
	lq.mu.Unlock()
}

func (p *threadPerHost) Pop(thread int, roundEnd int64) (*simevent.Event, bool) {
	q := p.primaryFor(thread)
	ev, ok := q.Peek()
	if !ok || ev.Time() >= roundEnd {
		return nil, false
	}
	ev, _ = q.Pop()

	p.lastMu.Lock()
	last, have := p.last[thread], p.have[thread]
	assertMonotone(&last, &have, ev)
	p.last[thread], p.have[thread] = last, have
	p.lastMu.Unlock()
	return ev, true
}

func (p *threadPerHost) NextTime(thread int) int64 {
	if ev, ok := p.primaryFor(thread).Peek(); ok {
		return ev.Time()
	}
	return Infinite
}

// EndRound drains every per-host secondary queue addressed to thread
// into its primary.
func (p *threadPerHost) EndRound(thread int) {
	p.secondaryFor(thread).drainInto(p.primaryFor(thread))
}
