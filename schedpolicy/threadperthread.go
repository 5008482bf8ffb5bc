package schedpolicy

import (
	"sync"

	"github.com/m-lab/netsim/netid"
	"github.com/m-lab/netsim/pqueue"
	"github.com/m-lab/netsim/simevent"
	"github.com/m-lab/netsim/simlog"
)

// threadPerThread gives each thread a primary queue it owns lock-free,
// plus one secondary queue per sending thread, so a cross-thread push
// only ever contends with the one other thread it's between.
type threadPerThread struct {
	table *hostTable
	log   *simlog.Logger

	mu        sync.Mutex
	primary   map[int]*pqueue.Queue[netid.EventID, *simevent.Event]
	secondary map[int]*secondaryTable[int] // receiver thread -> sender thread -> queue

	lastMu sync.Mutex
	last   map[int]int64
	have   map[int]bool
}

// NewThreadPerThread constructs the parallel thread-per-thread policy
// variant.
func NewThreadPerThread(opts ...Option) Policy {
	cfg := newConfig(opts)
	return &threadPerThread{
		table:     newHostTable(),
		log:       cfg.log,
		primary:   make(map[int]*pqueue.Queue[netid.EventID, *simevent.Event]),
		secondary: make(map[int]*secondaryTable[int]),
		last:      make(map[int]int64),
		have:      make(map[int]bool),
	}
}

func (p *threadPerThread) primaryFor(thread int) *pqueue.Queue[netid.EventID, *simevent.Event] {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.primary[thread]
	if !ok {
		q = pqueue.New[netid.EventID, *simevent.Event](less)
		p.primary[thread] = q
	}
	return q
}

func (p *threadPerThread) secondaryFor(thread int) *secondaryTable[int] {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.secondary[thread]
	if !ok {
		s = newSecondaryTable[int]()
		p.secondary[thread] = s
	}
	return s
}

func (p *threadPerThread) AddHost(host netid.HostID, thread int) {
	p.table.add(host, thread)
	p.primaryFor(thread)
}

func (p *threadPerThread) AssignedHosts(thread int) []netid.HostID { return p.table.hostsOf(thread) }

func (p *threadPerThread) Push(ev *simevent.Event, srcHost, dstHost netid.HostID, roundEnd int64) {
	srcThread, dstThread := p.table.threadOf(srcHost), p.table.threadOf(dstHost)
	if srcThread == dstThread {
		p.primaryFor(dstThread).Push(ev.ID(), ev)
		return
	}
	clamp(ev, srcThread, dstThread, roundEnd, p.log)
	lq := p.secondaryFor(dstThread).queueFor(srcThread)
	lq.mu.Lock()
	lq.q.Push(ev.ID(), ev)
	lq.mu.Unlock()
}

func (p *threadPerThread) Pop(thread int, roundEnd int64) (*simevent.Event, bool) {
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

func (p *threadPerThread) NextTime(thread int) int64 {
	if ev, ok := p.primaryFor(thread).Peek(); ok {
		return ev.Time()
	}
	return Infinite
}

// EndRound drains every secondary queue addressed to thread into its
// primary, making cross-thread deliveries from the round just ended
// visible for the next one.
func (p *threadPerThread) EndRound(thread int) {
	p.secondaryFor(thread).drainInto(p.primaryFor(thread))
}
