package schedpolicy

import (
	"sync"

	"github.com/m-lab/netsim/netid"
	"github.com/m-lab/netsim/pqueue"
	"github.com/m-lab/netsim/simevent"
	"github.com/m-lab/netsim/simlog"
)

// lockedQueue is a per-host priority queue guarded by its own mutex, so
// a push from any thread and a pop by the owning thread never race.
type lockedQueue struct {
	mu sync.Mutex
	q  *pqueue.Queue[netid.EventID, *simevent.Event]
}

func newLockedQueue() *lockedQueue {
	return &lockedQueue{q: pqueue.New[netid.EventID, *simevent.Event](less)}
}

// hostSingle is the parallel host-single variant: every host has its
// own locked queue. Pop sweeps a thread's assigned hosts, draining each
// fully before moving to the next.
type hostSingle struct {
	table *hostTable
	log   *simlog.Logger

	mu     sync.Mutex // guards queues map population (AddHost only)
	queues map[netid.HostID]*lockedQueue

	posMu sync.Mutex
	order map[int][]netid.HostID // per-thread sweep order, set on first use
	pos   map[int]int            // per-thread cursor into order
	end   map[int]int64          // per-thread round_end the cursor was last used for

	lastMu sync.Mutex
	last   map[int]int64
	have   map[int]bool
}

// NewHostSingle constructs the parallel host-single policy variant.
func NewHostSingle(opts ...Option) Policy {
	cfg := newConfig(opts)
	return &hostSingle{
		table:  newHostTable(),
		log:    cfg.log,
		queues: make(map[netid.HostID]*lockedQueue),
		order:  make(map[int][]netid.HostID),
		pos:    make(map[int]int),
		end:    make(map[int]int64),
		last:   make(map[int]int64),
		have:   make(map[int]bool),
	}
}

func (p *hostSingle) AddHost(host netid.HostID, thread int) {
	p.table.add(host, thread)
	p.mu.Lock()
	p.queues[host] = newLockedQueue()
	p.mu.Unlock()
}

func (p *hostSingle) AssignedHosts(thread int) []netid.HostID { return p.table.hostsOf(thread) }

func (p *hostSingle) Push(ev *simevent.Event, srcHost, dstHost netid.HostID, roundEnd int64) {
	srcThread, dstThread := p.table.threadOf(srcHost), p.table.threadOf(dstHost)
	clamp(ev, srcThread, dstThread, roundEnd, p.log)

	p.mu.Lock()
	lq := p.queues[dstHost]
	p.mu.Unlock()

	lq.mu.Lock()
	lq.q.Push(ev.ID(), ev)
	lq.mu.Unlock()
}

func (p *hostSingle) order_(thread int) []netid.HostID {
	p.posMu.Lock()
	defer p.posMu.Unlock()
	o, ok := p.order[thread]
	if !ok {
		o = p.table.hostsOf(thread)
		p.order[thread] = o
	}
	return o
}

func (p *hostSingle) Pop(thread int, roundEnd int64) (*simevent.Event, bool) {
	order := p.order_(thread)
	p.posMu.Lock()
	if p.end[thread] != roundEnd {
		// A later round_end starts a new round: every host is unprocessed again.
		p.end[thread] = roundEnd
		p.pos[thread] = 0
	}
	p.posMu.Unlock()
	for {
		p.posMu.Lock()
		pos := p.pos[thread]
		if pos >= len(order) {
			p.posMu.Unlock()
			return nil, false
		}
		p.posMu.Unlock()

		host := order[pos]
		p.mu.Lock()
		lq := p.queues[host]
		p.mu.Unlock()

		lq.mu.Lock()
		ev, ok := lq.q.Peek()
		if ok && ev.Time() < roundEnd {
			ev, _ = lq.q.Pop()
			lq.mu.Unlock()
			p.lastMu.Lock()
			last, have := p.last[thread], p.have[thread]
			assertMonotone(&last, &have, ev)
			p.last[thread], p.have[thread] = last, have
			p.lastMu.Unlock()
			return ev, true
		}
		lq.mu.Unlock()

		// This host is drained for the round; move on to the next.
		p.posMu.Lock()
		if p.pos[thread] == pos {
			p.pos[thread]++
		}
		p.posMu.Unlock()
	}
}

func (p *hostSingle) NextTime(thread int) int64 {
	best := Infinite
	for _, host := range p.order_(thread) {
		p.mu.Lock()
		lq := p.queues[host]
		p.mu.Unlock()

		lq.mu.Lock()
		if ev, ok := lq.q.Peek(); ok && ev.Time() < best {
			best = ev.Time()
		}
		lq.mu.Unlock()
	}
	return best
}

// EndRound moves every host in this thread's sweep back to
// "unprocessed" by resetting the cursor, per the unprocessed/processed
// bucket swap.
func (p *hostSingle) EndRound(thread int) {
	p.posMu.Lock()
	p.pos[thread] = 0
	p.posMu.Unlock()
}
