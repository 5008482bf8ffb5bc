// Package roundbarrier implements the three-phase latch that
// coordinates worker threads and the driver across a bounded-time
// round: execute-events, collect-info, and prepare. It's built directly
// on sync.WaitGroup, the same primitive the teacher's worker pools
// (saver.NewMarshaller) use to rendezvous goroutines — a WaitGroup's
// Wait already gives every caller a barrier release the instant the
// last Done() lands, which is exactly the execute-events and
// collect-info semantics need.
package roundbarrier

import (
	"math"
	"sync"

	"github.com/m-lab/netsim/simlog"
)

// Infinite stands in for the round state's "+infinity" next-event time.
const Infinite int64 = math.MaxInt64

// Round is the shared state for one round: its end time (exclusive),
// the minimum next-event time folded in by workers as they exhaust
// their queues, and the handoff to whatever comes after it — either the
// next Round, or simulation termination.
type Round struct {
	end int64

	foldMu  sync.Mutex
	minNext int64

	executeEvents sync.WaitGroup
	collectInfo   sync.WaitGroup

	nextReady  chan struct{}
	next       *Round
	terminated bool
}

// End is this round's exclusive upper bound; no event with time >= End
// may be popped while this round is active.
func (r *Round) End() int64 { return r.end }

// FoldMinNext atomically lowers the round's running minimum next-event
// time. Each worker calls this exactly once per round, with its own
// policy.NextTime(thread) result, after crossing the execute-events
// barrier and before crossing collect-info.
func (r *Round) FoldMinNext(t int64) {
	r.foldMu.Lock()
	if t < r.minNext {
		r.minNext = t
	}
	r.foldMu.Unlock()
}

// MinNext returns the folded minimum. Only safe to read after every
// worker has crossed ArriveCollectInfo for this round (the driver
// enforces this by calling AwaitCollectInfo first).
func (r *Round) MinNext() int64 {
	r.foldMu.Lock()
	defer r.foldMu.Unlock()
	return r.minNext
}

// ArriveExecuteEvents is called by a worker once its pop has returned
// none for this round. It blocks until every worker has arrived.
func (r *Round) ArriveExecuteEvents() {
	r.executeEvents.Done()
	r.executeEvents.Wait()
}

// ArriveCollectInfo is called by a worker after folding its next-event
// time. It blocks until every worker has arrived, at which point the
// driver's AwaitCollectInfo (which does not itself count down) also
// unblocks — MinNext is then safe to read.
func (r *Round) ArriveCollectInfo() {
	r.collectInfo.Done()
	r.collectInfo.Wait()
}

// AwaitNext blocks until the driver has decided what comes after this
// round, returning either the next Round to execute, or (nil, true) if
// the simulation is terminating.
func (r *Round) AwaitNext() (next *Round, terminated bool) {
	<-r.nextReady
	if r.terminated {
		return nil, true
	}
	return r.next, false
}

// RoundBarrier owns the global scheduler lock's share of state: whether
// the simulation is still running, and the currently active round.
type RoundBarrier struct {
	mu       sync.Mutex
	nWorkers int
	running  bool
	cur      *Round
	log      *simlog.Logger
}

// New constructs a RoundBarrier for nWorkers worker threads.
func New(nWorkers int, log *simlog.Logger) *RoundBarrier {
	return &RoundBarrier{nWorkers: nWorkers, log: log}
}

func newRound(end int64, n int) *Round {
	r := &Round{end: end, minNext: Infinite, nextReady: make(chan struct{})}
	r.executeEvents.Add(n)
	r.collectInfo.Add(n)
	return r
}

// FirstRound starts the simulation's first round, ending at windowEnd.
// Called once by the driver before any worker begins popping.
func (b *RoundBarrier) FirstRound(windowEnd int64) *Round {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = true
	r := newRound(windowEnd, b.nWorkers)
	b.cur = r
	return r
}

// AwaitCollectInfo blocks until every worker has crossed
// ArriveCollectInfo for prev, after which prev.MinNext() is safe to
// read. The driver — not one of the nWorkers — calls this without ever
// calling Done, relying on sync.WaitGroup.Wait's multi-waiter release.
func (b *RoundBarrier) AwaitCollectInfo(prev *Round) {
	prev.collectInfo.Wait()
}

// AdvanceRound is called by the driver after AwaitCollectInfo: it picks
// the next round's end time, wires prev's handoff to it, and releases
// every worker waiting in prev.AwaitNext.
func (b *RoundBarrier) AdvanceRound(prev *Round, windowEnd int64) *Round {
	b.mu.Lock()
	next := newRound(windowEnd, b.nWorkers)
	b.cur = next
	b.mu.Unlock()

	prev.next = next
	close(prev.nextReady)
	if b.log != nil {
		b.log.Info().Int64("round_end", windowEnd).Log("advanced round")
	}
	return next
}

// Terminate is called by the driver instead of AdvanceRound once
// isRunning should become false: it releases every worker waiting in
// prev.AwaitNext with terminated=true, so they proceed to shut down
// rather than starting another round.
func (b *RoundBarrier) Terminate(prev *Round) {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()

	prev.terminated = true
	close(prev.nextReady)
	if b.log != nil {
		b.log.Info().Log("simulation terminating")
	}
}

// Running reports whether the simulation is still accepting rounds.
func (b *RoundBarrier) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}
