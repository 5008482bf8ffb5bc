// Package engine is the scheduler façade: it owns a schedpolicy.Policy
// and a roundbarrier.RoundBarrier, assigns hosts to worker threads once
// at construction, and drives the round loop described in spec §4.5 —
// pre-round window selection, parallel execute-events, fold-min-next,
// and the advance-or-terminate decision — so callers never touch
// schedpolicy or roundbarrier directly.
package engine

import (
	"math/rand"

	"github.com/m-lab/netsim/netid"
	"github.com/m-lab/netsim/schedpolicy"
	"github.com/m-lab/netsim/simlog"
	"github.com/m-lab/netsim/topology"
)

// msInNanos converts a millisecond figure (the unit topology.Oracle and
// tcpstate both report in) into the simulator's nanosecond clock.
const msInNanos = 1_000_000

// HostHooks lets a caller boot and shut down the hosts a worker thread
// owns, at the edges of a Run call. What boot/shutdown actually do
// (spawning listeners, wiring application code) is entirely the
// caller's concern — the façade only guarantees each host's hooks run
// on the thread that owns it, exactly once, in that order.
type HostHooks interface {
	Boot(host netid.HostID)
	Shutdown(host netid.HostID)
}

// NopHooks is a HostHooks that does nothing, for callers that boot
// their hosts before constructing a Facade and have nothing to tear
// down afterward.
type NopHooks struct{}

func (NopHooks) Boot(netid.HostID)     {}
func (NopHooks) Shutdown(netid.HostID) {}

// Facade is a constructed scheduler ready to run. It is built once per
// simulation: host assignment is frozen for the Facade's lifetime,
// matching the no-rebalancing design (spec §9).
type Facade struct {
	policy     schedpolicy.Policy
	policyName string
	oracle     topology.Oracle
	nWorkers   int
	log        *simlog.Logger

	hostThread map[netid.HostID]int

	// curRoundEnd and nowByThread are each written only by the thread
	// they're indexed by, from inside that thread's own Deliver() call
	// stack (or, before the first event, its Boot call) — never shared
	// across threads — so Push and Now need no locking to read them.
	curRoundEnd []int64
	nowByThread []int64
}

// New builds a Facade over policy, assigning hosts to nWorkers worker
// threads by Fisher–Yates shuffling hosts with seed and then
// round-robining the shuffled order across threads. nWorkers == 0
// selects the serial-global variant: Run then executes every event on
// the calling goroutine, matching policy's own single-thread contract.
// policyName labels the EventsPopped metric; it should match whichever
// schedpolicy constructor built policy (e.g. "host-single").
func New(policy schedpolicy.Policy, policyName string, oracle topology.Oracle, hosts []netid.HostID, nWorkers int, seed int64, log *simlog.Logger) *Facade {
	threads := nWorkers
	if threads <= 0 {
		threads = 1
	}
	shuffled := append([]netid.HostID(nil), hosts...)
	rng := rand.New(rand.NewSource(seed))
	for i := len(shuffled) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	hostThread := make(map[netid.HostID]int, len(shuffled))
	for i, h := range shuffled {
		thread := i % threads
		policy.AddHost(h, thread)
		hostThread[h] = thread
	}
	return &Facade{
		policy:      policy,
		policyName:  policyName,
		oracle:      oracle,
		nWorkers:    nWorkers,
		log:         log,
		hostThread:  hostThread,
		curRoundEnd: make([]int64, threads),
		nowByThread: make([]int64, threads),
	}
}

// safeDeltaNanos is the minimum network latency known to the topology
// oracle, converted to nanoseconds — the look-ahead bound no round
// window may exceed past its start, per spec §4.5.
func (f *Facade) safeDeltaNanos() int64 {
	ms := f.oracle.MinLatencyGlobal()
	if ms <= 0 {
		ms = 1
	}
	return int64(ms * msInNanos)
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
