package engine

import (
	"time"

	"github.com/m-lab/netsim/roundbarrier"
	"github.com/m-lab/netsim/simmetrics"
	"golang.org/x/sync/errgroup"
)

// Run drives the simulation from t=0 to simEnd (nanoseconds), using
// nWorkers goroutines if the Facade was built with nWorkers > 0, or the
// calling goroutine alone if it was built with nWorkers == 0. hooks may
// be nil, equivalent to NopHooks.
func (f *Facade) Run(simEnd int64, hooks HostHooks) error {
	if hooks == nil {
		hooks = NopHooks{}
	}
	if f.nWorkers <= 0 {
		f.runSerial(simEnd, hooks)
		return nil
	}
	return f.runParallel(simEnd, hooks)
}

// runSerial is the nWorkers == 0 path: a single global queue, no round
// barrier, no goroutines. The window concept collapses to "everything
// up to simEnd" since there is no second thread for causality to
// protect against.
func (f *Facade) runSerial(simEnd int64, hooks HostHooks) {
	f.curRoundEnd[0] = simEnd
	hosts := f.assignedHostIDs(0)
	for _, h := range hosts {
		hooks.Boot(h)
	}
	for {
		ev, ok := f.policy.Pop(0, simEnd)
		if !ok {
			break
		}
		f.nowByThread[0] = ev.Time()
		simmetrics.EventsPopped.WithLabelValues(f.policyName).Inc()
		ev.Deliver()
	}
	for _, h := range hosts {
		hooks.Shutdown(h)
	}
}

// runParallel is the nWorkers > 0 path: spec §4.5's driver loop, built
// directly on roundbarrier.RoundBarrier. Each round's worker pool is an
// errgroup, the idiomatic Go counterpart of the teacher's
// goroutine+WaitGroup pools (saver.NewMarshaller, eventsocket.Server.
// Serve) — errgroup's Wait propagates the first worker's return value,
// which here is always nil: a worker that hits an internal invariant
// violation re-panics instead of returning an error (see
// runWorkerRecovered), so Wait's error is only ever nil or the process
// is already gone.
func (f *Facade) runParallel(simEnd int64, hooks HostHooks) error {
	barrier := roundbarrier.New(f.nWorkers, f.log)
	safeDelta := f.safeDeltaNanos()

	firstEnd := min64(safeDelta, simEnd)
	round := barrier.FirstRound(firstEnd)

	var g errgroup.Group
	for t := 0; t < f.nWorkers; t++ {
		thread := t
		g.Go(func() error {
			return runWorkerRecovered(f, thread, round, hooks)
		})
	}

	roundStart := time.Now()
	for {
		barrier.AwaitCollectInfo(round)
		simmetrics.RoundDurationHistogram.Observe(time.Since(roundStart).Seconds())

		minNext := round.MinNext()
		done := minNext >= roundbarrier.Infinite || round.End() >= simEnd
		if done {
			barrier.Terminate(round)
			break
		}

		windowEnd := min64(minNext+safeDelta, simEnd)
		simmetrics.RoundWindowHistogram.Observe(float64(windowEnd - round.End()))
		roundStart = time.Now()
		round = barrier.AdvanceRound(round, windowEnd)
	}

	return g.Wait()
}

// runWorkerRecovered runs a worker's loop, logging before re-raising
// any panic an internal invariant violation produces — a fatal log
// line followed by process abort, exactly what an invariant violation
// calls for. It never swallows the panic into a plain error: errgroup
// would otherwise let the other workers run on past a host whose state
// is no longer trustworthy.
func runWorkerRecovered(f *Facade, thread int, round *roundbarrier.Round, hooks HostHooks) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if f.log != nil {
				f.log.Info().Int("thread", thread).Log("worker panicked")
			}
			panic(r)
		}
	}()
	f.runWorker(thread, round, hooks)
	return nil
}
