package engine

import (
	"github.com/m-lab/netsim/netid"
	"github.com/m-lab/netsim/roundbarrier"
	"github.com/m-lab/netsim/simlog"
	"github.com/m-lab/netsim/simmetrics"
)

// runWorker executes thread's share of one round and every round after
// it, folding its next-event time into each round's barrier and
// blocking for the driver's next-window decision in between, until the
// barrier reports termination. Boot runs once before the first round;
// Shutdown runs once after termination, both restricted to the hosts
// policy assigned to thread.
func (f *Facade) runWorker(thread int, round *roundbarrier.Round, hooks HostHooks) {
	hosts := f.policy.AssignedHosts(thread)
	f.curRoundEnd[thread] = round.End()
	for _, h := range hosts {
		hooks.Boot(h)
	}
	log := f.log
	if log != nil {
		log = simlog.WithHost(log, uint32(thread))
	}

	for {
		f.curRoundEnd[thread] = round.End()
		for {
			ev, ok := f.policy.Pop(thread, round.End())
			if !ok {
				break
			}
			f.nowByThread[thread] = ev.Time()
			simmetrics.EventsPopped.WithLabelValues(f.policyName).Inc()
			ev.Deliver()
		}
		round.ArriveExecuteEvents()

		f.policy.EndRound(thread)
		round.FoldMinNext(f.policy.NextTime(thread))
		round.ArriveCollectInfo()

		next, terminated := round.AwaitNext()
		if terminated {
			for _, h := range hosts {
				hooks.Shutdown(h)
			}
			if log != nil {
				log.Info().Int("thread", thread).Log("worker shut down")
			}
			return
		}
		round = next
	}
}

// assignedHostIDs is a small convenience used by tests and by serial
// Run, where there is exactly one thread and no goroutine to own it.
func (f *Facade) assignedHostIDs(thread int) []netid.HostID {
	return f.policy.AssignedHosts(thread)
}
