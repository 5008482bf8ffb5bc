package schedpolicy

import (
	"sync"

	"github.com/m-lab/netsim/netid"
	"github.com/m-lab/netsim/pqueue"
	"github.com/m-lab/netsim/simevent"
)

// secondaryTable holds, per receiving thread, a set of locked queues
// keyed by K (sender thread, for thread-per-thread; sender host, for
// thread-per-host) — so a receiver-side lock is contended by at most the
// calling sender and the owning thread draining it between rounds.
type secondaryTable[K comparable] struct {
	mu    sync.Mutex
	byKey map[K]*lockedQueue
}

func newSecondaryTable[K comparable]() *secondaryTable[K] {
	return &secondaryTable[K]{byKey: make(map[K]*lockedQueue)}
}

func (s *secondaryTable[K]) queueFor(key K) *lockedQueue {
	s.mu.Lock()
	lq, ok := s.byKey[key]
	if !ok {
		lq = newLockedQueue()
		s.byKey[key] = lq
	}
	s.mu.Unlock()
	return lq
}

// drainInto pops every entry out of every secondary queue and pushes it
// into dst, called by the owning thread between rounds.
func (s *secondaryTable[K]) drainInto(dst *pqueue.Queue[netid.EventID, *simevent.Event]) {
	s.mu.Lock()
	queues := make([]*lockedQueue, 0, len(s.byKey))
	for _, lq := range s.byKey {
		queues = append(queues, lq)
	}
	s.mu.Unlock()

	for _, lq := range queues {
		lq.mu.Lock()
		for {
			ev, ok := lq.q.Pop()
			if !ok {
				break
			}
			dst.Push(ev.ID(), ev)
		}
		lq.mu.Unlock()
	}
}
