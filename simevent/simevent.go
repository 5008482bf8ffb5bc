// Package simevent defines Event, the opaque timestamped unit of work the
// scheduler moves between hosts. An Event is created by whatever emits it
// (typically tcpstate, on behalf of a connection), owned by whichever
// queue currently holds it, and consumed exactly once — by a worker's
// pop, or dropped unexecuted on shutdown.
package simevent

import "github.com/m-lab/netsim/netid"

// Kind classifies an Event's payload, for logging and metrics only — the
// scheduler never branches on it. The work itself is the run func given
// to New, executed by Deliver.
type Kind uint8

const (
	// KindPacket is a packet arriving at its destination host.
	KindPacket Kind = iota
	// KindTimer is a scheduled callback firing (retransmit timeout,
	// delayed ack, close timer, ...).
	KindTimer
	// KindControl is host or connection lifecycle plumbing that isn't
	// packet- or timer-shaped (e.g. a boot/shutdown notification).
	KindControl
)

func (k Kind) String() string {
	switch k {
	case KindPacket:
		return "packet"
	case KindTimer:
		return "timer"
	case KindControl:
		return "control"
	default:
		return "unknown"
	}
}

// Event is targeted at exactly one destination host and carries the work
// to run when a worker delivers it. Its time field must only be mutated
// by a scheduler policy applying the causality clamp — every other field
// is immutable after construction.
type Event struct {
	id   netid.EventID
	dst  netid.HostID
	time int64 // nanoseconds of simulated time
	kind Kind
	run  func()
}

// New constructs an Event targeted at dst, deliverable at time t
// (nanoseconds), running run when delivered.
func New(dst netid.HostID, t int64, kind Kind, run func()) *Event {
	return &Event{
		id:   netid.NewEventID(),
		dst:  dst,
		time: t,
		kind: kind,
		run:  run,
	}
}

// ID is this Event's identity, used by the priority queue's membership
// test and idempotent push.
func (e *Event) ID() netid.EventID { return e.id }

// Dst is the host this Event is targeted at.
func (e *Event) Dst() netid.HostID { return e.dst }

// Time is this Event's current delivery time.
func (e *Event) Time() int64 { return e.time }

// Kind is this Event's payload discriminant.
func (e *Event) Kind() Kind { return e.kind }

// Deliver runs the event's work. Callers (worker loops) must invoke this
// exactly once per Event.
func (e *Event) Deliver() { e.run() }

// ClampTo raises e's delivery time to roundEnd if it is currently less
// than roundEnd, and reports whether it did so. It exists on Event only
// so schedpolicy implementations have a single, auditable place that
// mutates time after construction; no other package should call it.
func (e *Event) ClampTo(roundEnd int64) (clamped bool) {
	if e.time < roundEnd {
		e.time = roundEnd
		return true
	}
	return false
}
