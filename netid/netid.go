// Package netid allocates the identities used across the simulator: host
// ids are caller-assigned 32-bit values (stable for the simulation's
// lifetime, per the host ownership model), while event and connection ids
// are generated globally-unique, roughly-sortable values so logs and
// metrics can correlate a flow across threads without a central counter.
package netid

import (
	"github.com/rs/xid"
)

// HostID identifies a simulated host. Callers assign these; the simulator
// never generates one on its own, since host identity must remain stable
// across the process that built the topology.
type HostID uint32

// EventID uniquely identifies a scheduled Event, for priority-queue
// membership tests and log correlation.
type EventID = xid.ID

// ConnID uniquely identifies a TCP connection (including children spawned
// off a listening socket), for log correlation and metrics labeling.
type ConnID = xid.ID

// NewEventID returns a fresh, globally-unique event identity.
func NewEventID() EventID {
	return xid.New()
}

// NewConnID returns a fresh, globally-unique connection identity.
func NewConnID() ConnID {
	return xid.New()
}
