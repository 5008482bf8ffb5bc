// Package topology defines the external latency/bandwidth oracle the
// scheduler and TCP autotuning consult, plus one deterministic in-memory
// implementation (Static) good enough to drive tests and examples. The
// real oracle — topology discovery, live measurement — lives outside
// this module; Oracle is the seam it plugs in through.
package topology

import "github.com/m-lab/netsim/netid"

// Oracle answers latency and bandwidth questions the scheduler and TCP
// connections need. Implementations must be safe to call concurrently
// from any worker and must return deterministic values for the same
// inputs — workers on different threads must agree without coordinating.
type Oracle interface {
	// Latency returns the one-way latency between src and dst, in
	// milliseconds. Never returns 0; a true zero-latency path is raised
	// to 1ms, since a zero-latency round-trip breaks the round barrier's
	// look-ahead guarantee.
	Latency(src, dst netid.HostID) float64
	// BandwidthUp returns host's upstream bandwidth in KiB/s.
	BandwidthUp(host netid.HostID) float64
	// BandwidthDown returns host's downstream bandwidth in KiB/s.
	BandwidthDown(host netid.HostID) float64
	// MinLatencyGlobal returns the minimum latency, in milliseconds,
	// between any two distinct hosts known to the oracle. The scheduler
	// uses this as safe_delta.
	MinLatencyGlobal() float64
}

// edge is a directed host pair, used as a map key for the distance and
// bandwidth tables.
type edge struct {
	src, dst netid.HostID
}

// Static is a deterministic Oracle backed by an explicit distance
// matrix and per-host bandwidth table, populated once at construction
// and never mutated afterward.
type Static struct {
	latency   map[edge]float64
	bwUp      map[netid.HostID]float64
	bwDown    map[netid.HostID]float64
	minEdge   map[netid.HostID]float64 // min outgoing edge latency per host, for self-loop fallback
	minGlobal float64
}

// NewStatic builds a Static oracle. latencyMs maps an ordered host pair
// to its one-way latency in milliseconds; bandwidth maps each host to
// its (up, down) KiB/s. Hosts with no self-entry in latencyMs fall back
// to 2×their minimum outgoing edge latency when asked for their own
// self-loop latency, per the topology's self-loop convention.
func NewStatic(latencyMs map[[2]netid.HostID]float64, bandwidth map[netid.HostID][2]float64) *Static {
	s := &Static{
		latency: make(map[edge]float64, len(latencyMs)),
		bwUp:    make(map[netid.HostID]float64, len(bandwidth)),
		bwDown:  make(map[netid.HostID]float64, len(bandwidth)),
		minEdge: make(map[netid.HostID]float64),
	}
	for host, bw := range bandwidth {
		s.bwUp[host] = bw[0]
		s.bwDown[host] = bw[1]
	}
	s.minGlobal = -1
	for pair, ms := range latencyMs {
		e := edge{src: pair[0], dst: pair[1]}
		s.latency[e] = ms
		if pair[0] != pair[1] {
			if cur, ok := s.minEdge[pair[0]]; !ok || ms < cur {
				s.minEdge[pair[0]] = ms
			}
			if s.minGlobal < 0 || ms < s.minGlobal {
				s.minGlobal = ms
			}
		}
	}
	if s.minGlobal < 0 {
		s.minGlobal = 1
	}
	return s
}

// Latency implements Oracle.
func (s *Static) Latency(src, dst netid.HostID) float64 {
	var ms float64
	if v, ok := s.latency[edge{src: src, dst: dst}]; ok {
		ms = v
	} else if src == dst {
		// No explicit self-edge: fall back to 2x the cheapest outgoing
		// edge, the topology's documented self-loop convention.
		ms = 2 * s.minEdge[src]
	}
	if ms <= 0 {
		ms = 1
	}
	return ms
}

// BandwidthUp implements Oracle.
func (s *Static) BandwidthUp(host netid.HostID) float64 { return s.bwUp[host] }

// BandwidthDown implements Oracle.
func (s *Static) BandwidthDown(host netid.HostID) float64 { return s.bwDown[host] }

// MinLatencyGlobal implements Oracle.
func (s *Static) MinLatencyGlobal() float64 { return s.minGlobal }
