// Package tally implements the retransmit tally: the per-connection
// bookkeeping that decides which sequence ranges are currently
// considered lost and therefore eligible for retransmission on the next
// flush. It tracks four half-open sequence-range sets — marked-lost,
// sacked, retransmitted, and their derived difference, lost — coalescing
// on every mutation so none of them grow unbounded with the number of
// packets sent.
package tally

import "github.com/m-lab/netsim/wire"

// UpdateFlags reports what an Update call observed.
type UpdateFlags uint8

const (
	// DataAcked is set when the cumulative ack advanced.
	DataAcked UpdateFlags = 1 << iota
	// DataSacked is set when there is currently any outstanding sacked
	// range (selective ack information this connection hasn't yet fully
	// subsumed via a cumulative ack advance).
	DataSacked
)

// Tally holds a connection's loss-tracking state.
type Tally struct {
	markedLost    []wire.Range
	sacked        []wire.Range
	retransmitted []wire.Range

	lastAck      uint32
	lastAckValid bool
	dupCount     int
}

// New returns an empty Tally.
func New() *Tally { return &Tally{} }

// Update advances the tally's view of acknowledged data. lastCumAck is
// the latest cumulative ack observed; highestSentPlus1 is one past the
// highest sequence number ever sent; isDupAck indicates the incoming
// packet was a duplicate ack (no new cumulative data acked). Three
// consecutive duplicate acks promote [lastAck, highestSentPlus1) into
// marked-lost — fast retransmit.
func (t *Tally) Update(lastCumAck, highestSentPlus1 uint32, isDupAck bool) UpdateFlags {
	var flags UpdateFlags

	advanced := !t.lastAckValid || lastCumAck > t.lastAck
	if advanced {
		t.lastAck = lastCumAck
		t.lastAckValid = true
		t.dupCount = 0
		flags |= DataAcked
		// Acked data can no longer be lost, sacked, or retransmitted.
		t.markedLost = trimBelow(t.markedLost, lastCumAck)
		t.sacked = trimBelow(t.sacked, lastCumAck)
		t.retransmitted = trimBelow(t.retransmitted, lastCumAck)
	} else if isDupAck {
		t.dupCount++
		if t.dupCount == 3 && highestSentPlus1 > lastCumAck {
			t.MarkLost(lastCumAck, highestSentPlus1)
		}
	}

	if len(t.sacked) > 0 {
		flags |= DataSacked
	}
	return flags
}

// MarkSacked records each block as selectively acknowledged.
func (t *Tally) MarkSacked(sacks []wire.Range) {
	for _, r := range sacks {
		t.sacked = addRange(t.sacked, r)
	}
}

// MarkLost records [begin, end) as lost.
func (t *Tally) MarkLost(begin, end uint32) {
	t.markedLost = addRange(t.markedLost, wire.Range{Begin: begin, End: end})
}

// MarkRetransmitted records [begin, end) as having been retransmitted.
func (t *Tally) MarkRetransmitted(begin, end uint32) {
	t.retransmitted = addRange(t.retransmitted, wire.Range{Begin: begin, End: end})
}

// ClearRetransmitted discards the retransmitted set, invoked on RTO: a
// retransmit that was itself lost must become eligible again.
func (t *Tally) ClearRetransmitted() {
	t.retransmitted = nil
}

// lost computes marked-lost ∖ (sacked ∪ retransmitted), which must hold
// after every operation.
func (t *Tally) lost() []wire.Range {
	return subtract(subtract(t.markedLost, t.sacked), t.retransmitted)
}

// NumLostRanges reports the number of currently-lost ranges.
func (t *Tally) NumLostRanges() int { return len(t.lost()) }

// PopulateLostRanges appends the currently-lost ranges to out, resetting
// it first. This mirrors the out-parameter style of the C6 contract so
// callers can reuse a backing slice across flush cycles.
func (t *Tally) PopulateLostRanges(out *[]wire.Range) {
	*out = append((*out)[:0], t.lost()...)
}

// DupAckCount returns the current run of consecutive duplicate acks.
func (t *Tally) DupAckCount() int { return t.dupCount }

// addRange inserts r into the sorted, coalesced range slice rs, merging
// with any overlapping or adjacent existing ranges.
func addRange(rs []wire.Range, r wire.Range) []wire.Range {
	if r.Empty() {
		return rs
	}
	out := make([]wire.Range, 0, len(rs)+1)
	inserted := false
	for _, cur := range rs {
		switch {
		case !inserted && r.Overlaps(cur):
			if cur.Begin < r.Begin {
				r.Begin = cur.Begin
			}
			if cur.End > r.End {
				r.End = cur.End
			}
		case !inserted && cur.Begin > r.End:
			out = append(out, r, cur)
			inserted = true
		default:
			out = append(out, cur)
		}
	}
	if !inserted {
		out = append(out, r)
	}
	return out
}

// trimBelow removes the portion of every range in rs that lies below
// floor, dropping ranges that fall entirely below it.
func trimBelow(rs []wire.Range, floor uint32) []wire.Range {
	out := rs[:0]
	for _, r := range rs {
		if r.End <= floor {
			continue
		}
		if r.Begin < floor {
			r.Begin = floor
		}
		out = append(out, r)
	}
	return out
}

// subtract returns a ∖ b: the portions of ranges in a not covered by any
// range in b. b may be in any order; the result keeps the order of a's
// ranges, so it is sorted ascending by Begin whenever a is.
func subtract(a, b []wire.Range) []wire.Range {
	result := append([]wire.Range(nil), a...)
	for _, cut := range b {
		result = subtractOne(result, cut)
	}
	return result
}

func subtractOne(rs []wire.Range, cut wire.Range) []wire.Range {
	out := make([]wire.Range, 0, len(rs))
	for _, r := range rs {
		if cut.End <= r.Begin || cut.Begin >= r.End {
			// No real overlap (touching endpoints don't subtract anything).
			out = append(out, r)
			continue
		}
		if cut.Begin > r.Begin {
			out = append(out, wire.Range{Begin: r.Begin, End: cut.Begin})
		}
		if cut.End < r.End {
			out = append(out, wire.Range{Begin: cut.End, End: r.End})
		}
	}
	return out
}
