package tally

import (
	"reflect"
	"testing"

	"github.com/m-lab/netsim/wire"
)

func TestFastRetransmitOnThirdDupAck(t *testing.T) {
	ta := New()
	ta.Update(1000, 5000, false) // initial cumulative ack, not a dup
	flags := ta.Update(1000, 5000, true)
	if flags&DataAcked != 0 {
		t.Errorf("dup ack should not report DataAcked")
	}
	ta.Update(1000, 5000, true)
	if got := ta.NumLostRanges(); got != 0 {
		t.Fatalf("NumLostRanges after 2 dup acks = %d, want 0", got)
	}
	ta.Update(1000, 5000, true) // third dup ack triggers fast retransmit
	if got := ta.NumLostRanges(); got != 1 {
		t.Fatalf("NumLostRanges after 3rd dup ack = %d, want 1", got)
	}
	var out []wire.Range
	ta.PopulateLostRanges(&out)
	want := []wire.Range{{Begin: 1000, End: 5000}}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("lost ranges = %v, want %v", out, want)
	}
}

func TestAckAdvanceResetsDupCount(t *testing.T) {
	ta := New()
	ta.Update(1000, 5000, false)
	ta.Update(1000, 5000, true)
	ta.Update(1000, 5000, true)
	ta.Update(2000, 5000, false) // cumulative ack advances before 3rd dup
	if ta.DupAckCount() != 0 {
		t.Errorf("DupAckCount = %d, want 0 after advance", ta.DupAckCount())
	}
	ta.Update(2000, 5000, true)
	ta.Update(2000, 5000, true)
	if got := ta.NumLostRanges(); got != 0 {
		t.Fatalf("NumLostRanges = %d, want 0 (only 2 dup acks since advance)", got)
	}
}

func TestMarkSackedRemovesFromLost(t *testing.T) {
	ta := New()
	ta.MarkLost(100, 200)
	ta.MarkSacked([]wire.Range{{Begin: 150, End: 180}})
	var out []wire.Range
	ta.PopulateLostRanges(&out)
	want := []wire.Range{{Begin: 100, End: 150}, {Begin: 180, End: 200}}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("lost ranges = %v, want %v", out, want)
	}
}

func TestMarkRetransmittedRemovesFromLost(t *testing.T) {
	ta := New()
	ta.MarkLost(100, 200)
	ta.MarkRetransmitted(100, 200)
	if got := ta.NumLostRanges(); got != 0 {
		t.Fatalf("NumLostRanges = %d, want 0 after full retransmit", got)
	}
}

func TestClearRetransmittedReintroducesLoss(t *testing.T) {
	ta := New()
	ta.MarkLost(100, 200)
	ta.MarkRetransmitted(100, 200)
	ta.ClearRetransmitted()
	if got := ta.NumLostRanges(); got != 1 {
		t.Fatalf("NumLostRanges = %d, want 1 after clearing retransmitted", got)
	}
}

func TestAckAdvanceTrimsAllSets(t *testing.T) {
	ta := New()
	ta.MarkLost(100, 300)
	ta.MarkSacked([]wire.Range{{Begin: 250, End: 280}})
	ta.MarkRetransmitted(100, 150)
	ta.Update(200, 400, false)

	var out []wire.Range
	ta.PopulateLostRanges(&out)
	for _, r := range out {
		if r.Begin < 200 {
			t.Errorf("lost range %v not trimmed to ack floor 200", r)
		}
	}
}

func TestAddRangeCoalescesAdjacentAndOverlapping(t *testing.T) {
	rs := addRange(nil, wire.Range{Begin: 10, End: 20})
	rs = addRange(rs, wire.Range{Begin: 20, End: 30}) // adjacent, should merge
	rs = addRange(rs, wire.Range{Begin: 50, End: 60})
	rs = addRange(rs, wire.Range{Begin: 25, End: 55}) // bridges the gap
	want := []wire.Range{{Begin: 10, End: 60}}
	if !reflect.DeepEqual(rs, want) {
		t.Errorf("coalesced = %v, want %v", rs, want)
	}
}

func TestSubtractSplitsMiddle(t *testing.T) {
	a := []wire.Range{{Begin: 0, End: 100}}
	b := []wire.Range{{Begin: 40, End: 60}}
	got := subtract(a, b)
	want := []wire.Range{{Begin: 0, End: 40}, {Begin: 60, End: 100}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("subtract = %v, want %v", got, want)
	}
}

func TestSubtractTouchingEndpointsNoOp(t *testing.T) {
	a := []wire.Range{{Begin: 0, End: 50}}
	b := []wire.Range{{Begin: 50, End: 100}}
	got := subtract(a, b)
	if !reflect.DeepEqual(got, a) {
		t.Errorf("subtract with touching endpoints = %v, want unchanged %v", got, a)
	}
}

func TestDataSackedFlagReflectsOutstandingSacks(t *testing.T) {
	ta := New()
	flags := ta.Update(0, 100, false)
	if flags&DataSacked != 0 {
		t.Errorf("DataSacked set with no sacks recorded")
	}
	ta.MarkSacked([]wire.Range{{Begin: 10, End: 20}})
	flags = ta.Update(0, 100, false)
	if flags&DataSacked == 0 {
		t.Errorf("DataSacked not set with an outstanding sack")
	}
}
