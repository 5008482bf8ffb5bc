package simevent

import "testing"

func TestDeliverRunsExactlyOnce(t *testing.T) {
	count := 0
	e := New(1, 100, KindPacket, func() { count++ })
	e.Deliver()
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestClampToRaisesOnlyWhenLess(t *testing.T) {
	e := New(1, 100, KindTimer, func() {})
	if clamped := e.ClampTo(50); clamped {
		t.Error("ClampTo should not clamp when roundEnd <= time")
	}
	if e.Time() != 100 {
		t.Errorf("Time() = %d, want unchanged 100", e.Time())
	}
	if clamped := e.ClampTo(150); !clamped {
		t.Error("ClampTo should clamp when roundEnd > time")
	}
	if e.Time() != 150 {
		t.Errorf("Time() = %d, want 150", e.Time())
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{KindPacket: "packet", KindTimer: "timer", KindControl: "control"}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", k, got, want)
		}
	}
}

func TestIdentityIsStableAcrossClamp(t *testing.T) {
	e := New(1, 0, KindControl, func() {})
	id := e.ID()
	e.ClampTo(10)
	if e.ID() != id {
		t.Error("ClampTo must not change event identity")
	}
}
