package pqueue

import "testing"

func intLess(a, b int) bool { return a < b }

func TestPushPopOrdering(t *testing.T) {
	q := New[string, int](intLess)
	vals := map[string]int{"a": 5, "b": 1, "c": 3, "d": 2, "e": 4}
	for k, v := range vals {
		if !q.Push(k, v) {
			t.Errorf("expected Push(%q) to insert", k)
		}
	}
	var got []int
	for q.Len() > 0 {
		v, ok := q.Pop()
		if !ok {
			t.Fatal("Pop returned false while Len() > 0")
		}
		got = append(got, v)
	}
	want := []int{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPushExistingIdentityReheapifies(t *testing.T) {
	q := New[string, int](intLess)
	q.Push("x", 10)
	q.Push("y", 20)

	inserted := q.Push("x", 1) // lower value, same identity
	if inserted {
		t.Error("re-pushing an existing identity should report not-inserted")
	}
	if q.Len() != 2 {
		t.Fatalf("cardinality changed on re-push: Len()=%d", q.Len())
	}
	v, ok := q.Peek()
	if !ok || v != 1 {
		t.Errorf("Peek() = %v, %v; want 1, true", v, ok)
	}
}

func TestFindReturnsOriginalIdentityHandle(t *testing.T) {
	q := New[string, int](intLess)
	q.Push("k", 42)
	v, ok := q.Find("k")
	if !ok || v != 42 {
		t.Errorf("Find(%q) = %v, %v; want 42, true", "k", v, ok)
	}
	if _, ok := q.Find("missing"); ok {
		t.Error("Find of absent key should report false")
	}
}

func TestPeekDoesNotRemove(t *testing.T) {
	q := New[string, int](intLess)
	q.Push("a", 1)
	q.Peek()
	if q.Len() != 1 {
		t.Errorf("Peek should not mutate cardinality, Len()=%d", q.Len())
	}
}

func TestPopEmpty(t *testing.T) {
	q := New[string, int](intLess)
	if _, ok := q.Pop(); ok {
		t.Error("Pop on empty queue should report false")
	}
}

func TestRemove(t *testing.T) {
	q := New[string, int](intLess)
	q.Push("a", 1)
	q.Push("b", 2)
	if !q.Remove("a") {
		t.Error("Remove(a) should report true")
	}
	if q.Remove("a") {
		t.Error("second Remove(a) should report false")
	}
	v, ok := q.Pop()
	if !ok || v != 2 {
		t.Errorf("after Remove(a), Pop() = %v, %v; want 2, true", v, ok)
	}
}

func TestClear(t *testing.T) {
	q := New[string, int](intLess)
	for i := 0; i < 10; i++ {
		q.Push(string(rune('a'+i)), i)
	}
	q.Clear()
	if q.Len() != 0 {
		t.Errorf("Clear left Len()=%d", q.Len())
	}
	if _, ok := q.Find("a"); ok {
		t.Error("Clear left a stale identity entry")
	}
}

func TestCapacityContractsOnDrain(t *testing.T) {
	q := New[int, int](intLess)
	const n = 1000
	for i := 0; i < n; i++ {
		q.Push(i, i)
	}
	growCap := cap(q.entries)
	if growCap <= InitialCapacity {
		t.Fatalf("expected capacity to grow past %d, got %d", InitialCapacity, growCap)
	}
	for i := 0; i < n-5; i++ {
		if _, ok := q.Pop(); !ok {
			t.Fatal("unexpected empty queue mid-drain")
		}
	}
	if cap(q.entries) >= growCap {
		t.Errorf("expected capacity to contract from %d, got %d", growCap, cap(q.entries))
	}
	if cap(q.entries) < InitialCapacity {
		t.Errorf("capacity contracted below InitialCapacity: %d", cap(q.entries))
	}
}

func TestIndexInvariantAcrossSwaps(t *testing.T) {
	q := New[int, int](intLess)
	for i := 20; i > 0; i-- {
		q.Push(i, i)
	}
	for k, pos := range q.index {
		if q.entries[pos].key != k {
			t.Fatalf("index invariant broken: index[%d]=%d but entries[%d].key=%d", k, pos, pos, q.entries[pos].key)
		}
	}
	q.Pop()
	for k, pos := range q.index {
		if q.entries[pos].key != k {
			t.Fatalf("index invariant broken after Pop: index[%d]=%d but entries[%d].key=%d", k, pos, pos, q.entries[pos].key)
		}
	}
}
