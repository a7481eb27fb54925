package lock

import "testing"

func queueEquals(t *testing.T, q *Queue, want []Request) {
	t.Helper()
	got := q.Snapshot()
	if len(got) != len(want) {
		t.Fatalf("queue = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("queue = %v, want %v", got, want)
		}
	}
}

func TestQueueInsertKeepsGrantOrder(t *testing.T) {
	q := NewQueue()
	q.Insert(5, 2)
	q.Insert(3, 1)
	q.Insert(7, 0)
	queueEquals(t, q, []Request{{TS: 3, Peer: 1}, {TS: 5, Peer: 2}, {TS: 7, Peer: 0}})
}

func TestQueueTieBreaksByPeer(t *testing.T) {
	q := NewQueue()
	q.Insert(4, 2)
	q.Insert(4, 0)
	q.Insert(4, 1)
	queueEquals(t, q, []Request{{TS: 4, Peer: 0}, {TS: 4, Peer: 1}, {TS: 4, Peer: 2}})
	if !q.IsHead(4, 0) {
		t.Fatalf("IsHead(4, 0) = false, want true")
	}
	if q.IsHead(4, 1) {
		t.Fatalf("IsHead(4, 1) = true, want false")
	}
}

func TestQueueInsertReplacesSamePeer(t *testing.T) {
	q := NewQueue()
	q.Insert(3, 1)
	q.Insert(5, 0)
	q.Insert(9, 1)
	queueEquals(t, q, []Request{{TS: 5, Peer: 0}, {TS: 9, Peer: 1}})
}

func TestQueueRemoveExactMatchOnly(t *testing.T) {
	q := NewQueue()
	q.Insert(3, 1)
	q.Insert(5, 0)
	if q.Remove(3, 0) {
		t.Fatalf("Remove(3, 0) removed a mismatched entry")
	}
	if q.Remove(4, 1) {
		t.Fatalf("Remove(4, 1) removed a mismatched entry")
	}
	queueEquals(t, q, []Request{{TS: 3, Peer: 1}, {TS: 5, Peer: 0}})
	if !q.Remove(3, 1) {
		t.Fatalf("Remove(3, 1) missed the matching entry")
	}
	queueEquals(t, q, []Request{{TS: 5, Peer: 0}})
}

func TestQueueInsertRemoveRoundTrip(t *testing.T) {
	q := NewQueue()
	q.Insert(2, 0)
	q.Insert(6, 2)
	before := q.Snapshot()

	q.Insert(4, 1)
	q.Remove(4, 1)

	queueEquals(t, q, before)
}

func TestQueueHeadOfEmpty(t *testing.T) {
	q := NewQueue()
	if q.IsHead(1, 0) {
		t.Fatalf("IsHead on empty queue = true")
	}
	if _, ok := q.Head(); ok {
		t.Fatalf("Head on empty queue reported an entry")
	}
	if q.Len() != 0 {
		t.Fatalf("Len of empty queue = %d", q.Len())
	}
}

func TestQueueHead(t *testing.T) {
	q := NewQueue()
	q.Insert(8, 0)
	q.Insert(2, 1)
	head, ok := q.Head()
	if !ok || head != (Request{TS: 2, Peer: 1}) {
		t.Fatalf("Head() = %v, %v, want {2 1}, true", head, ok)
	}
}
