package lock

import "testing"

func TestReleaseTrackerCounts(t *testing.T) {
	tr := NewReleaseTracker(2)
	if got := tr.Snapshot(0); got != 0 {
		t.Fatalf("Snapshot(0) = %d, want 0", got)
	}
	tr.Increment(0)
	tr.Increment(0)
	tr.Increment(1)
	if got := tr.Snapshot(0); got != 2 {
		t.Fatalf("Snapshot(0) = %d, want 2", got)
	}
	if got := tr.Snapshot(1); got != 1 {
		t.Fatalf("Snapshot(1) = %d, want 1", got)
	}
}

func TestReleaseTrackerIgnoresOutOfRange(t *testing.T) {
	tr := NewReleaseTracker(2)
	tr.Increment(5)
	tr.Increment(-1)
	if got := tr.Snapshot(5); got != 0 {
		t.Fatalf("Snapshot(5) = %d, want 0", got)
	}
	if got := tr.Snapshot(-1); got != 0 {
		t.Fatalf("Snapshot(-1) = %d, want 0", got)
	}
}
