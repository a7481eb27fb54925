package lock

import "sync"

// ReleaseTracker counts release events per peer. Counters only grow and
// are never reset, so a waiter can capture a baseline and block until
// the next release of a given peer arrives, regardless of how many
// happened before.
type ReleaseTracker struct {
	mu     sync.Mutex
	counts []uint64
}

// NewReleaseTracker returns a tracker for the given number of peers.
func NewReleaseTracker(peers int) *ReleaseTracker {
	return &ReleaseTracker{counts: make([]uint64, peers)}
}

// Increment adds one release event for the peer. Out-of-range ids are
// ignored.
func (t *ReleaseTracker) Increment(peer int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if peer < 0 || peer >= len(t.counts) {
		return
	}
	t.counts[peer]++
}

// Snapshot returns the peer's current count. Out-of-range ids read as
// zero.
func (t *ReleaseTracker) Snapshot(peer int) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if peer < 0 || peer >= len(t.counts) {
		return 0
	}
	return t.counts[peer]
}
