package lock

import (
	"math"
	"sync"
)

// ackFloor sits below any valid timestamp, so a freshly reset tracker
// never satisfies the grant condition on its own.
const ackFloor = math.MinInt64

// AckTracker keeps, per peer, the last acknowledgment timestamp seen for
// the local peer's current outstanding request. Acknowledgments are
// correlated to that request by its timestamp: anything answering an
// earlier request is dropped.
type AckTracker struct {
	mu    sync.Mutex
	seen  []int64
	forTS int64
}

// NewAckTracker returns a tracker for the given number of peers. Until
// the first Reset no acknowledgment correlates, so strays arriving
// before any request are dropped.
func NewAckTracker(peers int) *AckTracker {
	t := &AckTracker{seen: make([]int64, peers), forTS: ackFloor}
	for i := range t.seen {
		t.seen[i] = ackFloor
	}
	return t
}

// Reset starts a new round for the request issued by self at ts. Every
// peer's entry drops to the floor, then self is credited with its own
// request timestamp; a peer trusts its own request without a round-trip.
func (t *AckTracker) Reset(self int, ts int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.seen {
		t.seen[i] = ackFloor
	}
	t.seen[self] = ts
	t.forTS = ts
}

// Record stores the acknowledgment timestamp from a peer, overwriting
// any earlier value. It reports whether the acknowledgment counted:
// acks answering a request other than the current round's, or from an
// unknown peer, are dropped.
func (t *AckTracker) Record(from int, ackTS, forTS int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if forTS != t.forTS {
		return false
	}
	if from < 0 || from >= len(t.seen) {
		return false
	}
	t.seen[from] = ackTS
	return true
}

// AllAtLeast reports whether every peer's entry is at least target.
func (t *AckTracker) AllAtLeast(target int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ts := range t.seen {
		if ts < target {
			return false
		}
	}
	return true
}
