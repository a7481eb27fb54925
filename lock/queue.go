package lock

import (
	"sort"
	"sync"
)

// Request is a pending claim on the resource.
type Request struct {
	TS   int64
	Peer int
}

// Less reports whether r precedes other in the total grant order:
// ascending timestamp, ties broken by ascending peer id.
func (r Request) Less(other Request) bool {
	if r.TS != other.TS {
		return r.TS < other.TS
	}
	return r.Peer < other.Peer
}

// Queue holds the pending requests of all peers, sorted in grant order.
// A peer has at most one entry: inserting for a peer already present
// replaces its previous entry.
type Queue struct {
	mu      sync.Mutex
	entries []Request
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Insert adds the request, keeping the queue sorted and dropping any
// previous entry of the same peer.
func (q *Queue) Insert(ts int64, peer int) {
	r := Request{TS: ts, Peer: peer}
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.Peer == peer {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	i := sort.Search(len(q.entries), func(i int) bool {
		return r.Less(q.entries[i])
	})
	q.entries = append(q.entries, Request{})
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = r
}

// Remove drops the exact matching entry and reports whether it was
// present. A miss is a no-op.
func (q *Queue) Remove(ts int64, peer int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.TS == ts && e.Peer == peer {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// IsHead reports whether the given request is the queue's minimum.
func (q *Queue) IsHead(ts int64, peer int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return false
	}
	return q.entries[0].TS == ts && q.entries[0].Peer == peer
}

// Head returns the queue's minimum entry, if any.
func (q *Queue) Head() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return Request{}, false
	}
	return q.entries[0], true
}

// Len returns the number of pending requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Snapshot returns the pending requests in grant order.
func (q *Queue) Snapshot() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Request(nil), q.entries...)
}
