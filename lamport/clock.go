// Package lamport provides the scalar logical clock that orders every
// message and request in the lock protocol. The clock advances on each
// local send and synchronizes past every timestamp observed on inbound
// messages, yielding a causal order that becomes total once ties are
// broken by peer id.
package lamport

import "sync/atomic"

// Clock is a monotonically non-decreasing Lamport clock safe for
// concurrent use. The zero value is a clock at time 0, ready to use.
type Clock struct {
	time atomic.Int64
}

// NewClock returns a clock initialized to zero.
func NewClock() *Clock {
	return &Clock{}
}

// Time returns the current clock value without advancing it.
func (c *Clock) Time() int64 {
	return c.time.Load()
}

// Tick advances the clock by one and returns the new value. It is called
// immediately before constructing any outbound message.
func (c *Clock) Tick() int64 {
	return c.time.Add(1)
}

// Observe merges a timestamp seen on an inbound message: when remote is at
// least the current value the clock jumps to remote+1, otherwise it is left
// unchanged. It returns the resulting clock value.
func (c *Clock) Observe(remote int64) int64 {
	for {
		current := c.time.Load()
		if remote < current {
			return current
		}
		if c.time.CompareAndSwap(current, remote+1) {
			return remote + 1
		}
	}
}
