// Package lock implements distributed mutual exclusion over logical
// clocks: every peer queues all pending claims in (timestamp, peer)
// order and enters the critical section only once its own claim heads
// the queue and every peer has acknowledged it. No coordinator exists;
// the guarantee follows from all peers agreeing on the same total order.
package lock
