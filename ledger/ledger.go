// Package ledger records an append-only audit trail of lock cycles.
// Every cycle carries a token minted at request time, so the trail of
// one cycle can be followed across its requested, granted and released
// entries. Appends are best-effort from the agent's point of view and
// never gate the protocol itself.
package ledger

import (
	"context"
	"sync"
	"time"
)

// Event classifies a ledger entry.
type Event string

const (
	EventRequested Event = "requested"
	EventGranted   Event = "granted"
	EventReleased  Event = "released"
	EventAborted   Event = "aborted"
)

// Entry is one audit record of a lock cycle.
type Entry struct {
	Peer      int       `json:"peer"`
	RequestTS int64     `json:"request_ts"`
	Token     string    `json:"token"`
	Event     Event     `json:"event"`
	At        time.Time `json:"at"`
}

// Ledger is an append-only store of lock cycle events.
type Ledger interface {
	Append(ctx context.Context, e Entry) error
	History(ctx context.Context) ([]Entry, error)
}

// Memory implements Ledger in process memory.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{}
}

// Append implements Ledger.Append.
func (m *Memory) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return nil
}

// History implements Ledger.History, returning entries in append order.
func (m *Memory) History(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...), nil
}
