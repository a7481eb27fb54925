// Package bus abstracts message delivery between peers. A Bus sends
// single protocol messages point-to-point or broadcast, runs a listener
// that hands every inbound line to a Handler, and performs the one-shot
// bootstrap handshake. Transports live in subpackages; Hub is an
// in-process implementation mainly for testing.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Heartseater/archi-dist-lab0/wire"
)

// DefaultBasePort is the first port of the deterministic localhost
// endpoint layout: peer i listens on DefaultBasePort+i.
const DefaultBasePort = 50000

var (
	// ErrUnknownPeer reports a send to an id absent from the address table.
	ErrUnknownPeer = errors.New("bus: unknown peer")
)

// Handler consumes one inbound line, without its trailing newline. It is
// invoked from transport goroutines and must be safe for concurrent use.
type Handler func(line string)

// Bus delivers protocol messages between peers addressed by integer id.
// Send and Broadcast are best-effort: an unreachable peer drops the
// message without retransmission. Run serves inbound traffic until the
// context is canceled.
type Bus interface {
	Send(ctx context.Context, peer int, msg wire.Message) error
	Broadcast(ctx context.Context, msg wire.Message) error
	Bootstrap(ctx context.Context) error
	Run(ctx context.Context) error
	Close() error
}

// Table maps peer ids to dialable endpoints. Ids are dense in [0, len).
type Table map[int]string

// Endpoint returns the endpoint of the given peer.
func (t Table) Endpoint(peer int) (string, bool) {
	ep, ok := t[peer]
	return ep, ok
}

// Peers returns the number of peers in the table.
func (t Table) Peers() int {
	return len(t)
}

// LocalTable builds the deterministic single-host layout for n peers:
// peer i at 127.0.0.1:basePort+i. A basePort of zero selects
// DefaultBasePort.
func LocalTable(n, basePort int) Table {
	if basePort == 0 {
		basePort = DefaultBasePort
	}
	t := make(Table, n)
	for i := 0; i < n; i++ {
		t[i] = fmt.Sprintf("127.0.0.1:%d", basePort+i)
	}
	return t
}

// ParseTable parses an explicit address table of the form
// "0=host:port,1=host:port,...". Ids must be dense in [0, n).
func ParseTable(s string) (Table, error) {
	t := make(Table)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, ep, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("bus: table entry %q: want id=host:port", entry)
		}
		peer, err := strconv.Atoi(id)
		if err != nil {
			return nil, fmt.Errorf("bus: table entry %q: bad peer id: %w", entry, err)
		}
		if _, dup := t[peer]; dup {
			return nil, fmt.Errorf("bus: duplicate peer id %d", peer)
		}
		t[peer] = ep
	}
	if len(t) == 0 {
		return nil, errors.New("bus: empty address table")
	}
	for i := 0; i < len(t); i++ {
		if _, ok := t[i]; !ok {
			return nil, fmt.Errorf("bus: address table missing peer %d", i)
		}
	}
	return t, nil
}

// Hub is an in-process Bus fabric mainly for testing: joined peers
// exchange messages through direct handler invocation, no sockets
// involved. Delivery is synchronous and preserves per-sender order.
type Hub struct {
	mu        sync.Mutex
	handlers  map[int]Handler
	delivered uint64
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{handlers: make(map[int]Handler)}
}

// Join registers a peer's handler and returns its Bus endpoint.
func (h *Hub) Join(peer int, handler Handler) Bus {
	h.mu.Lock()
	h.handlers[peer] = handler
	h.mu.Unlock()
	return &hubBus{hub: h, self: peer}
}

// Delivered returns the number of lines handed to handlers so far.
func (h *Hub) Delivered() uint64 {
	return atomic.LoadUint64(&h.delivered)
}

func (h *Hub) deliver(peer int, line string) error {
	h.mu.Lock()
	handler, ok := h.handlers[peer]
	h.mu.Unlock()
	if !ok {
		return ErrUnknownPeer
	}
	handler(line)
	atomic.AddUint64(&h.delivered, 1)
	return nil
}

func (h *Hub) others(self int) []int {
	h.mu.Lock()
	peers := make([]int, 0, len(h.handlers))
	for p := range h.handlers {
		if p != self {
			peers = append(peers, p)
		}
	}
	h.mu.Unlock()
	sort.Ints(peers)
	return peers
}

type hubBus struct {
	hub  *Hub
	self int
}

func (b *hubBus) Send(ctx context.Context, peer int, msg wire.Message) error {
	return b.hub.deliver(peer, msg.Encode())
}

func (b *hubBus) Broadcast(ctx context.Context, msg wire.Message) error {
	for _, p := range b.hub.others(b.self) {
		if err := b.hub.deliver(p, msg.Encode()); err != nil {
			return err
		}
	}
	return nil
}

func (b *hubBus) Bootstrap(ctx context.Context) error {
	return b.Broadcast(ctx, wire.Hello{Peer: b.self})
}

func (b *hubBus) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (b *hubBus) Close() error { return nil }
