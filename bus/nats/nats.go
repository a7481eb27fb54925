// Package nats implements the Bus over a NATS server. Each peer owns
// one subject and every protocol line travels as a message payload, so
// the wire grammar is identical to the TCP transport's. Delivery is
// at-most-once: a peer not yet subscribed misses the message, which
// matches the best-effort send contract.
package nats

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/Heartseater/archi-dist-lab0/bus"
	"github.com/Heartseater/archi-dist-lab0/metrics"
	"github.com/Heartseater/archi-dist-lab0/wire"
)

const (
	defaultSubjectPrefix = "lamport"
	defaultFlushTimeout  = 2 * time.Second
)

// Options configures a Transport.
type Options struct {
	Self    int
	Peers   int
	Handler bus.Handler

	SubjectPrefix string        // default "lamport"
	FlushTimeout  time.Duration // per-operation flush budget (default 2s)
}

// Stats counts transport traffic since startup.
type Stats struct {
	Sent     uint64
	Dropped  uint64
	Received uint64
}

// Transport is a NATS implementation of bus.Bus on top of an existing
// connection. The caller owns the connection's lifetime.
type Transport struct {
	conn *nats.Conn
	opts Options
	sub  *nats.Subscription

	sent     atomic.Uint64
	dropped  atomic.Uint64
	received atomic.Uint64
}

// Connect dials a NATS server with the client options every peer uses:
// a recognizable client name and unbounded reconnects.
func Connect(url string, peer int) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(fmt.Sprintf("lamport-peer-%d", peer)),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: failed to connect to %s: %w", url, err)
	}
	return conn, nil
}

// New subscribes to this peer's subject on the given connection and
// returns the transport. Inbound lines flow to the handler from the
// subscription callback as soon as New returns.
func New(conn *nats.Conn, opts Options) (*Transport, error) {
	if opts.Handler == nil {
		return nil, fmt.Errorf("nats: nil handler")
	}
	if opts.Self < 0 || opts.Self >= opts.Peers {
		return nil, fmt.Errorf("nats: self peer %d outside [0, %d)", opts.Self, opts.Peers)
	}
	if opts.SubjectPrefix == "" {
		opts.SubjectPrefix = defaultSubjectPrefix
	}
	if opts.FlushTimeout == 0 {
		opts.FlushTimeout = defaultFlushTimeout
	}

	t := &Transport{conn: conn, opts: opts}
	sub, err := conn.Subscribe(subject(opts.SubjectPrefix, opts.Self), func(m *nats.Msg) {
		t.received.Add(1)
		t.opts.Handler(string(m.Data))
	})
	if err != nil {
		return nil, fmt.Errorf("nats: failed to subscribe: %w", err)
	}
	t.sub = sub
	return t, nil
}

func subject(prefix string, peer int) string {
	return fmt.Sprintf("%s.peer.%d", prefix, peer)
}

// Send publishes one message to the given peer's subject. Publish
// failures are counted and dropped, matching the best-effort contract.
func (t *Transport) Send(ctx context.Context, peer int, msg wire.Message) error {
	if err := t.publish(ctx, peer, msg); err != nil {
		return err
	}
	return t.flush(ctx)
}

// Broadcast publishes the message to every peer's subject except self,
// then flushes once.
func (t *Transport) Broadcast(ctx context.Context, msg wire.Message) error {
	for p := 0; p < t.opts.Peers; p++ {
		if p == t.opts.Self {
			continue
		}
		if err := t.publish(ctx, p, msg); err != nil {
			return err
		}
	}
	return t.flush(ctx)
}

// Bootstrap announces this peer on every other peer's subject. Peers
// subscribe at construction, so anyone already constructed hears it.
func (t *Transport) Bootstrap(ctx context.Context) error {
	return t.Broadcast(ctx, wire.Hello{Peer: t.opts.Self})
}

func (t *Transport) publish(ctx context.Context, peer int, msg wire.Message) error {
	if peer < 0 || peer >= t.opts.Peers {
		return fmt.Errorf("%w: %d", bus.ErrUnknownPeer, peer)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.conn.Publish(subject(t.opts.SubjectPrefix, peer), []byte(msg.Encode())); err != nil {
		t.dropped.Add(1)
		metrics.SendFailureCounter.Inc()
		return nil
	}
	t.sent.Add(1)
	return nil
}

func (t *Transport) flush(ctx context.Context) error {
	timeout := t.opts.FlushTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return ctx.Err()
	}
	if err := t.conn.FlushTimeout(timeout); err != nil {
		t.dropped.Add(1)
		metrics.SendFailureCounter.Inc()
	}
	return nil
}

// Run blocks until the context is canceled, then tears the
// subscription down.
func (t *Transport) Run(ctx context.Context) error {
	<-ctx.Done()
	return t.Close()
}

// Close drains this peer's subscription, letting in-flight callbacks
// finish. The underlying connection is left to its owner.
func (t *Transport) Close() error {
	if err := t.sub.Drain(); err != nil && err != nats.ErrConnectionClosed {
		return fmt.Errorf("nats: failed to drain subscription: %w", err)
	}
	return nil
}

// Stats returns traffic counts since startup.
func (t *Transport) Stats() Stats {
	return Stats{
		Sent:     t.sent.Load(),
		Dropped:  t.dropped.Load(),
		Received: t.received.Load(),
	}
}
