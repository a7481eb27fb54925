// Package tcp implements the Bus over plain TCP sockets: one transient
// connection per outbound message, newline-framed text records, and a
// bootstrap handshake that retries each peer until it answers.
package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Heartseater/archi-dist-lab0/bus"
	"github.com/Heartseater/archi-dist-lab0/metrics"
	"github.com/Heartseater/archi-dist-lab0/wire"
)

const (
	defaultDialTimeout = 500 * time.Millisecond
	defaultRetryDelay  = 100 * time.Millisecond
)

// Options configures a Transport.
type Options struct {
	Self    int
	Table   bus.Table
	Handler bus.Handler

	DialTimeout time.Duration // per-send dial and write budget (default 500ms)
	RetryDelay  time.Duration // bootstrap retry interval (default 100ms)
	Logger      *log.Logger
}

// Stats counts transport traffic since startup.
type Stats struct {
	Sent     uint64
	Dropped  uint64
	Received uint64
}

// Transport is a TCP implementation of bus.Bus. The listener is bound at
// construction; Run serves it until the context is canceled, joining
// every connection reader before returning.
type Transport struct {
	opts Options
	ln   net.Listener
	log  *log.Logger

	sent     atomic.Uint64
	dropped  atomic.Uint64
	received atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

// New binds the local listener and returns the transport. The listen
// address is the port of the caller's own table entry on the wildcard
// host, so the table may carry externally visible names.
func New(opts Options) (*Transport, error) {
	if opts.Handler == nil {
		return nil, errors.New("tcp: nil handler")
	}
	ep, ok := opts.Table.Endpoint(opts.Self)
	if !ok {
		return nil, fmt.Errorf("tcp: self peer %d not in address table", opts.Self)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	_, port, err := net.SplitHostPort(ep)
	if err != nil {
		return nil, fmt.Errorf("tcp: bad endpoint %q for peer %d: %w", ep, opts.Self, err)
	}
	ln, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return nil, fmt.Errorf("tcp: failed to listen on port %s: %w", port, err)
	}

	return &Transport{opts: opts, ln: ln, log: opts.Logger}, nil
}

// Addr returns the bound listener address.
func (t *Transport) Addr() net.Addr {
	return t.ln.Addr()
}

// Send writes one message to the given peer over a fresh connection. An
// unreachable peer drops the message silently; only an id absent from
// the table is reported as an error.
func (t *Transport) Send(ctx context.Context, peer int, msg wire.Message) error {
	ep, ok := t.opts.Table.Endpoint(peer)
	if !ok {
		return fmt.Errorf("%w: %d", bus.ErrUnknownPeer, peer)
	}

	d := net.Dialer{Timeout: t.opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", ep)
	if err != nil {
		t.dropped.Add(1)
		metrics.SendFailureCounter.Inc()
		return nil
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(t.opts.DialTimeout))
	if _, err := fmt.Fprintf(conn, "%s\n", msg.Encode()); err != nil {
		t.dropped.Add(1)
		metrics.SendFailureCounter.Inc()
		return nil
	}
	t.sent.Add(1)
	return nil
}

// Broadcast sends the message to every peer in the table except self.
func (t *Transport) Broadcast(ctx context.Context, msg wire.Message) error {
	for p := 0; p < t.opts.Table.Peers(); p++ {
		if p == t.opts.Self {
			continue
		}
		if err := t.Send(ctx, p, msg); err != nil {
			return err
		}
	}
	return nil
}

// Bootstrap announces this peer to every other peer, redialing each one
// until it accepts. It returns once every peer has been greeted or the
// context is canceled.
func (t *Transport) Bootstrap(ctx context.Context) error {
	hello := wire.Hello{Peer: t.opts.Self}
	for p := 0; p < t.opts.Table.Peers(); p++ {
		if p == t.opts.Self {
			continue
		}
		ep, _ := t.opts.Table.Endpoint(p)
		if err := t.greet(ctx, ep, hello); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) greet(ctx context.Context, ep string, hello wire.Hello) error {
	d := net.Dialer{Timeout: t.opts.DialTimeout}
	for {
		conn, err := d.DialContext(ctx, "tcp", ep)
		if err == nil {
			_ = conn.SetWriteDeadline(time.Now().Add(t.opts.DialTimeout))
			_, werr := fmt.Fprintf(conn, "%s\n", hello.Encode())
			_ = conn.Close()
			if werr == nil {
				t.sent.Add(1)
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.opts.RetryDelay):
		}
	}
}

// Run accepts inbound connections until the context is canceled. Each
// connection gets its own reader that hands complete lines to the
// handler; all readers are joined before Run returns.
func (t *Transport) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		return t.Close()
	})

	g.Go(func() error {
		for {
			conn, err := t.ln.Accept()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return nil
				}
				t.log.Printf("tcp: accept: %v", err)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(t.opts.RetryDelay):
				}
				continue
			}
			g.Go(func() error {
				t.serve(ctx, conn)
				return nil
			})
		}
	})

	return g.Wait()
}

func (t *Transport) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		t.received.Add(1)
		t.opts.Handler(sc.Text())
	}
}

// Close shuts the listener down. Safe to call more than once.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.ln.Close()
	})
	return t.closeErr
}

// Stats returns traffic counts since startup.
func (t *Transport) Stats() Stats {
	return Stats{
		Sent:     t.sent.Load(),
		Dropped:  t.dropped.Load(),
		Received: t.received.Load(),
	}
}
