package lock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Heartseater/archi-dist-lab0/bus"
	"github.com/Heartseater/archi-dist-lab0/lamport"
	"github.com/Heartseater/archi-dist-lab0/ledger"
	"github.com/Heartseater/archi-dist-lab0/metrics"
	"github.com/Heartseater/archi-dist-lab0/wire"
)

// MaxPeers bounds the number of peers one coordination group can hold.
const MaxPeers = 128

// ErrCycleInProgress reports a Lock call while an earlier cycle of the
// same agent is still running. A peer never holds two outstanding
// requests.
var ErrCycleInProgress = errors.New("lock: request cycle already in progress")

var tracer = otel.Tracer("github.com/Heartseater/archi-dist-lab0/lock")

// State enumerates the lock state machine's phases.
type State int32

const (
	StateIdle State = iota
	StateRequesting
	StateWaiting
	StateGranted
	StateReleasing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateWaiting:
		return "waiting"
	case StateGranted:
		return "granted"
	case StateReleasing:
		return "releasing"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// AgentOptions configures an Agent.
type AgentOptions struct {
	Self  int
	Peers int
	Bus   bus.Bus

	Executor Executor      // exclusive action, default Sleep
	Ledger   ledger.Ledger // optional audit trail
	Logger   *log.Logger   // default log.Default()
}

// Agent composes one peer's clock, request queue and trackers, and
// drives its lock state machine over the bus. HandleLine is the inbound
// side: it may run on any number of transport goroutines concurrently
// with one Lock or WaitRelease cycle.
type Agent struct {
	self  int
	n     int
	bus   bus.Bus
	exec  Executor
	trail ledger.Ledger
	log   *log.Logger

	clock    *lamport.Clock
	queue    *Queue
	acks     *AckTracker
	releases *ReleaseTracker

	busy   atomic.Bool
	state  atomic.Int32
	events *pulse
	hellos atomic.Uint64
}

// NewAgent validates the options and returns an idle agent.
func NewAgent(opts AgentOptions) (*Agent, error) {
	if opts.Peers < 1 || opts.Peers > MaxPeers {
		return nil, fmt.Errorf("lock: peer count %d outside [1, %d]", opts.Peers, MaxPeers)
	}
	if opts.Self < 0 || opts.Self >= opts.Peers {
		return nil, fmt.Errorf("lock: self id %d outside [0, %d)", opts.Self, opts.Peers)
	}
	if opts.Bus == nil {
		return nil, errors.New("lock: nil bus")
	}
	if opts.Executor == nil {
		opts.Executor = Sleep{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Agent{
		self:     opts.Self,
		n:        opts.Peers,
		bus:      opts.Bus,
		exec:     opts.Executor,
		trail:    opts.Ledger,
		log:      opts.Logger,
		clock:    lamport.NewClock(),
		queue:    NewQueue(),
		acks:     NewAckTracker(opts.Peers),
		releases: NewReleaseTracker(opts.Peers),
		events:   newPulse(),
	}, nil
}

// State returns the state machine's current phase.
func (a *Agent) State() State {
	return State(a.state.Load())
}

// Clock returns the agent's logical clock.
func (a *Agent) Clock() *lamport.Clock {
	return a.clock
}

// Pending returns the pending requests known to this agent, in grant
// order.
func (a *Agent) Pending() []Request {
	return a.queue.Snapshot()
}

// Hellos returns how many bootstrap handshakes this agent has seen.
func (a *Agent) Hellos() uint64 {
	return a.hellos.Load()
}

// ReleaseCount returns how many release events of the given peer this
// agent has observed.
func (a *Agent) ReleaseCount(peer int) uint64 {
	return a.releases.Snapshot(peer)
}

// HandleLine is the bus handler: it decodes one inbound line and applies
// it to the protocol state. Undecodable lines are dropped without state
// change.
func (a *Agent) HandleLine(line string) {
	msg, err := wire.Parse(line)
	if err != nil {
		metrics.MalformedCounter.Inc()
		return
	}
	switch m := msg.(type) {
	case wire.Hello:
		a.onHello(m)
	case wire.Request:
		a.onRequest(m)
	case wire.Ack:
		a.onAck(m)
	case wire.Release:
		a.onRelease(m)
	}
}

func (a *Agent) onHello(m wire.Hello) {
	a.hellos.Add(1)
	a.log.Printf("peer %d says hello", m.Peer)
}

func (a *Agent) onRequest(m wire.Request) {
	if m.Peer == a.self {
		// Own requests enter the queue in Lock, never via the bus.
		return
	}
	a.clock.Observe(m.TS)
	a.queue.Insert(m.TS, m.Peer)
	metrics.QueueDepthGauge.Set(float64(a.queue.Len()))
	ts := a.clock.Tick()
	_ = a.bus.Send(context.Background(), m.Peer, wire.Ack{TS: ts, From: a.self, ForTS: m.TS, ForPeer: m.Peer})
	metrics.AckCounter.Inc()
}

func (a *Agent) onAck(m wire.Ack) {
	a.clock.Observe(m.TS)
	if m.ForPeer != a.self {
		return
	}
	if a.acks.Record(m.From, m.TS, m.ForTS) {
		metrics.AckObservedCounter.Inc()
		a.events.wake()
	}
}

func (a *Agent) onRelease(m wire.Release) {
	a.clock.Observe(m.TS)
	a.queue.Remove(m.ReqTS, m.ReqPeer)
	metrics.QueueDepthGauge.Set(float64(a.queue.Len()))
	a.releases.Increment(m.ReqPeer)
	metrics.ReleaseCounter.Inc()
	a.events.wake()
}

// Lock runs one full request cycle: broadcast the claim, wait until it
// heads the queue and every peer has acknowledged it, run the exclusive
// action, release. It blocks until the release is broadcast. A failing
// action is logged and traced, never returned; the error reports the
// cycle's outcome only. Canceling the context while waiting withdraws
// the claim, and canceling it during the exclusive action still
// releases normally, so other peers never block on a dead claim.
func (a *Agent) Lock(ctx context.Context, duration int) error {
	if !a.busy.CompareAndSwap(false, true) {
		return ErrCycleInProgress
	}
	defer a.busy.Store(false)

	ctx, span := tracer.Start(ctx, "Agent.Lock", trace.WithAttributes(
		attribute.Int("lamport.peer", a.self),
		attribute.Int("lamport.duration_s", duration),
	))
	defer span.End()

	a.setState(StateRequesting)
	defer a.setState(StateIdle)

	token := uuid.NewString()
	ts := a.clock.Tick()
	a.queue.Insert(ts, a.self)
	metrics.QueueDepthGauge.Set(float64(a.queue.Len()))
	a.acks.Reset(a.self, ts)
	span.SetAttributes(
		attribute.Int64("lamport.request_ts", ts),
		attribute.String("lamport.token", token),
	)

	a.log.Printf("requesting lock (ts=%d)", ts)
	_ = a.bus.Broadcast(ctx, wire.Request{TS: ts, Peer: a.self})
	metrics.RequestCounter.Inc()
	a.audit(ctx, token, ts, ledger.EventRequested)

	a.setState(StateWaiting)
	if err := a.waitGranted(ctx, ts); err != nil {
		span.RecordError(err)
		a.withdraw(ctx, token, ts)
		return err
	}

	a.setState(StateGranted)
	metrics.GrantCounter.Inc()
	a.audit(ctx, token, ts, ledger.EventGranted)
	a.log.Printf("granted lock (ts=%d), holding for %ds", ts, duration)
	if err := a.exec.Execute(ctx, a.self, duration); err != nil {
		a.log.Printf("exclusive action: %v", err)
		span.RecordError(err)
	}

	a.setState(StateReleasing)
	// A context canceled during the exclusive action must not stop the
	// release; the claim would head every other queue forever.
	rctx := context.WithoutCancel(ctx)
	a.release(rctx, ts)
	a.audit(rctx, token, ts, ledger.EventReleased)
	a.log.Printf("released lock (ts=%d)", ts)
	return nil
}

// WaitRelease blocks until the given peer's next release event strictly
// after the call began. A release that happened earlier does not count.
func (a *Agent) WaitRelease(ctx context.Context, peer int) error {
	if peer < 0 || peer >= a.n {
		return fmt.Errorf("lock: peer %d outside [0, %d)", peer, a.n)
	}
	ctx, span := tracer.Start(ctx, "Agent.WaitRelease", trace.WithAttributes(
		attribute.Int("lamport.peer", a.self),
		attribute.Int("lamport.target_peer", peer),
	))
	defer span.End()

	baseline := a.releases.Snapshot(peer)
	for {
		ch := a.events.wait()
		if a.releases.Snapshot(peer) > baseline {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *Agent) waitGranted(ctx context.Context, ts int64) error {
	for {
		ch := a.events.wait()
		if a.queue.IsHead(ts, a.self) && a.acks.AllAtLeast(ts) {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *Agent) release(ctx context.Context, ts int64) {
	a.queue.Remove(ts, a.self)
	metrics.QueueDepthGauge.Set(float64(a.queue.Len()))
	rel := a.clock.Tick()
	_ = a.bus.Broadcast(ctx, wire.Release{TS: rel, ReqTS: ts, ReqPeer: a.self})
	a.releases.Increment(a.self)
	metrics.ReleaseCounter.Inc()
	a.events.wake()
}

// withdraw retracts a claim whose wait was abandoned. The release runs
// on an uncancelable context so the retraction still reaches the other
// peers.
func (a *Agent) withdraw(ctx context.Context, token string, ts int64) {
	a.setState(StateReleasing)
	wctx := context.WithoutCancel(ctx)
	a.release(wctx, ts)
	a.audit(wctx, token, ts, ledger.EventAborted)
	a.log.Printf("withdrew lock request (ts=%d)", ts)
}

func (a *Agent) audit(ctx context.Context, token string, ts int64, event ledger.Event) {
	if a.trail == nil {
		return
	}
	e := ledger.Entry{Peer: a.self, RequestTS: ts, Token: token, Event: event, At: time.Now().UTC()}
	if err := a.trail.Append(ctx, e); err != nil {
		a.log.Printf("ledger append: %v", err)
	}
}

func (a *Agent) setState(s State) {
	a.state.Store(int32(s))
	metrics.StateGauge.Set(float64(s))
}

// pulse is a broadcast wakeup shared by every handler that can advance a
// waiting cycle. Waiters grab the current channel before re-checking
// their predicate, then sleep on it; wake closes the channel and
// installs a fresh one, so a wakeup landing between check and sleep is
// never lost.
type pulse struct {
	mu sync.Mutex
	ch chan struct{}
}

func newPulse() *pulse {
	return &pulse{ch: make(chan struct{})}
}

func (p *pulse) wait() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch
}

func (p *pulse) wake() {
	p.mu.Lock()
	close(p.ch)
	p.ch = make(chan struct{})
	p.mu.Unlock()
}
