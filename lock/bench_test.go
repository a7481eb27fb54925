package lock

import (
	"context"
	"testing"

	"github.com/Heartseater/archi-dist-lab0/wire"
)

// discardBus swallows outbound traffic so benchmarks measure the agent
// alone.
type discardBus struct{}

func (discardBus) Send(ctx context.Context, peer int, msg wire.Message) error { return nil }
func (discardBus) Broadcast(ctx context.Context, msg wire.Message) error      { return nil }
func (discardBus) Bootstrap(ctx context.Context) error                        { return nil }
func (discardBus) Run(ctx context.Context) error                              { return nil }
func (discardBus) Close() error                                               { return nil }

// BenchmarkLockCycle measures a full request/grant/release cycle for a
// single peer with no network in the way.
func BenchmarkLockCycle(b *testing.B) {
	a, err := NewAgent(AgentOptions{
		Self:     0,
		Peers:    1,
		Bus:      discardBus{},
		Executor: Func(func(ctx context.Context, peer, duration int) error { return nil }),
		Logger:   quietLogger(),
	})
	if err != nil {
		b.Fatalf("NewAgent: %v", err)
	}
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := a.Lock(ctx, 0); err != nil {
			b.Fatalf("lock failed: %v", err)
		}
	}
}

// BenchmarkHandleLine measures the inbound path for a request line.
func BenchmarkHandleLine(b *testing.B) {
	a, err := NewAgent(AgentOptions{
		Self:   0,
		Peers:  2,
		Bus:    discardBus{},
		Logger: quietLogger(),
	})
	if err != nil {
		b.Fatalf("NewAgent: %v", err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a.HandleLine("REQ 42 1")
	}
}

// BenchmarkQueueInsertRemove measures queue churn at a contended size.
func BenchmarkQueueInsertRemove(b *testing.B) {
	q := NewQueue()
	for p := 0; p < 64; p++ {
		q.Insert(int64(p+1), p)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Insert(int64(i), 64)
		q.Remove(int64(i), 64)
	}
}
