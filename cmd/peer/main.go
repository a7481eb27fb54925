// Command peer runs one participant of the distributed lock protocol.
// It reads the shared instruction script, joins the peer group over TCP
// or NATS and replays its scripted Lock and Wait commands.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Heartseater/archi-dist-lab0/bus"
	natsbus "github.com/Heartseater/archi-dist-lab0/bus/nats"
	"github.com/Heartseater/archi-dist-lab0/bus/tcp"
	"github.com/Heartseater/archi-dist-lab0/ledger"
	"github.com/Heartseater/archi-dist-lab0/lock"
	"github.com/Heartseater/archi-dist-lab0/metrics"
	"github.com/Heartseater/archi-dist-lab0/script"
)

var (
	peerID        = flag.Int("id", 0, "This peer's id")
	scriptPath    = flag.String("script", "script.txt", "Path to the shared instruction script")
	basePort      = flag.Int("base-port", bus.DefaultBasePort, "First TCP port; peer i listens on base+i")
	peerTable     = flag.String("peers", "", "Explicit peer table, e.g. 0=127.0.0.1:50000,1=127.0.0.1:50001")
	transportName = flag.String("transport", "tcp", "Transport: tcp or nats")
	natsURL       = flag.String("nats-url", "nats://127.0.0.1:4222", "NATS server URL (transport=nats)")
	criticalPath  = flag.String("critical", "", "Exclusive-action binary; empty sleeps for the duration instead")
	redisAddr     = flag.String("redis-addr", "", "Redis address for the audit ledger; empty keeps it in memory")
	metricsAddr   = flag.String("metrics-addr", "", "Address for the Prometheus /metrics endpoint; empty disables it")
	traceOut      = flag.Bool("trace", false, "Print OpenTelemetry spans to stdout")
	settle        = flag.Duration("settle", 200*time.Millisecond, "Pause before the bootstrap handshake so the other peers can bind")
	linger        = flag.Duration("linger", time.Second, "Pause after the last command before shutdown")
)

func main() {
	flag.Parse()

	logger := log.New(os.Stderr, fmt.Sprintf("[peer %d] ", *peerID), log.LstdFlags|log.Lmicroseconds)

	f, err := os.Open(*scriptPath)
	if err != nil {
		logger.Fatalf("failed to open script: %v", err)
	}
	scr, err := script.Parse(f)
	f.Close()
	if err != nil {
		logger.Fatalf("failed to parse script: %v", err)
	}
	if *peerID < 0 || *peerID >= scr.Peers {
		logger.Fatalf("id %d outside [0, %d)", *peerID, scr.Peers)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *traceOut {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			logger.Fatalf("failed to set up tracing: %v", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
		defer func() { _ = tp.Shutdown(context.Background()) }()
		otel.SetTracerProvider(tp)
	}

	if *metricsAddr != "" {
		reg := metrics.NewRegistry()
		metrics.RegisterCoreMetrics(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("metrics server: %v", err)
			}
		}()
	}

	var trail ledger.Ledger = ledger.NewMemory()
	if *redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer client.Close()
		trail = ledger.NewRedis(client)
	}

	var action lock.Executor = lock.Sleep{}
	if *criticalPath != "" {
		action = lock.Binary{Path: *criticalPath, Stdout: os.Stdout, Stderr: os.Stderr}
	}

	// The agent attaches after the transport is built; lines arriving
	// in between are dropped.
	var agentRef atomic.Pointer[lock.Agent]
	handler := func(line string) {
		if a := agentRef.Load(); a != nil {
			a.HandleLine(line)
		}
	}

	var (
		peerBus   bus.Bus
		statsLine func() string
	)
	switch *transportName {
	case "tcp":
		table := bus.LocalTable(scr.Peers, *basePort)
		if *peerTable != "" {
			table, err = bus.ParseTable(*peerTable)
			if err != nil {
				logger.Fatalf("bad peer table: %v", err)
			}
			if table.Peers() != scr.Peers {
				logger.Fatalf("peer table covers %d peers, script names %d", table.Peers(), scr.Peers)
			}
		}
		tr, err := tcp.New(tcp.Options{Self: *peerID, Table: table, Handler: handler, Logger: logger})
		if err != nil {
			logger.Fatalf("failed to start transport: %v", err)
		}
		logger.Printf("listening on %s", tr.Addr())
		peerBus = tr
		statsLine = func() string {
			st := tr.Stats()
			return fmt.Sprintf("sent=%d dropped=%d received=%d", st.Sent, st.Dropped, st.Received)
		}
	case "nats":
		conn, err := natsbus.Connect(*natsURL, *peerID)
		if err != nil {
			logger.Fatalf("failed to start transport: %v", err)
		}
		defer conn.Close()
		tr, err := natsbus.New(conn, natsbus.Options{Self: *peerID, Peers: scr.Peers, Handler: handler})
		if err != nil {
			logger.Fatalf("failed to start transport: %v", err)
		}
		logger.Printf("subscribed on %s", *natsURL)
		peerBus = tr
		statsLine = func() string {
			st := tr.Stats()
			return fmt.Sprintf("sent=%d dropped=%d received=%d", st.Sent, st.Dropped, st.Received)
		}
	default:
		logger.Fatalf("unknown transport %q", *transportName)
	}

	agent, err := lock.NewAgent(lock.AgentOptions{
		Self:     *peerID,
		Peers:    scr.Peers,
		Bus:      peerBus,
		Executor: action,
		Ledger:   trail,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatalf("failed to build agent: %v", err)
	}
	agentRef.Store(agent)

	runner, err := script.NewRunner(script.RunnerOptions{
		Self:   *peerID,
		Script: scr,
		Locker: agent,
		Logger: logger,
	})
	if err != nil {
		logger.Fatalf("failed to build runner: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return peerBus.Run(gctx) })

	pause(ctx, *settle)
	if err := peerBus.Bootstrap(ctx); err != nil {
		logger.Printf("bootstrap aborted: %v", err)
		cancel()
		_ = g.Wait()
		return
	}
	logger.Printf("all %d peers reachable", scr.Peers)

	if err := runner.Run(ctx); err != nil {
		logger.Printf("script stopped: %v", err)
	}

	// Leave the transport up so late releases still reach the others.
	pause(ctx, *linger)

	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("transport error: %v", err)
	}
	logger.Printf("done: clock=%d %s", agent.Clock().Time(), statsLine())
}

func pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
