// Command runlocal launches one peer process per script entry on the
// local machine and waits for the whole group to finish. Each child's
// output lands in proc_<id>.out next to the launcher. Arguments after
// "--" are passed through to every peer, so
//
//	runlocal -script demo.txt -- -transport nats
//
// runs the group over NATS.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Heartseater/archi-dist-lab0/script"
)

var (
	scriptPath = flag.String("script", "script.txt", "Path to the shared instruction script")
	peerBin    = flag.String("peer-bin", "./peer", "Path to the peer binary")
	outDir     = flag.String("out-dir", ".", "Directory for per-peer output files")
	stagger    = flag.Duration("stagger", 50*time.Millisecond, "Delay between peer launches")
)

func main() {
	flag.Parse()

	logger := log.New(os.Stderr, "[launcher] ", log.LstdFlags)

	f, err := os.Open(*scriptPath)
	if err != nil {
		logger.Fatalf("failed to open script: %v", err)
	}
	scr, err := script.Parse(f)
	f.Close()
	if err != nil {
		logger.Fatalf("failed to parse script: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A crashed peer cancels the rest of the run; the survivors would
	// stall on its release otherwise.
	g, gctx := errgroup.WithContext(ctx)

	logger.Printf("starting %d peers from %s", scr.Peers, *scriptPath)
	for i := 0; i < scr.Peers; i++ {
		out, err := os.Create(filepath.Join(*outDir, fmt.Sprintf("proc_%d.out", i)))
		if err != nil {
			logger.Fatalf("failed to create output file: %v", err)
		}

		args := append([]string{"-id", strconv.Itoa(i), "-script", *scriptPath}, flag.Args()...)
		cmd := exec.CommandContext(gctx, *peerBin, args...)
		cmd.Stdout = out
		cmd.Stderr = out
		if err := cmd.Start(); err != nil {
			out.Close()
			logger.Fatalf("failed to start peer %d: %v", i, err)
		}

		id := i
		g.Go(func() error {
			defer out.Close()
			if err := cmd.Wait(); err != nil {
				return fmt.Errorf("peer %d: %w", id, err)
			}
			logger.Printf("peer %d finished", id)
			return nil
		})

		time.Sleep(*stagger)
	}

	if err := g.Wait(); err != nil {
		logger.Fatalf("run failed: %v", err)
	}
	logger.Printf("all %d peers finished; see %s", scr.Peers, filepath.Join(*outDir, "proc_<id>.out"))
}
