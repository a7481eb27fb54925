package lock

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"
)

// Executor runs the exclusive action once the lock is granted. The
// duration is in seconds and is handed to the action verbatim; the
// protocol only cares that Execute blocks until the action is over.
type Executor interface {
	Execute(ctx context.Context, peer, duration int) error
}

// Binary runs an external program as the exclusive action, invoked as
// "path <peer> <duration>".
type Binary struct {
	Path   string
	Stdout io.Writer
	Stderr io.Writer
}

// Execute implements Executor.
func (b Binary) Execute(ctx context.Context, peer, duration int) error {
	cmd := exec.CommandContext(ctx, b.Path, strconv.Itoa(peer), strconv.Itoa(duration))
	cmd.Stdout = b.Stdout
	cmd.Stderr = b.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("lock: exclusive action %s: %w", b.Path, err)
	}
	return nil
}

// Sleep holds the lock by sleeping for the duration. It is the default
// action when no external program is configured.
type Sleep struct{}

// Execute implements Executor.
func (Sleep) Execute(ctx context.Context, peer, duration int) error {
	select {
	case <-time.After(time.Duration(duration) * time.Second):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Func adapts a function to the Executor interface.
type Func func(ctx context.Context, peer, duration int) error

// Execute implements Executor.
func (f Func) Execute(ctx context.Context, peer, duration int) error {
	return f(ctx, peer, duration)
}
