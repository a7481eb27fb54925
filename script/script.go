// Package script parses the shared instruction script and replays its
// commands for one peer. The script's first non-blank line holds the
// peer count; every following line is "<peer> <command> [arg]", where
// the command is Lock or Wait. Lines that do not parse are skipped, so
// one bad entry never takes the whole run down.
package script

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/Heartseater/archi-dist-lab0/lock"
)

const (
	// DefaultLockDuration holds the lock for one second when a Lock
	// command carries no argument.
	DefaultLockDuration = 1
	// DefaultWaitPeer waits on peer 0 when a Wait command carries no
	// argument.
	DefaultWaitPeer = 0
)

// Op is a scripted operation.
type Op string

const (
	OpLock Op = "Lock"
	OpWait Op = "Wait"
)

// Command is one scripted instruction addressed to a peer.
type Command struct {
	Target int
	Op     Op
	Arg    int
}

// Script is a parsed instruction script shared by all peers.
type Script struct {
	Peers    int
	Commands []Command
}

// Parse reads a script. The peer count must lie in [1, lock.MaxPeers];
// anything else is a configuration error. Command lines missing fields,
// naming an unknown operation or failing to parse are skipped. A
// missing or unparseable argument falls back to the operation's
// default.
func Parse(r io.Reader) (*Script, error) {
	sc := bufio.NewScanner(r)

	n, err := readPeerCount(sc)
	if err != nil {
		return nil, err
	}

	s := &Script{Peers: n}
	for sc.Scan() {
		if cmd, ok := parseCommand(sc.Text()); ok {
			s.Commands = append(s.Commands, cmd)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("script: failed to read: %w", err)
	}
	return s, nil
}

func readPeerCount(sc *bufio.Scanner) (int, error) {
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			return 0, fmt.Errorf("script: bad peer count %q: %w", fields[0], err)
		}
		if n < 1 || n > lock.MaxPeers {
			return 0, fmt.Errorf("script: peer count %d outside [1, %d]", n, lock.MaxPeers)
		}
		return n, nil
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("script: failed to read: %w", err)
	}
	return 0, errors.New("script: missing peer count")
}

func parseCommand(line string) (Command, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Command{}, false
	}
	target, err := strconv.Atoi(fields[0])
	if err != nil {
		return Command{}, false
	}

	var cmd Command
	switch Op(fields[1]) {
	case OpLock:
		cmd = Command{Target: target, Op: OpLock, Arg: DefaultLockDuration}
	case OpWait:
		cmd = Command{Target: target, Op: OpWait, Arg: DefaultWaitPeer}
	default:
		return Command{}, false
	}
	if len(fields) >= 3 {
		if arg, err := strconv.Atoi(fields[2]); err == nil {
			cmd.Arg = arg
		}
	}
	return cmd, true
}

// ForPeer returns the commands addressed to the given peer, in script
// order.
func (s *Script) ForPeer(peer int) []Command {
	var cmds []Command
	for _, c := range s.Commands {
		if c.Target == peer {
			cmds = append(cmds, c)
		}
	}
	return cmds
}

// Locker drives one peer's coordination cycles.
type Locker interface {
	Lock(ctx context.Context, duration int) error
	WaitRelease(ctx context.Context, peer int) error
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Self   int
	Script *Script
	Locker Locker
	Logger *log.Logger
}

// Runner replays a script's commands for one peer, strictly in script
// order, one at a time.
type Runner struct {
	self   int
	script *Script
	locker Locker
	log    *log.Logger
}

// NewRunner validates the options and returns a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Script == nil {
		return nil, errors.New("script: nil script")
	}
	if opts.Locker == nil {
		return nil, errors.New("script: nil locker")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Runner{self: opts.Self, script: opts.Script, locker: opts.Locker, log: opts.Logger}, nil
}

// Run executes the commands addressed to this peer and returns on the
// first failure. Commands for other peers are ignored.
func (r *Runner) Run(ctx context.Context) error {
	for i, c := range r.script.ForPeer(r.self) {
		r.log.Printf("step %d: %s %d", i+1, c.Op, c.Arg)
		var err error
		switch c.Op {
		case OpLock:
			err = r.locker.Lock(ctx, c.Arg)
		case OpWait:
			err = r.locker.WaitRelease(ctx, c.Arg)
		}
		if err != nil {
			return fmt.Errorf("script: step %d (%s %d): %w", i+1, c.Op, c.Arg, err)
		}
	}
	return nil
}
