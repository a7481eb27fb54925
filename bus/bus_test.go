package bus

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Heartseater/archi-dist-lab0/wire"
)

func TestLocalTable(t *testing.T) {
	tbl := LocalTable(3, 0)
	if got := tbl.Peers(); got != 3 {
		t.Fatalf("Peers() = %d, want 3", got)
	}
	ep, ok := tbl.Endpoint(2)
	if !ok {
		t.Fatalf("Endpoint(2) not found")
	}
	if want := "127.0.0.1:50002"; ep != want {
		t.Fatalf("Endpoint(2) = %q, want %q", ep, want)
	}
	if _, ok := tbl.Endpoint(3); ok {
		t.Fatalf("Endpoint(3) found in a 3-peer table")
	}
}

func TestParseTable(t *testing.T) {
	tbl, err := ParseTable("0=10.0.0.1:9000, 1=10.0.0.2:9000,2=10.0.0.3:9001")
	if err != nil {
		t.Fatalf("ParseTable returned error: %v", err)
	}
	if got := tbl.Peers(); got != 3 {
		t.Fatalf("Peers() = %d, want 3", got)
	}
	ep, _ := tbl.Endpoint(1)
	if want := "10.0.0.2:9000"; ep != want {
		t.Fatalf("Endpoint(1) = %q, want %q", ep, want)
	}
}

func TestParseTableRejects(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{name: "empty", in: ""},
		{name: "missing separator", in: "0:10.0.0.1:9000"},
		{name: "bad id", in: "zero=10.0.0.1:9000"},
		{name: "duplicate id", in: "0=a:1,0=b:2"},
		{name: "gap in ids", in: "0=a:1,2=b:2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseTable(tc.in); err == nil {
				t.Fatalf("ParseTable(%q) succeeded, want error", tc.in)
			}
		})
	}
}

func TestHubSendAndBroadcast(t *testing.T) {
	hub := NewHub()
	var mu sync.Mutex
	got := map[int][]string{}
	record := func(peer int) Handler {
		return func(line string) {
			mu.Lock()
			got[peer] = append(got[peer], line)
			mu.Unlock()
		}
	}

	b0 := hub.Join(0, record(0))
	hub.Join(1, record(1))
	hub.Join(2, record(2))

	ctx := context.Background()
	if err := b0.Send(ctx, 1, wire.Request{TS: 4, Peer: 0}); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if err := b0.Broadcast(ctx, wire.Release{TS: 7, ReqTS: 4, ReqPeer: 0}); err != nil {
		t.Fatalf("Broadcast returned error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got[0]) != 0 {
		t.Fatalf("broadcast delivered to self: %v", got[0])
	}
	want1 := []string{"REQ 4 0", "REL 7 4 0"}
	if len(got[1]) != 2 || got[1][0] != want1[0] || got[1][1] != want1[1] {
		t.Fatalf("peer 1 received %v, want %v", got[1], want1)
	}
	if len(got[2]) != 1 || got[2][0] != "REL 7 4 0" {
		t.Fatalf("peer 2 received %v, want [REL 7 4 0]", got[2])
	}
	if hub.Delivered() != 3 {
		t.Fatalf("Delivered() = %d, want 3", hub.Delivered())
	}
}

func TestHubBootstrap(t *testing.T) {
	hub := NewHub()
	var mu sync.Mutex
	var lines []string
	hub.Join(1, func(line string) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
	})
	b0 := hub.Join(0, func(string) {})

	if err := b0.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap returned error: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(lines) != 1 || lines[0] != "HELLO 0" {
		t.Fatalf("peer 1 received %v, want [HELLO 0]", lines)
	}
}

func TestHubSendUnknownPeer(t *testing.T) {
	hub := NewHub()
	b0 := hub.Join(0, func(string) {})
	err := b0.Send(context.Background(), 9, wire.Hello{Peer: 0})
	if !errors.Is(err, ErrUnknownPeer) {
		t.Fatalf("Send to unknown peer: error = %v, want %v", err, ErrUnknownPeer)
	}
}
