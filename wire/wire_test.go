package wire

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name string
		line string
		want Message
	}{
		{name: "hello", line: "HELLO 3", want: Hello{Peer: 3}},
		{name: "request", line: "REQ 17 2", want: Request{TS: 17, Peer: 2}},
		{name: "ack", line: "ACK 19 1 17 2", want: Ack{TS: 19, From: 1, ForTS: 17, ForPeer: 2}},
		{name: "release", line: "REL 23 17 2", want: Release{TS: 23, ReqTS: 17, ReqPeer: 2}},
		{name: "surplus fields ignored", line: "REQ 17 2 junk trailing", want: Request{TS: 17, Peer: 2}},
		{name: "leading whitespace", line: "  REQ 17 2", want: Request{TS: 17, Peer: 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.line)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tc.line, err)
			}
			if got != tc.want {
				t.Fatalf("Parse(%q) = %#v, want %#v", tc.line, got, tc.want)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	cases := []struct {
		name string
		line string
		want error
	}{
		{name: "empty line", line: "", want: ErrMalformed},
		{name: "blank line", line: "   ", want: ErrMalformed},
		{name: "unknown verb", line: "PING 1 2", want: ErrUnknownVerb},
		{name: "request missing peer", line: "REQ 17", want: ErrMalformed},
		{name: "ack short", line: "ACK 19 1 17", want: ErrMalformed},
		{name: "release short", line: "REL 23", want: ErrMalformed},
		{name: "non-integer field", line: "REQ seventeen 2", want: ErrMalformed},
		{name: "hello without id", line: "HELLO", want: ErrMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.line); !errors.Is(err, tc.want) {
				t.Fatalf("Parse(%q) error = %v, want %v", tc.line, err, tc.want)
			}
		})
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	msgs := []Message{
		Hello{Peer: 0},
		Request{TS: 5, Peer: 1},
		Ack{TS: 6, From: 0, ForTS: 5, ForPeer: 1},
		Release{TS: 9, ReqTS: 5, ReqPeer: 1},
	}
	for _, m := range msgs {
		got, err := Parse(m.Encode())
		if err != nil {
			t.Fatalf("Parse(Encode(%#v)) returned error: %v", m, err)
		}
		if got != m {
			t.Fatalf("round trip changed message: %#v -> %#v", m, got)
		}
	}
}

func TestEncodeHasNoNewline(t *testing.T) {
	for _, m := range []Message{Hello{Peer: 1}, Request{TS: 2, Peer: 1}} {
		enc := m.Encode()
		for i := 0; i < len(enc); i++ {
			if enc[i] == '\n' {
				t.Fatalf("Encode(%#v) contains a newline: %q", m, enc)
			}
		}
	}
}
