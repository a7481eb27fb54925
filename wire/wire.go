// Package wire defines the line-oriented text protocol spoken between
// peers. Every message is a single space-separated record of integers
// prefixed by a verb; framing (the trailing newline) belongs to the
// transport, not the codec.
package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	verbHello   = "HELLO"
	verbRequest = "REQ"
	verbAck     = "ACK"
	verbRelease = "REL"
)

var (
	// ErrMalformed reports a line whose verb is known but whose fields are
	// missing or not integers. Callers drop such lines without state change.
	ErrMalformed = errors.New("wire: malformed message")
	// ErrUnknownVerb reports a line whose first token is not a protocol verb.
	ErrUnknownVerb = errors.New("wire: unknown verb")
)

// Message is one protocol record. Encode renders the wire form without a
// trailing newline.
type Message interface {
	Encode() string
}

// Hello is the bootstrap handshake announcing a peer's presence. It carries
// no timestamp and mutates no protocol state.
type Hello struct {
	Peer int
}

// Request claims the resource at the sender's logical time TS.
type Request struct {
	TS   int64
	Peer int
}

// Ack acknowledges the request (ForTS, ForPeer). TS is the acker's logical
// time at send; From identifies the acker.
type Ack struct {
	TS      int64
	From    int
	ForTS   int64
	ForPeer int
}

// Release announces that the request (ReqTS, ReqPeer) has left the critical
// section. TS is the releaser's logical time at send.
type Release struct {
	TS      int64
	ReqTS   int64
	ReqPeer int
}

func (m Hello) Encode() string {
	return fmt.Sprintf("%s %d", verbHello, m.Peer)
}

func (m Request) Encode() string {
	return fmt.Sprintf("%s %d %d", verbRequest, m.TS, m.Peer)
}

func (m Ack) Encode() string {
	return fmt.Sprintf("%s %d %d %d %d", verbAck, m.TS, m.From, m.ForTS, m.ForPeer)
}

func (m Release) Encode() string {
	return fmt.Sprintf("%s %d %d %d", verbRelease, m.TS, m.ReqTS, m.ReqPeer)
}

// Parse decodes one line into its Message. Surplus trailing fields are
// ignored; missing or non-integer fields yield ErrMalformed and an unknown
// leading verb yields ErrUnknownVerb.
func Parse(line string) (Message, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ErrMalformed
	}

	switch fields[0] {
	case verbHello:
		vals, err := parseInts(fields[1:], 1)
		if err != nil {
			return nil, err
		}
		return Hello{Peer: int(vals[0])}, nil

	case verbRequest:
		vals, err := parseInts(fields[1:], 2)
		if err != nil {
			return nil, err
		}
		return Request{TS: vals[0], Peer: int(vals[1])}, nil

	case verbAck:
		vals, err := parseInts(fields[1:], 4)
		if err != nil {
			return nil, err
		}
		return Ack{TS: vals[0], From: int(vals[1]), ForTS: vals[2], ForPeer: int(vals[3])}, nil

	case verbRelease:
		vals, err := parseInts(fields[1:], 3)
		if err != nil {
			return nil, err
		}
		return Release{TS: vals[0], ReqTS: vals[1], ReqPeer: int(vals[2])}, nil
	}

	return nil, ErrUnknownVerb
}

func parseInts(fields []string, n int) ([]int64, error) {
	if len(fields) < n {
		return nil, ErrMalformed
	}
	vals := make([]int64, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseInt(fields[i], 10, 64)
		if err != nil {
			return nil, ErrMalformed
		}
		vals[i] = v
	}
	return vals, nil
}
