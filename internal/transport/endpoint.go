// Package transport implements qdrop's Endpoint Adapter: the QUIC-based
// transport with NAT traversal (pion/ice STUN/TURN) and MQTT-signaled
// relay fallback, grounded on the teacher's internal/transport package.
// The core engine never imports quic-go or pion/ice directly; it speaks
// only the Endpoint/Connection/Stream interfaces below.
package transport

import (
	"context"
	"io"

	"github.com/qdrop/qdrop/internal/ticket"
)

// ConnectionClass categorizes how a Connection's path was established.
// Informational only; it never affects protocol semantics.
type ConnectionClass int

const (
	ClassUnknown ConnectionClass = iota
	ClassDirect
	ClassMixed
	ClassRelayed
)

func (c ConnectionClass) String() string {
	switch c {
	case ClassDirect:
		return "Direct"
	case ClassMixed:
		return "Mixed"
	case ClassRelayed:
		return "Relayed"
	default:
		return "Unknown"
	}
}

// Stream is an ordered, reliable byte stream. Unidirectional data
// streams implement Write or Read only in the role they're used; bidi
// control streams implement both.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// Connection is one authenticated peer connection, satisfied by any
// QUIC-with-holepunching transport.
type Connection interface {
	// Class reports how this connection's path was established.
	Class() ConnectionClass
	// RemoteID returns the identity of the other side. The QUIC
	// implementation returns the zero PeerID; peers are authenticated by
	// internal/session, not by this value.
	RemoteID() ticket.PeerID
	// OpenBidi opens a new bidirectional control stream.
	OpenBidi(ctx context.Context) (Stream, error)
	// AcceptBidi waits for the peer to open a bidirectional stream.
	AcceptBidi(ctx context.Context) (Stream, error)
	// OpenUni opens a new unidirectional data stream (write-only for us).
	OpenUni(ctx context.Context) (io.WriteCloser, error)
	// AcceptUni waits for the peer to open a unidirectional data stream
	// (read-only for us).
	AcceptUni(ctx context.Context) (io.ReadCloser, error)
	// Close tears down the connection with an application code and reason.
	Close(code uint64, reason string) error
}

// Endpoint is the core's sole view of the network. bind() produces an
// endpoint bound to a local identity; make_ticket turns that identity
// plus a set of address hints into a shareable Ticket; accept/connect
// complete the two sides of the handshake in §4.3.
type Endpoint interface {
	// NodeID is this endpoint's stable identity, embedded in tickets it mints.
	NodeID() ticket.PeerID
	// MakeTicket builds a ticket from this endpoint's candidate addresses.
	MakeTicket(applicationTag string) (ticket.Ticket, error)
	// Accept waits for one incoming authenticated connection.
	Accept(ctx context.Context) (Connection, error)
	// Connect dials the peer identified by a ticket, trying candidates
	// until one succeeds or all fail.
	Connect(ctx context.Context, t ticket.Ticket) (Connection, error)
	// Close releases all resources (listeners, ICE agents, signaling).
	Close() error
}
