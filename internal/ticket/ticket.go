// Package ticket implements qdrop's shareable session capability: the
// single opaque string a human copies from the sender to the receiver.
// It encodes a peer identity, a set of candidate addresses the endpoint
// adapter can try, an application tag, and a per-session secret used by
// internal/session for mutual authentication in place of a human
// password — grounded on the teacher's Argon2 PAKE (internal/core/pake.go)
// and its RegistryItem/TurnCredentials address-hint shapes
// (internal/discovery/client.go, internal/transport/ice.go).
package ticket

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

// Version is the ticket wire format version. Bumping it is a breaking
// change: an old qdrop build cannot parse a newer ticket.
const Version uint8 = 1

// SecretLen is the size of the per-session secret embedded in a ticket
// and fed into the Argon2id handshake as the shared authentication input.
const SecretLen = 32

// PeerID identifies a node on the transport; it authenticates the other
// side of a connection once the handshake completes.
type PeerID [32]byte

func (p PeerID) String() string {
	return fmt.Sprintf("%x", p[:])
}

// CandidateAddr is one address hint the endpoint adapter may dial:
// a direct host/port, a server-reflexive one learned via STUN, or a
// relay allocation. The ticket does not distinguish these kinds; the
// adapter tries all of them in the order given and reports back the
// ConnectionClass of whichever one wins.
type CandidateAddr struct {
	Network string // "udp4", "tcp4", ...
	Address string // "host:port"
}

// Ticket is the decoded form of the capability a sender publishes and a
// receiver redeems. It MUST be treated as single-use: once a sender's
// Handshake accepts one connection authenticated with a ticket's secret,
// that ticket is burned (see Guard).
type Ticket struct {
	PeerID         PeerID
	Secret         [SecretLen]byte
	ApplicationTag string
	Candidates     []CandidateAddr
}

// New mints a ticket for a freshly bound endpoint. The secret is random
// and never derived from anything guessable; it exists purely to let the
// receiver prove it holds this exact ticket during the session handshake.
func New(peerID PeerID, applicationTag string, candidates []CandidateAddr) (Ticket, error) {
	var secret [SecretLen]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return Ticket{}, fmt.Errorf("ticket: generate secret: %w", err)
	}
	return Ticket{
		PeerID:         peerID,
		Secret:         secret,
		ApplicationTag: applicationTag,
		Candidates:     candidates,
	}, nil
}

// Encode returns the ticket's binary wire form.
func (t Ticket) Encode() []byte {
	buf := make([]byte, 0, 1+32+SecretLen+4+len(t.ApplicationTag)+4)
	buf = append(buf, Version)
	buf = append(buf, t.PeerID[:]...)
	buf = append(buf, t.Secret[:]...)
	buf = appendString(buf, t.ApplicationTag)

	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(t.Candidates)))
	buf = append(buf, countBuf[:]...)
	for _, c := range t.Candidates {
		buf = appendString(buf, c.Network)
		buf = appendString(buf, c.Address)
	}
	return buf
}

func appendString(buf []byte, s string) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, s...)
	return buf
}

// String renders the ticket as the base64 string a human copies. Uses
// raw URL encoding (no padding, URL-safe alphabet) so the ticket can be
// pasted into a terminal or URL without escaping.
func (t Ticket) String() string {
	return base64.RawURLEncoding.EncodeToString(t.Encode())
}

// Parse decodes a ticket from its base64 string form.
func Parse(s string) (Ticket, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket: invalid base64: %w", err)
	}
	return Decode(raw)
}

// Decode parses a ticket from its binary wire form.
func Decode(raw []byte) (Ticket, error) {
	var t Ticket
	if len(raw) < 1+32+SecretLen+4 {
		return t, fmt.Errorf("ticket: truncated")
	}
	pos := 0
	version := raw[pos]
	pos++
	if version != Version {
		return t, fmt.Errorf("ticket: unsupported version %d", version)
	}
	copy(t.PeerID[:], raw[pos:pos+32])
	pos += 32
	copy(t.Secret[:], raw[pos:pos+SecretLen])
	pos += SecretLen

	tag, pos2, err := readString(raw, pos)
	if err != nil {
		return t, err
	}
	t.ApplicationTag = tag
	pos = pos2

	if pos+4 > len(raw) {
		return t, fmt.Errorf("ticket: truncated candidate count")
	}
	count := binary.BigEndian.Uint32(raw[pos : pos+4])
	pos += 4

	t.Candidates = make([]CandidateAddr, 0, count)
	for i := uint32(0); i < count; i++ {
		network, p, err := readString(raw, pos)
		if err != nil {
			return t, err
		}
		pos = p
		address, p2, err := readString(raw, pos)
		if err != nil {
			return t, err
		}
		pos = p2
		t.Candidates = append(t.Candidates, CandidateAddr{Network: network, Address: address})
	}
	return t, nil
}

func readString(raw []byte, pos int) (string, int, error) {
	if pos+4 > len(raw) {
		return "", 0, fmt.Errorf("ticket: truncated string length")
	}
	n := int(binary.BigEndian.Uint32(raw[pos : pos+4]))
	pos += 4
	if n < 0 || pos+n > len(raw) {
		return "", 0, fmt.Errorf("ticket: truncated string body")
	}
	return string(raw[pos : pos+n]), pos + n, nil
}

// Guard enforces a ticket's single-use semantics on the sender side: the
// first caller to Claim succeeds, every subsequent caller is told the
// ticket is already spent and should be closed with BusyReason.
type Guard struct {
	claimed atomic.Bool
}

// Claim returns true exactly once across the lifetime of the Guard.
func (g *Guard) Claim() bool {
	return g.claimed.CompareAndSwap(false, true)
}

// Claimed reports whether the ticket has already been redeemed.
func (g *Guard) Claimed() bool {
	return g.claimed.Load()
}
