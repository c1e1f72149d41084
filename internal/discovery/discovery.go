// Package discovery resolves a ticket to a live candidate address when
// the ticket's own embedded candidates go stale (the sender's LAN IP
// changed, or the receiver never saw them because they redeemed a
// ticket shared well after it was minted). It supplements, never
// replaces, the Endpoint Adapter's own candidate list: the ticket
// remains the single source of authority for what is being resolved.
package discovery

import (
	"crypto/sha256"
	"encoding/hex"
)

// ServiceType is the mDNS service type qdrop advertises under.
const ServiceType = "_qdrop._udp"

// Tag derives a short, non-reversible rendezvous tag from a ticket's
// peer identity and application tag: stable for the lifetime of one
// ticket, but never the ticket secret itself (published over plaintext
// mDNS TXT records and an unauthenticated HTTP registry, unlike the
// secret, which only ever crosses the authenticated QUIC control stream).
func Tag(peerID [32]byte, applicationTag string) string {
	h := sha256.New()
	h.Write(peerID[:])
	h.Write([]byte(applicationTag))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
