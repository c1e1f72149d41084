package session

import "errors"

// ErrAuthFailed is returned when a peer's proof of the ticket secret
// doesn't match — either a stale/mistyped ticket or an attacker without it.
var ErrAuthFailed = errors.New("session: authentication failed")

// ErrVersionMismatch is returned when the receiver's protocol version is
// incompatible with the sender's.
var ErrVersionMismatch = errors.New("session: protocol version mismatch")

// ErrRejectedByPeer is returned when the sender's HelloAck carries ok:false
// for a reason other than version (e.g. a future extension).
type ErrRejectedByPeer struct{ Reason string }

func (e *ErrRejectedByPeer) Error() string {
	return "session: rejected by peer: " + e.Reason
}
