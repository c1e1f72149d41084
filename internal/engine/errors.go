// Package engine implements the top-level session orchestration
// (spec.md §4.5's state machine and §6's host command surface),
// wiring together ticket, transport, session, offer, fstree,
// materializer, transferengine and progressx into the two session
// roles: sender (upload_files) and receiver (download_files).
package engine

import "errors"

// NetworkError wraps a transport-layer failure (connect-failed,
// peer-closed, keepalive-expired): always fatal to the session.
type NetworkError struct{ Err error }

func (e *NetworkError) Error() string { return "engine: network error: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// ProtocolError wraps a violation of the wire protocol or the session
// state machine: malformed frame, out-of-state message, version
// mismatch, invalid resume table, index out of range, path escape.
type ProtocolError struct{ Err error }

func (e *ProtocolError) Error() string { return "engine: protocol error: " + e.Err.Error() }
func (e *ProtocolError) Unwrap() error { return e.Err }

// IoError wraps a local filesystem failure: read failed on the sender's
// source, write failed on the receiver's destination, permission denied.
type IoError struct{ Err error }

func (e *IoError) Error() string { return "engine: io error: " + e.Err.Error() }
func (e *IoError) Unwrap() error { return e.Err }

// ErrRejected is a terminal, non-error outcome: the receiver declined
// the offer.
var ErrRejected = errors.New("engine: offer rejected")

// ErrCancelled is a terminal, non-error outcome: either side cancelled.
var ErrCancelled = errors.New("engine: transfer cancelled")

// ErrBusy names the outcome of a second dialer finding the ticket
// already claimed. No function in this package returns it, and
// transport.ErrBusy is not translated into it.
var ErrBusy = errors.New("engine: ticket already claimed")
