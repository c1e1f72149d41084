package transferengine

import "errors"

// ErrHashMismatch is the resume-abandonment case from spec.md §4.5's
// integrity section: the receiver's local partial-file hash disagrees
// with the sender's FileHash for the same prefix length.
var ErrHashMismatch = errors.New("transferengine: resume hash mismatch")

// ErrCancelled is returned from Sender/Receiver when a Cancel (local or
// peer) interrupted the transfer before all entries completed.
var ErrCancelled = errors.New("transferengine: cancelled")
