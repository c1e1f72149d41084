package engine

// State is a session's position in the state machine of spec.md §4.5:
//
//	Init -> Handshake -> Offered -> Transferring -> Done
//	  \         \            \            \
//	   +-- error +-- Cancel/Reject --------+--> Closed
type State int

const (
	StateInit State = iota
	StateHandshake
	StateOffered
	StateTransferring
	StateDone
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateHandshake:
		return "Handshake"
	case StateOffered:
		return "Offered"
	case StateTransferring:
		return "Transferring"
	case StateDone:
		return "Done"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// terminal reports whether s is one of the two terminal states named in
// spec.md §4.5: Done (clean success) or Closed (error/reject/cancel).
func (s State) terminal() bool {
	return s == StateDone || s == StateClosed
}
