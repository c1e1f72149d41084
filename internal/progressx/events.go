// Package progressx implements the Progress & Events surface (spec.md
// §4.6): a push-style event sink plus a synchronous byte counter for
// polling hosts. Grounded on the teacher's bubbletea tea.Msg taxonomy
// (internal/ui/model.go's StatusMsg/ProgressMsg), generalized from a
// single TUI-bound message type into an engine-side, host-agnostic
// event type so any host (CLI, TUI, future GUI) can subscribe.
package progressx

import (
	"sync/atomic"
	"time"

	"github.com/qdrop/qdrop/internal/transport"
	"github.com/qdrop/qdrop/pkg/wire"
)

// EventKind tags each variant of Event.
type EventKind int

const (
	ConnectedToServer EventKind = iota
	PeerConnected
	TicketReady
	OfferReceived
	FilesDecision
	InitialProgress
	BytesTransferred
	TransferFinished
	TransferCancelled
	ErrorEvent
)

func (k EventKind) String() string {
	switch k {
	case ConnectedToServer:
		return "ConnectedToServer"
	case PeerConnected:
		return "PeerConnected"
	case TicketReady:
		return "TicketReady"
	case OfferReceived:
		return "OfferReceived"
	case FilesDecision:
		return "FilesDecision"
	case InitialProgress:
		return "InitialProgress"
	case BytesTransferred:
		return "BytesTransferred"
	case TransferFinished:
		return "TransferFinished"
	case TransferCancelled:
		return "TransferCancelled"
	case ErrorEvent:
		return "Error"
	default:
		return "Unknown"
	}
}

// Event is the single push-style notification type delivered to an
// EventSink. Exactly one of the typed fields is meaningful, selected by
// Kind; this mirrors the teacher's several distinct tea.Msg types
// collapsed into one tagged struct so a non-bubbletea host (e.g. a
// cobra CLI printing to stdout) doesn't need to import bubbletea to
// consume engine events.
type Event struct {
	Kind EventKind

	Class              transport.ConnectionClass // PeerConnected
	Ticket             string                    // TicketReady
	Entries            []wire.FileEntry          // OfferReceived
	Accepted           bool                      // FilesDecision
	PerFileBytesAlready []uint64                 // InitialProgress
	TotalSoFar         uint64                    // BytesTransferred
	Reason             string                    // TransferCancelled
	ErrKind            string                    // Error
	ErrMessage         string                    // Error
}

// EventSink receives engine events. A host implements this directly
// (e.g. the TUI model's Update method) or adapts it into its own
// message type.
type EventSink interface {
	OnEvent(Event)
}

// SinkFunc adapts a plain function into an EventSink.
type SinkFunc func(Event)

func (f SinkFunc) OnEvent(e Event) { f(e) }

// Counter tracks cumulative transferred bytes and throttles
// BytesTransferred emission to at most one event per interval, per
// spec.md §4.6 ("throttled to ≥ one event per ~50-100ms"), while always
// answering Bytes() synchronously for polling hosts.
type Counter struct {
	total    atomic.Uint64
	sink     EventSink
	interval time.Duration

	lastEmit atomic.Int64 // unix nano of last emitted event
}

// DefaultInterval is the throttle period used when NewCounter is given
// a zero interval; the middle of spec.md's 50-100ms recommendation.
const DefaultInterval = 75 * time.Millisecond

// NewCounter returns a Counter that forwards throttled BytesTransferred
// events to sink. sink may be nil, in which case Add only updates the
// synchronous counter.
func NewCounter(sink EventSink, interval time.Duration) *Counter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Counter{sink: sink, interval: interval}
}

// Add increments the cumulative byte counter by n and, if the throttle
// interval has elapsed since the last emission, pushes a
// BytesTransferred event.
func (c *Counter) Add(n uint64) {
	total := c.total.Add(n)
	if c.sink == nil {
		return
	}
	now := time.Now().UnixNano()
	last := c.lastEmit.Load()
	if time.Duration(now-last) < c.interval {
		return
	}
	if !c.lastEmit.CompareAndSwap(last, now) {
		return
	}
	c.sink.OnEvent(Event{Kind: BytesTransferred, TotalSoFar: total})
}

// Bytes answers the synchronous bytes_transferred() query required by
// spec.md §4.6 for polling hosts.
func (c *Counter) Bytes() uint64 {
	return c.total.Load()
}

// Flush forces emission of the current total regardless of the
// throttle window, used once at TransferFinished so the host's last
// observed value is exact.
func (c *Counter) Flush() {
	if c.sink == nil {
		return
	}
	c.sink.OnEvent(Event{Kind: BytesTransferred, TotalSoFar: c.total.Load()})
}
