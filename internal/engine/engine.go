package engine

import (
	"os"
	"sync"

	"github.com/qdrop/qdrop/internal/progressx"
	"github.com/qdrop/qdrop/internal/transferengine"
)

// ApplicationTag scopes tickets/rendezvous topics to this application,
// so a qdrop ticket never collides with an unrelated service sharing
// the same signaling broker.
const ApplicationTag = "qdrop"

// FileInfo answers the host command `file_info` (spec.md §6).
type FileInfo struct {
	Size  uint64
	IsDir bool
}

// StatPath implements the `file_info` host command.
func StatPath(path string) (FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, &IoError{Err: err}
	}
	return FileInfo{Size: uint64(info.Size()), IsDir: info.IsDir()}, nil
}

// common holds the state every session role shares: its position in the
// state machine, the shared byte counter, the cancel signal, and the
// concurrency guard spec.md §5 requires around TransferState.
type common struct {
	mu    sync.Mutex
	state State

	sink     progressx.EventSink
	counter  *progressx.Counter
	cancelCh chan struct{}
	once     sync.Once

	// concurrency and chunkSize tune the transfer engine; zero leaves
	// transferengine's own defaults in place. Set via SetTransferTuning.
	concurrency int
	chunkSize   int
}

func newCommon(sink progressx.EventSink) *common {
	return &common{
		state:    StateInit,
		sink:     sink,
		cancelCh: make(chan struct{}),
	}
}

// SetTransferTuning configures the concurrency and chunk size used for
// the session's transfer, sourced from internal/config.Config. Zero
// values fall back to transferengine's own defaults; call before Run.
func (c *common) SetTransferTuning(concurrency, chunkSize int) {
	c.concurrency = concurrency
	c.chunkSize = chunkSize
}

func (c *common) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *common) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *common) emit(e progressx.Event) {
	if c.sink != nil {
		c.sink.OnEvent(e)
	}
}

// CancelTransfer implements the `cancel_transfer` host command: it is
// idempotent and safe to call from any goroutine at any point in the
// session's lifetime.
func (c *common) CancelTransfer() {
	c.once.Do(func() { close(c.cancelCh) })
}

// BytesTransferred implements the synchronous `bytes_transferred` host
// command query required by spec.md §4.6.
func (c *common) BytesTransferred() uint64 {
	if c.counter == nil {
		return 0
	}
	return c.counter.Bytes()
}

func translateTransferErr(err error) error {
	switch err {
	case transferengine.ErrCancelled:
		return ErrCancelled
	default:
		return &IoError{Err: err}
	}
}
