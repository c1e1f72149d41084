package transport

import (
	"context"
	"net"
	"sync"

	"github.com/quic-go/quic-go"
)

// acceptedConn pairs a connection with the class of the listener it
// arrived on, so callers Accept()ing off the merged channel still know
// whether the path was direct or relayed.
type acceptedConn struct {
	conn  *quic.Conn
	class ConnectionClass
}

// MultiListener aggregates multiple QUICListeners into a single Accept
// loop, so the engine can accept a connection from the direct UDP path
// or the ICE/relay path, whichever completes first. Kept close to the
// teacher's internal/transport/multi_listener.go, which is already
// transport-agnostic; extended to carry each listener's ConnectionClass
// through to Accept.
type MultiListener struct {
	listeners []QUICListener
	conns     chan acceptedConn
	done      chan struct{}
	mu        sync.Mutex
}

func NewMultiListener() *MultiListener {
	return &MultiListener{
		conns: make(chan acceptedConn),
		done:  make(chan struct{}),
	}
}

// Add registers a new listener and starts an accept loop for it.
func (m *MultiListener) Add(l QUICListener, class ConnectionClass) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)

	go func() {
		for {
			conn, err := l.Accept(context.Background())
			if err != nil {
				// Listener closed (or failed permanently); one path going
				// away shouldn't kill the others.
				return
			}
			select {
			case m.conns <- acceptedConn{conn: conn, class: class}:
			case <-m.done:
				return
			}
		}
	}()
}

// Accept waits for and returns the next connection from any registered
// listener, plus the class of the path it arrived on.
func (m *MultiListener) Accept(ctx context.Context) (*quic.Conn, ConnectionClass, error) {
	select {
	case ac := <-m.conns:
		return ac.conn, ac.class, nil
	case <-ctx.Done():
		return nil, ClassUnknown, ctx.Err()
	case <-m.done:
		return nil, ClassUnknown, net.ErrClosed
	}
}

// Close closes all underlying listeners.
func (m *MultiListener) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.done:
		return nil
	default:
		close(m.done)
	}

	for _, l := range m.listeners {
		l.Close()
	}
	return nil
}

// Addr returns the address of the first listener, or a zero address if
// none are registered yet.
func (m *MultiListener) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.listeners) > 0 {
		return m.listeners[0].Addr()
	}
	return &net.UDPAddr{IP: net.IP{0, 0, 0, 0}, Port: 0}
}
