package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/qdrop/qdrop/internal/transport"
	"github.com/qdrop/qdrop/pkg/wire"
)

// Timeout is the handshake deadline named in spec.md §5: "handshake has
// a 30 s timeout".
const Timeout = 30 * time.Second

// Handshake is the outcome of a completed session handshake: the open
// control stream and the session nonce that tags the rest of the
// session's messages.
type Handshake struct {
	Control      transport.Stream
	SessionNonce [16]byte
	ServerTime   time.Time
}

// RunSender implements the sender side of §4.3: accept the single
// bidirectional control stream, authenticate the dialer against the
// ticket secret, receive Hello, and reply with HelloAck.
func RunSender(ctx context.Context, conn transport.Connection, secret [32]byte) (*Handshake, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	control, err := conn.AcceptBidi(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: accept control stream: %w", err)
	}

	if err := authenticate(control, secret, RoleSender); err != nil {
		control.Close()
		return nil, err
	}

	frame, err := wire.ReadFrame(control)
	if err != nil {
		control.Close()
		return nil, fmt.Errorf("session: read hello: %w", err)
	}
	if frame.Tag != wire.TagHello {
		control.Close()
		return nil, fmt.Errorf("session: expected Hello, got %s", frame.Tag)
	}
	hello, err := wire.DecodeHello(frame.Payload)
	if err != nil {
		control.Close()
		return nil, err
	}

	if hello.ProtocolVersion != wire.CurrentProtocolVersion() {
		ack := wire.HelloAck{OK: false, Reason: "version"}
		_ = wire.WriteFrame(control, wire.TagHelloAck, ack.Encode())
		control.Close()
		return nil, ErrVersionMismatch
	}

	var nonce [16]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		control.Close()
		return nil, fmt.Errorf("session: generate session nonce: %w", err)
	}
	now := time.Now()
	ack := wire.HelloAck{
		OK:              true,
		ProtocolVersion: wire.CurrentProtocolVersion(),
		ServerTimeUnix:  now.Unix(),
		SessionNonce:    nonce,
	}
	if err := wire.WriteFrame(control, wire.TagHelloAck, ack.Encode()); err != nil {
		control.Close()
		return nil, fmt.Errorf("session: write hello ack: %w", err)
	}

	return &Handshake{Control: control, SessionNonce: nonce, ServerTime: now}, nil
}

// RunReceiver implements the receiver side of §4.3: open the control
// stream, authenticate against the ticket secret, send Hello, and wait
// for HelloAck.
func RunReceiver(ctx context.Context, conn transport.Connection, secret [32]byte, maxOfferBytes uint64) (*Handshake, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	control, err := conn.OpenBidi(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: open control stream: %w", err)
	}

	if err := authenticate(control, secret, RoleReceiver); err != nil {
		control.Close()
		return nil, err
	}

	hello := wire.Hello{ProtocolVersion: wire.CurrentProtocolVersion(), MaxOfferBytes: maxOfferBytes}
	if err := wire.WriteFrame(control, wire.TagHello, hello.Encode()); err != nil {
		control.Close()
		return nil, fmt.Errorf("session: write hello: %w", err)
	}

	frame, err := wire.ReadFrame(control)
	if err != nil {
		control.Close()
		return nil, fmt.Errorf("session: read hello ack: %w", err)
	}
	if frame.Tag != wire.TagHelloAck {
		control.Close()
		return nil, fmt.Errorf("session: expected HelloAck, got %s", frame.Tag)
	}
	ack, err := wire.DecodeHelloAck(frame.Payload)
	if err != nil {
		control.Close()
		return nil, err
	}
	if !ack.OK {
		control.Close()
		if ack.Reason == "version" {
			return nil, ErrVersionMismatch
		}
		return nil, &ErrRejectedByPeer{Reason: ack.Reason}
	}

	return &Handshake{
		Control:      control,
		SessionNonce: ack.SessionNonce,
		ServerTime:   time.Unix(ack.ServerTimeUnix, 0),
	}, nil
}
