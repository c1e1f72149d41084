package session

import (
	"bytes"
	"io"
	"testing"
)

// pipeStream satisfies transport.Stream (io.Reader + io.Writer + io.Closer)
// over a pair of io.Pipes, the same loopback pattern the teacher uses in
// internal/core/pake_test.go and secure_stream_test.go.
type pipeStream struct {
	io.Reader
	io.Writer
}

func (p *pipeStream) Close() error { return nil }

func newPipePair() (*pipeStream, *pipeStream) {
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()
	// a writes to w1, reads from r2; b writes to w2, reads from r1
	a := &pipeStream{Reader: r2, Writer: w1}
	b := &pipeStream{Reader: r1, Writer: w2}
	return a, b
}

func TestAuthenticateMutualSuccess(t *testing.T) {
	senderSide, receiverSide := newPipePair()
	var secret [32]byte
	copy(secret[:], []byte("shared-ticket-secret-bytes-here"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- authenticate(senderSide, secret, RoleSender)
	}()

	if err := authenticate(receiverSide, secret, RoleReceiver); err != nil {
		t.Fatalf("receiver authenticate failed: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("sender authenticate failed: %v", err)
	}
}

func TestAuthenticateMismatchedSecretFails(t *testing.T) {
	senderSide, receiverSide := newPipePair()
	var senderSecret, receiverSecret [32]byte
	copy(senderSecret[:], []byte("secret-a"))
	copy(receiverSecret[:], []byte("secret-b"))

	errCh := make(chan error, 1)
	go func() {
		err := authenticate(senderSide, senderSecret, RoleSender)
		// Close the sender's write side on return, as RunSender does with
		// control.Close(), so the receiver's pending read sees EOF.
		senderSide.Writer.(*io.PipeWriter).Close()
		errCh <- err
	}()

	err := authenticate(receiverSide, receiverSecret, RoleReceiver)
	if err == nil {
		t.Fatal("expected authentication failure with mismatched secrets")
	}
	<-errCh
}

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello session")
	if err := writeFrame(&buf, payload); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	got, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}
