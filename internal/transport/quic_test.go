package transport

import (
	"context"
	"testing"
	"time"
)

func TestQUICEndpointConnectAndStream(t *testing.T) {
	sender, err := NewQUICEndpoint("19201", nil, DefaultICEConfig())
	if err != nil {
		t.Fatalf("bind sender endpoint: %v", err)
	}
	defer sender.Close()

	acceptDone := make(chan Connection, 1)
	acceptErr := make(chan error, 1)
	go func() {
		conn, err := sender.Accept(context.Background())
		if err != nil {
			acceptErr <- err
			return
		}
		acceptDone <- conn
	}()

	tk, err := sender.MakeTicket("test")
	if err != nil {
		t.Fatalf("make ticket: %v", err)
	}

	receiver, err := NewQUICEndpoint("19202", nil, DefaultICEConfig())
	if err != nil {
		t.Fatalf("bind receiver endpoint: %v", err)
	}
	defer receiver.Close()

	clientConn, err := receiver.Connect(context.Background(), tk)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	var serverConn Connection
	select {
	case serverConn = <-acceptDone:
	case err := <-acceptErr:
		t.Fatalf("accept: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for accept")
	}

	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		s, err := serverConn.AcceptBidi(context.Background())
		if err != nil {
			t.Errorf("accept bidi: %v", err)
			return
		}
		buf := make([]byte, 5)
		if _, err := s.Read(buf); err != nil {
			t.Errorf("read: %v", err)
			return
		}
		if string(buf) != "HELLO" {
			t.Errorf("expected HELLO, got %q", buf)
		}
		s.Close()
	}()

	clientStream, err := clientConn.OpenBidi(context.Background())
	if err != nil {
		t.Fatalf("open bidi: %v", err)
	}
	if _, err := clientStream.Write([]byte("HELLO")); err != nil {
		t.Fatalf("write: %v", err)
	}
	clientStream.Close()

	select {
	case <-streamDone:
	case <-time.After(5 * time.Second):
		t.Fatal("stream exchange timed out")
	}
}

// TestQUICEndpointRejectsSecondDialer covers spec.md §4.3/§8's "discard
// subsequent dialers by closing with BusyReason" property: once a
// session's one connection has been accepted, any later dialer using the
// same ticket must be closed rather than left hanging indefinitely inside
// MultiListener's accept loop.
func TestQUICEndpointRejectsSecondDialer(t *testing.T) {
	sender, err := NewQUICEndpoint("19211", nil, DefaultICEConfig())
	if err != nil {
		t.Fatalf("bind sender endpoint: %v", err)
	}
	defer sender.Close()

	acceptDone := make(chan error, 1)
	go func() {
		_, err := sender.Accept(context.Background())
		acceptDone <- err
	}()

	tk, err := sender.MakeTicket("test")
	if err != nil {
		t.Fatalf("make ticket: %v", err)
	}

	first, err := NewQUICEndpoint("19212", nil, DefaultICEConfig())
	if err != nil {
		t.Fatalf("bind first dialer: %v", err)
	}
	defer first.Close()
	if _, err := first.Connect(context.Background(), tk); err != nil {
		t.Fatalf("first dialer connect: %v", err)
	}

	select {
	case err := <-acceptDone:
		if err != nil {
			t.Fatalf("sender accept: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("sender never accepted the first dialer")
	}

	second, err := NewQUICEndpoint("19213", nil, DefaultICEConfig())
	if err != nil {
		t.Fatalf("bind second dialer: %v", err)
	}
	defer second.Close()
	secondConn, err := second.Connect(context.Background(), tk)
	if err != nil {
		t.Fatalf("second dialer connect: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	var streamErr error
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		_, streamErr = secondConn.OpenBidi(ctx)
		cancel()
		if streamErr != nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if streamErr == nil {
		t.Fatal("expected the second dialer's connection to be closed with BusyReason")
	}
}
