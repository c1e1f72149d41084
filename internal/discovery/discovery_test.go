package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func TestTagIsStableAndScopedToApplication(t *testing.T) {
	var peerID [32]byte
	peerID[0] = 7

	a := Tag(peerID, "qdrop")
	b := Tag(peerID, "qdrop")
	if a != b {
		t.Fatalf("Tag is not deterministic: %q != %q", a, b)
	}

	c := Tag(peerID, "other-app")
	if a == c {
		t.Fatal("Tag should differ across application tags for the same peer")
	}
}

func TestAdvertiseAndBrowse(t *testing.T) {
	// mDNS tests can be flaky in containers without multicast support;
	// this is a best-effort integration test, same as the teacher's.
	var peerID [32]byte
	peerID[0] = 1
	tag := Tag(peerID, "qdrop-test")
	port := 9999

	stop, err := StartAdvertising(port, tag)
	if err != nil {
		t.Fatalf("StartAdvertising: %v", err)
	}
	defer stop()

	time.Sleep(500 * time.Millisecond)

	foundAddr, err := FindOnLAN(tag, 2*time.Second)
	if err != nil {
		resolver, _ := zeroconf.NewResolver(nil)
		entries := make(chan *zeroconf.ServiceEntry)
		go func() {
			resolver.Browse(context.Background(), ServiceType, "local.", entries)
		}()
		select {
		case e := <-entries:
			t.Logf("found unrelated service: %s %v", e.Instance, e.Text)
		case <-time.After(1 * time.Second):
			t.Log("no services found at all")
		}
		t.Fatalf("FindOnLAN failed: %v", err)
	}

	expectedSuffix := ":9999"
	if len(foundAddr) <= len(expectedSuffix) || foundAddr[len(foundAddr)-len(expectedSuffix):] != expectedSuffix {
		t.Errorf("found address %q, expected port %d", foundAddr, port)
	}
}

func TestBrowseNotFound(t *testing.T) {
	var peerID [32]byte
	peerID[0] = 2
	tag := Tag(peerID, "nonexistent")

	start := time.Now()
	_, err := FindOnLAN(tag, 500*time.Millisecond)
	duration := time.Since(start)

	if err == nil {
		t.Error("expected a timeout error, got success")
	}
	if duration < 500*time.Millisecond {
		t.Error("returned too early, didn't wait for timeout")
	}
}
