package ticket

import "testing"

func TestRoundTrip(t *testing.T) {
	var peerID PeerID
	for i := range peerID {
		peerID[i] = byte(i)
	}
	candidates := []CandidateAddr{
		{Network: "udp4", Address: "203.0.113.5:9000"},
		{Network: "udp4", Address: "turn.qdrop.example:3478"},
	}
	tk, err := New(peerID, "qdrop/1", candidates)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s := tk.String()
	got, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.PeerID != tk.PeerID {
		t.Fatalf("peer id mismatch: got %v, want %v", got.PeerID, tk.PeerID)
	}
	if got.Secret != tk.Secret {
		t.Fatalf("secret mismatch")
	}
	if got.ApplicationTag != tk.ApplicationTag {
		t.Fatalf("tag mismatch: got %q, want %q", got.ApplicationTag, tk.ApplicationTag)
	}
	if len(got.Candidates) != len(candidates) {
		t.Fatalf("candidate count = %d, want %d", len(got.Candidates), len(candidates))
	}
	for i := range candidates {
		if got.Candidates[i] != candidates[i] {
			t.Fatalf("candidate %d = %+v, want %+v", i, got.Candidates[i], candidates[i])
		}
	}
}

func TestParseRejectsBadVersion(t *testing.T) {
	tk, err := New(PeerID{}, "qdrop/1", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw := tk.Encode()
	raw[0] = 0xFF
	if _, err := Decode(raw); err == nil {
		t.Fatal("expected error decoding bad version")
	}
}

func TestParseRejectsTruncated(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error decoding truncated ticket")
	}
}

func TestGuardSingleUse(t *testing.T) {
	var g Guard
	if !g.Claim() {
		t.Fatal("first Claim should succeed")
	}
	if g.Claim() {
		t.Fatal("second Claim should fail")
	}
	if !g.Claimed() {
		t.Fatal("Claimed should report true after a successful Claim")
	}
}
