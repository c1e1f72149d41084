package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestHelloRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Hello{ProtocolVersion: CurrentProtocolVersion(), MaxOfferBytes: 1 << 30}
	if err := WriteFrame(&buf, TagHello, want.Encode()); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	frame, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if frame.Tag != TagHello {
		t.Fatalf("tag = %v, want %v", frame.Tag, TagHello)
	}
	got, err := DecodeHello(frame.Payload)
	if err != nil {
		t.Fatalf("DecodeHello: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestHelloAckRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := HelloAck{
		OK:              false,
		ProtocolVersion: CurrentProtocolVersion(),
		ServerTimeUnix:  1700000000,
		SessionNonce:    [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		Reason:          "version",
	}
	if err := WriteFrame(&buf, TagHelloAck, want.Encode()); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	frame, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	got, err := DecodeHelloAck(frame.Payload)
	if err != nil {
		t.Fatalf("DecodeHelloAck: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestOfferRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Offer{
		Version:      CurrentProtocolVersion(),
		SessionNonce: [16]byte{9, 9, 9},
		Entries: []FileEntry{
			{RelativePath: "root", Size: 0, IsDir: true},
			{RelativePath: "root/a.bin", Size: 1 << 20, IsDir: false, Hash: bytes.Repeat([]byte{0xAB}, 32)},
			{RelativePath: "root/sub/b.bin", Size: 2 << 20, IsDir: false},
		},
	}
	if err := WriteFrame(&buf, TagOffer, want.Encode()); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	frame, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	got, err := DecodeOffer(frame.Payload)
	if err != nil {
		t.Fatalf("DecodeOffer: %v", err)
	}
	if got.Version != want.Version || got.SessionNonce != want.SessionNonce {
		t.Fatalf("header mismatch: got %+v", got)
	}
	if len(got.Entries) != len(want.Entries) {
		t.Fatalf("entry count = %d, want %d", len(got.Entries), len(want.Entries))
	}
	for i := range want.Entries {
		if got.Entries[i].RelativePath != want.Entries[i].RelativePath ||
			got.Entries[i].Size != want.Entries[i].Size ||
			got.Entries[i].IsDir != want.Entries[i].IsDir ||
			!bytes.Equal(got.Entries[i].Hash, want.Entries[i].Hash) {
			t.Fatalf("entry %d mismatch: got %+v, want %+v", i, got.Entries[i], want.Entries[i])
		}
	}
}

func TestAcceptOfferRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := AcceptOffer{ResumeTable: []uint64{0, 512 * 1024, 0}, DestOK: true}
	if err := WriteFrame(&buf, TagAcceptOffer, want.Encode()); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	frame, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	got, err := DecodeAcceptOffer(frame.Payload)
	if err != nil {
		t.Fatalf("DecodeAcceptOffer: %v", err)
	}
	if got.DestOK != want.DestOK || len(got.ResumeTable) != len(want.ResumeTable) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	for i := range want.ResumeTable {
		if got.ResumeTable[i] != want.ResumeTable[i] {
			t.Fatalf("resume[%d] = %d, want %d", i, got.ResumeTable[i], want.ResumeTable[i])
		}
	}
}

func TestRejectCancelTransferDoneRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, TagRejectOffer, RejectOffer{Reason: "not interested"}.Encode()); err != nil {
		t.Fatalf("WriteFrame RejectOffer: %v", err)
	}
	if err := WriteFrame(&buf, TagCancel, Cancel{Reason: "user cancelled"}.Encode()); err != nil {
		t.Fatalf("WriteFrame Cancel: %v", err)
	}
	if err := WriteFrame(&buf, TagTransferDone, TransferDone{TotalBytes: 3 << 20}.Encode()); err != nil {
		t.Fatalf("WriteFrame TransferDone: %v", err)
	}

	f1, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame 1: %v", err)
	}
	reject, err := DecodeRejectOffer(f1.Payload)
	if err != nil || reject.Reason != "not interested" {
		t.Fatalf("RejectOffer got %+v, err %v", reject, err)
	}

	f2, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame 2: %v", err)
	}
	cancel, err := DecodeCancel(f2.Payload)
	if err != nil || cancel.Reason != "user cancelled" {
		t.Fatalf("Cancel got %+v, err %v", cancel, err)
	}

	f3, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame 3: %v", err)
	}
	done, err := DecodeTransferDone(f3.Payload)
	if err != nil || done.TotalBytes != 3<<20 {
		t.Fatalf("TransferDone got %+v, err %v", done, err)
	}
}

func TestFileHashRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	reqWant := FileHashRequest{EntryIndex: 2, Length: 512 * 1024}
	if err := WriteFrame(&buf, TagFileHashRequest, reqWant.Encode()); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	f, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	req, err := DecodeFileHashRequest(f.Payload)
	if err != nil || req != reqWant {
		t.Fatalf("got %+v, want %+v (err %v)", req, reqWant, err)
	}

	hashWant := FileHash{EntryIndex: 2, Algorithm: "blake3", Digest: bytes.Repeat([]byte{0x11}, 32)}
	if err := WriteFrame(&buf, TagFileHash, hashWant.Encode()); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	f2, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	hash, err := DecodeFileHash(f2.Payload)
	if err != nil {
		t.Fatalf("DecodeFileHash: %v", err)
	}
	if hash.EntryIndex != hashWant.EntryIndex || hash.Algorithm != hashWant.Algorithm || !bytes.Equal(hash.Digest, hashWant.Digest) {
		t.Fatalf("got %+v, want %+v", hash, hashWant)
	}
}

func TestReadFrameBadTag(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0xFF)
	buf.Write([]byte{0, 0, 0, 0})
	_, err := ReadFrame(&buf)
	var decErr *DecodeError
	if !errors.As(err, &decErr) || decErr.Kind != BadTag {
		t.Fatalf("got %v, want BadTag DecodeError", err)
	}
}

func TestReadFrameShortRead(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(TagHello))
	buf.Write([]byte{0, 0, 0, 10}) // declares 10 bytes, supplies none
	_, err := ReadFrame(&buf)
	var decErr *DecodeError
	if !errors.As(err, &decErr) || decErr.Kind != ShortRead {
		t.Fatalf("got %v, want ShortRead DecodeError", err)
	}
}
