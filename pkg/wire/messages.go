package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"
)

// Every payload field below is length-prefixed (strings and byte slices
// carry a u32 length, fixed-width scalars carry none but are themselves
// self-describing by type) so a future field can be appended and an
// older decoder can still skip past the fields it knows and stop, per
// spec.md's "every field is length-prefixed so unknown fields can be
// skipped" requirement.

const protocolVersion = 1

// CurrentProtocolVersion is the version this build of qdrop speaks.
func CurrentProtocolVersion() uint32 { return protocolVersion }

type fieldWriter struct {
	buf bytes.Buffer
}

func (w *fieldWriter) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *fieldWriter) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *fieldWriter) bool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *fieldWriter) bytes(v []byte) {
	w.u32(uint32(len(v)))
	w.buf.Write(v)
}

func (w *fieldWriter) string(v string) {
	w.bytes([]byte(v))
}

func (w *fieldWriter) fixed(v [16]byte) {
	w.buf.Write(v[:])
}

type fieldReader struct {
	r *bytes.Reader
}

func newFieldReader(payload []byte) *fieldReader {
	return &fieldReader{r: bytes.NewReader(payload)}
}

func (r *fieldReader) u32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func (r *fieldReader) u64() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func (r *fieldReader) boolean() (bool, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (r *fieldReader) bytesField() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if n > MaxFrameLength {
		return nil, fmt.Errorf("field length %d exceeds frame bound", n)
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r.r, buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func (r *fieldReader) stringField() (string, error) {
	b, err := r.bytesField()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("field is not valid utf-8")
	}
	return string(b), nil
}

func (r *fieldReader) fixed16() ([16]byte, error) {
	var b [16]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return b, err
	}
	return b, nil
}

// Hello is sent receiver→sender to open a session.
type Hello struct {
	ProtocolVersion uint32
	MaxOfferBytes   uint64
}

func (m Hello) Encode() []byte {
	w := &fieldWriter{}
	w.u32(m.ProtocolVersion)
	w.u64(m.MaxOfferBytes)
	return w.buf.Bytes()
}

func DecodeHello(payload []byte) (Hello, error) {
	r := newFieldReader(payload)
	var m Hello
	var err error
	if m.ProtocolVersion, err = r.u32(); err != nil {
		return m, newDecodeError(ShortRead, err)
	}
	if m.MaxOfferBytes, err = r.u64(); err != nil {
		return m, newDecodeError(ShortRead, err)
	}
	return m, nil
}

// HelloAck is sent sender→receiver, accepting or rejecting the session
// and carrying the session nonce that tags every later message.
type HelloAck struct {
	OK              bool
	ProtocolVersion uint32
	ServerTimeUnix  int64
	SessionNonce    [16]byte
	Reason          string
}

func (m HelloAck) Encode() []byte {
	w := &fieldWriter{}
	w.bool(m.OK)
	w.u32(m.ProtocolVersion)
	w.u64(uint64(m.ServerTimeUnix))
	w.fixed(m.SessionNonce)
	w.string(m.Reason)
	return w.buf.Bytes()
}

func DecodeHelloAck(payload []byte) (HelloAck, error) {
	r := newFieldReader(payload)
	var m HelloAck
	var err error
	if m.OK, err = r.boolean(); err != nil {
		return m, newDecodeError(ShortRead, err)
	}
	if m.ProtocolVersion, err = r.u32(); err != nil {
		return m, newDecodeError(ShortRead, err)
	}
	t, err := r.u64()
	if err != nil {
		return m, newDecodeError(ShortRead, err)
	}
	m.ServerTimeUnix = int64(t)
	if m.SessionNonce, err = r.fixed16(); err != nil {
		return m, newDecodeError(ShortRead, err)
	}
	if m.Reason, err = r.stringField(); err != nil {
		return m, newDecodeError(ShortRead, err)
	}
	return m, nil
}

// FileEntry is one logical file or directory within an Offer.
type FileEntry struct {
	RelativePath string
	Size         uint64
	IsDir        bool
	Hash         []byte // 32 bytes when present, nil/empty when absent
}

func (e FileEntry) writeTo(w *fieldWriter) {
	w.string(e.RelativePath)
	w.u64(e.Size)
	w.bool(e.IsDir)
	w.bytes(e.Hash)
}

func readFileEntry(r *fieldReader) (FileEntry, error) {
	var e FileEntry
	var err error
	if e.RelativePath, err = r.stringField(); err != nil {
		return e, err
	}
	if e.Size, err = r.u64(); err != nil {
		return e, err
	}
	if e.IsDir, err = r.boolean(); err != nil {
		return e, err
	}
	if e.Hash, err = r.bytesField(); err != nil {
		return e, err
	}
	return e, nil
}

// Offer is the sender's proposed file/directory set for the session.
type Offer struct {
	Version      uint32
	SessionNonce [16]byte
	Entries      []FileEntry
}

func (m Offer) Encode() []byte {
	w := &fieldWriter{}
	w.u32(m.Version)
	w.fixed(m.SessionNonce)
	w.u32(uint32(len(m.Entries)))
	for _, e := range m.Entries {
		e.writeTo(w)
	}
	return w.buf.Bytes()
}

func DecodeOffer(payload []byte) (Offer, error) {
	r := newFieldReader(payload)
	var m Offer
	var err error
	if m.Version, err = r.u32(); err != nil {
		return m, newDecodeError(ShortRead, err)
	}
	if m.SessionNonce, err = r.fixed16(); err != nil {
		return m, newDecodeError(ShortRead, err)
	}
	count, err := r.u32()
	if err != nil {
		return m, newDecodeError(ShortRead, err)
	}
	m.Entries = make([]FileEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		e, err := readFileEntry(r)
		if err != nil {
			return m, newDecodeError(ShortRead, err)
		}
		m.Entries = append(m.Entries, e)
	}
	return m, nil
}

// AcceptOffer is the receiver's reply accepting the offer and carrying
// the per-entry resume table computed from the destination directory.
type AcceptOffer struct {
	ResumeTable []uint64
	DestOK      bool
}

func (m AcceptOffer) Encode() []byte {
	w := &fieldWriter{}
	w.u32(uint32(len(m.ResumeTable)))
	for _, v := range m.ResumeTable {
		w.u64(v)
	}
	w.bool(m.DestOK)
	return w.buf.Bytes()
}

func DecodeAcceptOffer(payload []byte) (AcceptOffer, error) {
	r := newFieldReader(payload)
	var m AcceptOffer
	count, err := r.u32()
	if err != nil {
		return m, newDecodeError(ShortRead, err)
	}
	m.ResumeTable = make([]uint64, count)
	for i := range m.ResumeTable {
		if m.ResumeTable[i], err = r.u64(); err != nil {
			return m, newDecodeError(ShortRead, err)
		}
	}
	if m.DestOK, err = r.boolean(); err != nil {
		return m, newDecodeError(ShortRead, err)
	}
	return m, nil
}

// RejectOffer is the receiver's reply declining the offer.
type RejectOffer struct {
	Reason string
}

func (m RejectOffer) Encode() []byte {
	w := &fieldWriter{}
	w.string(m.Reason)
	return w.buf.Bytes()
}

func DecodeRejectOffer(payload []byte) (RejectOffer, error) {
	r := newFieldReader(payload)
	var m RejectOffer
	var err error
	if m.Reason, err = r.stringField(); err != nil {
		return m, newDecodeError(ShortRead, err)
	}
	return m, nil
}

// Cancel may be sent by either side at any point after Handshake.
type Cancel struct {
	Reason string
}

func (m Cancel) Encode() []byte {
	w := &fieldWriter{}
	w.string(m.Reason)
	return w.buf.Bytes()
}

func DecodeCancel(payload []byte) (Cancel, error) {
	r := newFieldReader(payload)
	var m Cancel
	var err error
	if m.Reason, err = r.stringField(); err != nil {
		return m, newDecodeError(ShortRead, err)
	}
	return m, nil
}

// TransferDone closes out a successful transfer.
type TransferDone struct {
	TotalBytes uint64
}

func (m TransferDone) Encode() []byte {
	w := &fieldWriter{}
	w.u64(m.TotalBytes)
	return w.buf.Bytes()
}

func DecodeTransferDone(payload []byte) (TransferDone, error) {
	r := newFieldReader(payload)
	var m TransferDone
	var err error
	if m.TotalBytes, err = r.u64(); err != nil {
		return m, newDecodeError(ShortRead, err)
	}
	return m, nil
}

// FileHashRequest asks the sender to hash the first Length bytes of an
// entry's source file, used by the receiver to validate a resume point.
type FileHashRequest struct {
	EntryIndex uint32
	Length     uint64
}

func (m FileHashRequest) Encode() []byte {
	w := &fieldWriter{}
	w.u32(m.EntryIndex)
	w.u64(m.Length)
	return w.buf.Bytes()
}

func DecodeFileHashRequest(payload []byte) (FileHashRequest, error) {
	r := newFieldReader(payload)
	var m FileHashRequest
	var err error
	if m.EntryIndex, err = r.u32(); err != nil {
		return m, newDecodeError(ShortRead, err)
	}
	if m.Length, err = r.u64(); err != nil {
		return m, newDecodeError(ShortRead, err)
	}
	return m, nil
}

// FileHash answers a FileHashRequest. Algorithm is always "blake3" in
// this implementation but is carried on the wire so a future version
// could negotiate a different one without a protocol bump.
type FileHash struct {
	EntryIndex uint32
	Algorithm  string
	Digest     []byte
}

func (m FileHash) Encode() []byte {
	w := &fieldWriter{}
	w.u32(m.EntryIndex)
	w.string(m.Algorithm)
	w.bytes(m.Digest)
	return w.buf.Bytes()
}

func DecodeFileHash(payload []byte) (FileHash, error) {
	r := newFieldReader(payload)
	var m FileHash
	var err error
	if m.EntryIndex, err = r.u32(); err != nil {
		return m, newDecodeError(ShortRead, err)
	}
	if m.Algorithm, err = r.stringField(); err != nil {
		return m, newDecodeError(ShortRead, err)
	}
	if m.Digest, err = r.bytesField(); err != nil {
		return m, newDecodeError(ShortRead, err)
	}
	return m, nil
}
