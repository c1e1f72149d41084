package engine

import (
	"context"
	"fmt"

	"github.com/qdrop/qdrop/internal/materializer"
	"github.com/qdrop/qdrop/internal/offer"
	"github.com/qdrop/qdrop/internal/progressx"
	"github.com/qdrop/qdrop/internal/session"
	"github.com/qdrop/qdrop/internal/ticket"
	"github.com/qdrop/qdrop/internal/transferengine"
	"github.com/qdrop/qdrop/internal/transport"
	"github.com/qdrop/qdrop/pkg/wire"
)

// MaxOfferBytes bounds the Hello.max_offer_bytes advertised by a
// receiver; the sender is free to ignore it, but it tells a
// cooperating sender this receiver's practical ceiling. Zero means
// unbounded.
const MaxOfferBytes = 0

// decision is how AcceptFiles/RejectFiles hand their outcome back to
// the goroutine blocked awaiting the host's decision in Run.
type decision struct {
	accept bool
	destDir string
	reason  string
}

// Receiver drives the receiver side of a session: redeem a ticket,
// negotiate the offer against a host-supplied destination, and accept
// the transfer. Implements `download_files`/`accept_files`/
// `reject_files` (spec.md §6).
type Receiver struct {
	*common
	endpoint   transport.Endpoint
	decisionCh chan decision
}

// NewReceiver wraps an already-bound Endpoint into a Receiver that
// reports progress to sink.
func NewReceiver(endpoint transport.Endpoint, sink progressx.EventSink) *Receiver {
	return &Receiver{
		common:     newCommon(sink),
		endpoint:   endpoint,
		decisionCh: make(chan decision, 1),
	}
}

// AcceptFiles implements the `accept_files` host command: it unblocks
// Run once it has surfaced OfferReceived and is waiting for a decision.
func (r *Receiver) AcceptFiles(destDir string) {
	r.decisionCh <- decision{accept: true, destDir: destDir}
}

// RejectFiles implements the `reject_files` host command.
func (r *Receiver) RejectFiles(reason string) {
	r.decisionCh <- decision{accept: false, reason: reason}
}

// Run executes the whole receiver lifecycle for one session: dial the
// ticket, negotiate the offer, wait for a host decision, and receive
// the transfer. It blocks until the session reaches Done or Closed.
func (r *Receiver) Run(ctx context.Context, t ticket.Ticket) error {
	r.setState(StateHandshake)
	conn, err := r.endpoint.Connect(ctx, t)
	if err != nil {
		r.setState(StateClosed)
		return &NetworkError{Err: err}
	}
	defer conn.Close(0, "session complete")
	r.emit(progressx.Event{Kind: progressx.PeerConnected, Class: conn.Class()})

	hs, err := session.RunReceiver(ctx, conn, t.Secret, MaxOfferBytes)
	if err != nil {
		r.setState(StateClosed)
		return &ProtocolError{Err: err}
	}

	r.setState(StateOffered)
	frame, err := wire.ReadFrame(hs.Control)
	if err != nil {
		r.setState(StateClosed)
		return &NetworkError{Err: err}
	}
	if frame.Tag != wire.TagOffer {
		r.setState(StateClosed)
		return &ProtocolError{Err: fmt.Errorf("expected Offer, got %s", frame.Tag)}
	}
	wireOffer, err := wire.DecodeOffer(frame.Payload)
	if err != nil {
		r.setState(StateClosed)
		return &ProtocolError{Err: err}
	}
	r.emit(progressx.Event{Kind: progressx.OfferReceived, Entries: wireOffer.Entries})

	var d decision
	select {
	case d = <-r.decisionCh:
	case <-r.cancelCh:
		d = decision{accept: false, reason: "cancelled"}
	case <-ctx.Done():
		r.setState(StateClosed)
		return &NetworkError{Err: ctx.Err()}
	}

	if !d.accept {
		reject := wire.RejectOffer{Reason: d.reason}
		_ = wire.WriteFrame(hs.Control, wire.TagRejectOffer, reject.Encode())
		r.setState(StateClosed)
		if d.reason == "cancelled" {
			r.emit(progressx.Event{Kind: progressx.TransferCancelled, Reason: d.reason})
			return ErrCancelled
		}
		return ErrRejected
	}

	mat, err := materializer.New(d.destDir)
	if err != nil {
		r.setState(StateClosed)
		return &IoError{Err: err}
	}
	resumeTable, err := offer.BuildResumeTable(d.destDir, wireOffer.Entries)
	if err != nil {
		r.setState(StateClosed)
		return &IoError{Err: err}
	}
	if err := r.verifyResumeTable(hs.Control, mat, wireOffer.Entries, resumeTable); err != nil {
		r.setState(StateClosed)
		return err
	}
	r.emit(progressx.Event{Kind: progressx.InitialProgress, PerFileBytesAlready: resumeTable})

	accept := wire.AcceptOffer{ResumeTable: resumeTable, DestOK: true}
	if err := wire.WriteFrame(hs.Control, wire.TagAcceptOffer, accept.Encode()); err != nil {
		r.setState(StateClosed)
		return &NetworkError{Err: err}
	}

	r.counter = progressx.NewCounter(r.sink, progressx.DefaultInterval)
	r.setState(StateTransferring)

	incomplete, terr := transferengine.Receive(ctx, transferengine.ReceivePlan{
		Conn:        conn,
		Mat:         mat,
		Entries:     wireOffer.Entries,
		ResumeTable: resumeTable,
		Concurrency: r.concurrency,
		ChunkSize:   r.chunkSize,
		Counter:     r.counter,
		Cancel:      r.cancelCh,
	})
	r.counter.Flush()
	if terr != nil {
		r.setState(StateClosed)
		if terr == transferengine.ErrCancelled {
			r.emit(progressx.Event{Kind: progressx.TransferCancelled, Reason: "local or peer cancel"})
			return ErrCancelled
		}
		r.emit(progressx.Event{Kind: progressx.ErrorEvent, ErrKind: "IoError", ErrMessage: terr.Error()})
		return translateTransferErr(terr)
	}
	if len(incomplete) > 0 {
		r.setState(StateClosed)
		err := fmt.Errorf("%d entries incomplete", len(incomplete))
		r.emit(progressx.Event{Kind: progressx.ErrorEvent, ErrKind: "ProtocolError", ErrMessage: err.Error()})
		return &ProtocolError{Err: err}
	}

	frame, err = wire.ReadFrame(hs.Control)
	if err != nil {
		r.setState(StateClosed)
		return &NetworkError{Err: err}
	}
	if frame.Tag != wire.TagTransferDone {
		r.setState(StateClosed)
		return &ProtocolError{Err: fmt.Errorf("expected TransferDone, got %s", frame.Tag)}
	}

	r.setState(StateDone)
	r.emit(progressx.Event{Kind: progressx.TransferFinished})
	return nil
}

// verifyResumeTable asks the sender to hash the already-on-disk prefix of
// every entry resumeTable proposes resuming, per spec.md §4.5's integrity
// check, and zeroes any entry whose local bytes don't match the sender's
// digest so it retransmits from 0 instead of silently resuming corrupt
// content.
func (r *Receiver) verifyResumeTable(control transport.Stream, mat *materializer.Materializer, entries []wire.FileEntry, resumeTable []uint64) error {
	for i, e := range entries {
		if e.IsDir || resumeTable[i] == 0 {
			continue
		}
		req := wire.FileHashRequest{EntryIndex: uint32(i), Length: resumeTable[i]}
		if err := wire.WriteFrame(control, wire.TagFileHashRequest, req.Encode()); err != nil {
			return &NetworkError{Err: err}
		}
		frame, err := wire.ReadFrame(control)
		if err != nil {
			return &NetworkError{Err: err}
		}
		if frame.Tag != wire.TagFileHash {
			return &ProtocolError{Err: fmt.Errorf("expected FileHash, got %s", frame.Tag)}
		}
		hash, derr := wire.DecodeFileHash(frame.Payload)
		if derr != nil {
			return &ProtocolError{Err: derr}
		}
		destPath, perr := mat.ResolvePath(e.RelativePath)
		if perr != nil {
			return &IoError{Err: perr}
		}
		ok, verr := transferengine.VerifyResume(destPath, resumeTable[i], hash.Digest)
		if verr != nil {
			return &IoError{Err: verr}
		}
		if !ok {
			resumeTable[i] = 0
		}
	}
	return nil
}
