package engine

import (
	"context"
	"fmt"

	"github.com/qdrop/qdrop/internal/fstree"
	"github.com/qdrop/qdrop/internal/offer"
	"github.com/qdrop/qdrop/internal/progressx"
	"github.com/qdrop/qdrop/internal/session"
	"github.com/qdrop/qdrop/internal/transferengine"
	"github.com/qdrop/qdrop/internal/transport"
	"github.com/qdrop/qdrop/pkg/wire"
)

// Sender drives the sender side of a session: mint a ticket, accept the
// one connection that redeems it, negotiate the offer, and stream the
// accepted files. Implements the `upload_files` host command (spec.md §6).
type Sender struct {
	*common
	endpoint transport.Endpoint
	provider fstree.Provider
}

// NewSender wraps an already-bound Endpoint (see internal/transport)
// into a Sender that reports progress to sink.
func NewSender(endpoint transport.Endpoint, sink progressx.EventSink) *Sender {
	return &Sender{
		common:   newCommon(sink),
		endpoint: endpoint,
		provider: fstree.OSProvider{},
	}
}

// Run executes the whole sender lifecycle for one session: mint a
// ticket for paths, wait for a redeeming connection, negotiate, and
// transfer. It blocks until the session reaches Done or Closed.
func (s *Sender) Run(ctx context.Context, paths []string) error {
	t, err := s.endpoint.MakeTicket(ApplicationTag)
	if err != nil {
		return &NetworkError{Err: err}
	}
	ticketStr := t.String()
	s.emit(progressx.Event{Kind: progressx.TicketReady, Ticket: ticketStr})

	s.setState(StateHandshake)
	conn, err := s.endpoint.Accept(ctx)
	if err != nil {
		s.setState(StateClosed)
		return &NetworkError{Err: err}
	}
	defer conn.Close(0, "session complete")
	s.emit(progressx.Event{Kind: progressx.PeerConnected, Class: conn.Class()})

	hs, err := session.RunSender(ctx, conn, t.Secret)
	if err != nil {
		s.setState(StateClosed)
		return &ProtocolError{Err: err}
	}

	s.setState(StateOffered)
	wireOffer, localEntries, err := offer.Build(s.provider, paths, hs.SessionNonce)
	if err != nil {
		s.setState(StateClosed)
		return &IoError{Err: err}
	}
	if err := wire.WriteFrame(hs.Control, wire.TagOffer, wireOffer.Encode()); err != nil {
		s.setState(StateClosed)
		return &NetworkError{Err: err}
	}

	frame, err := s.negotiateOffer(hs.Control, localEntries)
	if err != nil {
		s.setState(StateClosed)
		return err
	}

	switch frame.Tag {
	case wire.TagRejectOffer:
		reject, derr := wire.DecodeRejectOffer(frame.Payload)
		if derr != nil {
			s.setState(StateClosed)
			return &ProtocolError{Err: derr}
		}
		s.emit(progressx.Event{Kind: progressx.FilesDecision, Accepted: false})
		_ = reject
		s.setState(StateClosed)
		return ErrRejected
	case wire.TagAcceptOffer:
		accept, derr := wire.DecodeAcceptOffer(frame.Payload)
		if derr != nil {
			s.setState(StateClosed)
			return &ProtocolError{Err: derr}
		}
		if err := offer.ValidateResumeTable(wireOffer.Entries, accept.ResumeTable); err != nil {
			s.setState(StateClosed)
			return &ProtocolError{Err: err}
		}
		s.emit(progressx.Event{Kind: progressx.FilesDecision, Accepted: true})

		s.counter = progressx.NewCounter(s.sink, progressx.DefaultInterval)
		s.setState(StateTransferring)

		total, terr := transferengine.Send(ctx, transferengine.SendPlan{
			Conn:        conn,
			Entries:     localEntries,
			ResumeTable: accept.ResumeTable,
			Concurrency: s.concurrency,
			ChunkSize:   s.chunkSize,
			Counter:     s.counter,
			Cancel:      s.cancelCh,
		})
		s.counter.Flush()
		if terr != nil {
			s.setState(StateClosed)
			if terr == transferengine.ErrCancelled {
				s.emit(progressx.Event{Kind: progressx.TransferCancelled, Reason: "local or peer cancel"})
				return ErrCancelled
			}
			s.emit(progressx.Event{Kind: progressx.ErrorEvent, ErrKind: "IoError", ErrMessage: terr.Error()})
			return translateTransferErr(terr)
		}

		done := wire.TransferDone{TotalBytes: total}
		if err := wire.WriteFrame(hs.Control, wire.TagTransferDone, done.Encode()); err != nil {
			s.setState(StateClosed)
			return &NetworkError{Err: err}
		}

		s.setState(StateDone)
		s.emit(progressx.Event{Kind: progressx.TransferFinished})
		return nil
	default:
		s.setState(StateClosed)
		return &ProtocolError{Err: fmt.Errorf("unexpected frame tag %s after Offer", frame.Tag)}
	}
}

// negotiateOffer reads frames off control until the peer's terminal
// Accept/RejectOffer, answering any FileHashRequest along the way so the
// receiver can verify a resume point before committing to it.
func (s *Sender) negotiateOffer(control transport.Stream, entries []fstree.Entry) (wire.Frame, error) {
	for {
		frame, err := wire.ReadFrame(control)
		if err != nil {
			return wire.Frame{}, &NetworkError{Err: err}
		}
		if frame.Tag != wire.TagFileHashRequest {
			return frame, nil
		}
		req, derr := wire.DecodeFileHashRequest(frame.Payload)
		if derr != nil {
			return wire.Frame{}, &ProtocolError{Err: derr}
		}
		if err := s.answerHashRequest(control, req, entries); err != nil {
			return wire.Frame{}, err
		}
	}
}

// answerHashRequest hashes the first req.Length bytes of the requested
// entry's source file and writes back a FileHash frame.
func (s *Sender) answerHashRequest(control transport.Stream, req wire.FileHashRequest, entries []fstree.Entry) error {
	if int(req.EntryIndex) >= len(entries) {
		return &ProtocolError{Err: fmt.Errorf("file hash request: entry index %d out of range", req.EntryIndex)}
	}
	entry := entries[req.EntryIndex]
	f, err := fstree.Open(entry.AbsPath, 0)
	if err != nil {
		return &IoError{Err: err}
	}
	defer f.Close()
	digest, err := transferengine.HashPrefix(f, req.Length)
	if err != nil {
		return &IoError{Err: err}
	}
	resp := wire.FileHash{EntryIndex: req.EntryIndex, Algorithm: "blake3", Digest: digest}
	if err := wire.WriteFrame(control, wire.TagFileHash, resp.Encode()); err != nil {
		return &NetworkError{Err: err}
	}
	return nil
}
