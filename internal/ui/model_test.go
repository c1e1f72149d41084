package ui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/qdrop/qdrop/internal/progressx"
	"github.com/qdrop/qdrop/pkg/wire"
)

func TestModelTicketReadyShowsTicket(t *testing.T) {
	m := NewModel(RoleSender)
	updated, _ := m.Update(EventMsg(progressx.Event{Kind: progressx.TicketReady, Ticket: "abc.def"}))
	mm := updated.(Model)
	if mm.Ticket != "abc.def" {
		t.Errorf("Ticket = %q, want %q", mm.Ticket, "abc.def")
	}
	if mm.State != StateConnecting {
		t.Errorf("State = %v, want StateConnecting", mm.State)
	}
}

func TestModelOfferReceivedComputesTotal(t *testing.T) {
	m := NewModel(RoleReceiver)
	entries := []wire.FileEntry{{RelativePath: "a.txt", Size: 100}, {RelativePath: "b.txt", Size: 200}}
	updated, _ := m.Update(EventMsg(progressx.Event{Kind: progressx.OfferReceived, Entries: entries}))
	mm := updated.(Model)
	if mm.TotalBytes != 300 {
		t.Errorf("TotalBytes = %d, want 300", mm.TotalBytes)
	}
	if mm.State != StateOffered {
		t.Errorf("State = %v, want StateOffered", mm.State)
	}
}

func TestModelTransferFinishedQuits(t *testing.T) {
	m := NewModel(RoleReceiver)
	updated, cmd := m.Update(EventMsg(progressx.Event{Kind: progressx.TransferFinished}))
	mm := updated.(Model)
	if mm.State != StateDone {
		t.Errorf("State = %v, want StateDone", mm.State)
	}
	if cmd == nil {
		t.Fatal("expected a tea.Quit command")
	}
	if msg := cmd(); msg != tea.Quit() {
		t.Errorf("expected tea.Quit message, got %v", msg)
	}
}

func TestModelErrorEventSetsErr(t *testing.T) {
	m := NewModel(RoleSender)
	updated, _ := m.Update(EventMsg(progressx.Event{Kind: progressx.ErrorEvent, ErrKind: "IoError", ErrMessage: "disk full"}))
	mm := updated.(Model)
	if mm.Err == nil {
		t.Fatal("expected Err to be set")
	}
	if mm.State != StateError {
		t.Errorf("State = %v, want StateError", mm.State)
	}
}
