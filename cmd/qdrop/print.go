package main

import (
	"fmt"

	"github.com/qdrop/qdrop/internal/progressx"
)

// printEvent renders one progressx.Event as a plain stdout line for
// non-TUI sessions, grounded on the teacher's headless switch over
// ui.StatusMsg/ui.ProgressMsg/ui.ErrorMsg in cmd/jend/main.go.
func printEvent(role string, e progressx.Event) {
	switch e.Kind {
	case progressx.ConnectedToServer:
		fmt.Println("connected to signaling server")
	case progressx.PeerConnected:
		fmt.Println("peer connected via", e.Class)
	case progressx.TicketReady:
		fmt.Println("ticket:", e.Ticket)
	case progressx.OfferReceived:
		fmt.Printf("offer: %d entr%s\n", len(e.Entries), plural(len(e.Entries)))
		for _, ent := range e.Entries {
			fmt.Printf("  %s (%d bytes)\n", ent.Path, ent.Size)
		}
	case progressx.FilesDecision:
		if e.Accepted {
			fmt.Println("offer accepted")
		} else {
			fmt.Println("offer rejected")
		}
	case progressx.InitialProgress:
		fmt.Println("resuming previous progress")
	case progressx.BytesTransferred:
		fmt.Printf("%s: %d bytes transferred\n", role, e.TotalSoFar)
	case progressx.TransferFinished:
		fmt.Println(role, "transfer finished")
	case progressx.TransferCancelled:
		fmt.Println(role, "transfer cancelled:", e.Reason)
	case progressx.ErrorEvent:
		fmt.Println(role, "error:", e.ErrKind, e.ErrMessage)
	}
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
