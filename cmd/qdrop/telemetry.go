package main

import (
	"time"

	"github.com/qdrop/qdrop/internal/telemetry"
)

// recordSession writes one telemetry.LogEntry for a finished engine
// session, classifying the terminal outcome the way spec.md §7 does.
func recordSession(role, ticketTag string, entryCount int, bytesMoved uint64, started time.Time, err error) {
	status := "done"
	errMsg := ""
	switch {
	case err == nil:
		status = "done"
	case isRejected(err):
		status = "rejected"
	case isCancelled(err):
		status = "cancelled"
	default:
		status = "failed"
		errMsg = err.Error()
	}

	_ = telemetry.WriteEntry(telemetry.LogEntry{
		Role:        role,
		TicketTag:   ticketTag,
		EntryCount:  entryCount,
		BytesMoved:  bytesMoved,
		Status:      status,
		Error:       errMsg,
		DurationSec: time.Since(started).Seconds(),
	})
}
