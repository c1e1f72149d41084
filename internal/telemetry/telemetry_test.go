package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHistoryLifecycle(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test_history.jsonl")
	SetLogPathOverride(logFile)
	defer SetLogPathOverride("")

	entry1 := LogEntry{ID: "1", Role: "sender", TicketTag: "abc123", Status: "done"}
	if err := WriteEntry(entry1); err != nil {
		t.Fatalf("WriteEntry failed: %v", err)
	}

	entries, err := LoadHistory()
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ID != "1" {
		t.Errorf("expected ID 1, got %s", entries[0].ID)
	}

	for i := 0; i < 1100; i++ {
		e := LogEntry{
			ID:        fmt.Sprintf("p-%d", i),
			Timestamp: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := WriteEntry(e); err != nil {
			t.Fatalf("WriteEntry loop failed at %d: %v", i, err)
		}
	}

	entries, err = LoadHistory()
	if err != nil {
		t.Fatalf("LoadHistory after prune failed: %v", err)
	}
	if len(entries) > maxEntries {
		t.Errorf("pruning failed: expected <= %d entries, got %d", maxEntries, len(entries))
	}

	if err := ClearHistory(); err != nil {
		t.Fatalf("ClearHistory failed: %v", err)
	}
	entries, _ = LoadHistory()
	if len(entries) != 0 {
		t.Errorf("history not cleared, got %d entries", len(entries))
	}
	if _, err := os.Stat(logFile); !os.IsNotExist(err) {
		t.Error("log file still exists after clear")
	}
}

func TestGetEntryPrefixMatch(t *testing.T) {
	tmpDir := t.TempDir()
	SetLogPathOverride(filepath.Join(tmpDir, "history.jsonl"))
	defer SetLogPathOverride("")

	if err := WriteEntry(LogEntry{ID: "swift-falcon", Role: "receiver", Status: "done"}); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}

	entry, err := GetEntry("swift")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if entry.ID != "swift-falcon" {
		t.Errorf("ID = %q, want swift-falcon", entry.ID)
	}
}

func TestConcurrentWrites(t *testing.T) {
	tmpDir := t.TempDir()
	SetLogPathOverride(filepath.Join(tmpDir, "history.jsonl"))
	defer SetLogPathOverride("")

	const numGoroutines = 10
	const entriesPerGoroutine = 50
	errCh := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			for j := 0; j < entriesPerGoroutine; j++ {
				entry := LogEntry{
					ID:        fmt.Sprintf("worker-%d-%d", id, j),
					Timestamp: time.Now(),
					Role:      "sender",
					Status:    "done",
				}
				if err := WriteEntry(entry); err != nil {
					errCh <- fmt.Errorf("worker %d failed: %w", id, err)
					return
				}
			}
			errCh <- nil
		}(i)
	}

	for i := 0; i < numGoroutines; i++ {
		if err := <-errCh; err != nil {
			t.Fatal(err)
		}
	}

	entries, err := LoadHistory()
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	want := numGoroutines * entriesPerGoroutine
	if len(entries) != want {
		t.Errorf("expected %d entries, got %d", want, len(entries))
	}
}
