// Package telemetry is a human-facing transfer history log: one JSONL
// entry per internal/engine session (ticket tag, role, bytes moved,
// terminal event, duration). It is NOT the resumption substrate — spec.md
// §6 "Persisted state: Only partial destination files" still holds for
// resumption, which internal/offer/internal/materializer reconstruct from
// the destination tree alone. Grounded on the teacher's internal/audit
// package (flock-guarded JSONL, golang-petname IDs, lipgloss table
// rendering), generalized from "one file send/receive" to "one session
// covering many files".
package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	petname "github.com/dustinkirkland/golang-petname"
	"github.com/gofrs/flock"
)

// maxEntries bounds the history log the same way the teacher's did.
const maxEntries = 1000

// LogEntry represents one completed (or terminated) engine session.
type LogEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Role        string    `json:"role"` // "sender" or "receiver"
	TicketTag   string    `json:"ticket_tag"`
	EntryCount  int       `json:"entry_count"`
	BytesMoved  uint64    `json:"bytes_moved"`
	Status      string    `json:"status"` // "done", "rejected", "cancelled", "failed"
	Error       string    `json:"error,omitempty"`
	DurationSec float64   `json:"duration_seconds"`
}

var logPathOverride string

// SetLogPathOverride sets a custom path for the log file (for testing).
func SetLogPathOverride(path string) {
	logPathOverride = path
}

// GetLogPath returns the path to the history log file.
func GetLogPath() (string, error) {
	if logPathOverride != "" {
		return logPathOverride, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".qdrop")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.jsonl"), nil
}

func getLockPath() (string, error) {
	logPath, err := GetLogPath()
	if err != nil {
		return "", err
	}
	return logPath + ".lock", nil
}

func withLock(action func() error) error {
	lockPath, err := getLockPath()
	if err != nil {
		return err
	}

	fileLock := flock.New(lockPath)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	locked, err := fileLock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("telemetry: acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("telemetry: timed out waiting for history lock")
	}
	defer fileLock.Unlock()

	return action()
}

func withReadLock(action func() error) error {
	lockPath, err := getLockPath()
	if err != nil {
		return err
	}

	fileLock := flock.New(lockPath)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	locked, err := fileLock.TryRLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("telemetry: acquire read lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("telemetry: timed out waiting for history read lock")
	}
	defer fileLock.Unlock()

	return action()
}

// WriteEntry appends a log entry; once the log already holds maxEntries
// or more, it rewrites the log keeping only the newest maxEntries.
func WriteEntry(entry LogEntry) error {
	return withLock(func() error {
		path, err := GetLogPath()
		if err != nil {
			return err
		}

		if entry.ID == "" {
			entry.ID = petname.Generate(2, "-")
		}
		if entry.Timestamp.IsZero() {
			entry.Timestamp = time.Now()
		}

		entries, err := loadHistoryInternal(path)
		if err == nil && len(entries) >= maxEntries {
			all := append([]LogEntry{entry}, entries...)
			sort.Slice(all, func(i, j int) bool {
				return all[i].Timestamp.After(all[j].Timestamp)
			})
			return rewriteHistoryInternal(path, all[:maxEntries])
		}

		return appendEntryInternal(path, entry)
	})
}

// ClearHistory deletes the history log file.
func ClearHistory() error {
	return withLock(func() error {
		path, err := GetLogPath()
		if err != nil {
			return err
		}
		return os.Remove(path)
	})
}

// GetEntry finds a specific log entry by ID (prefix match supported).
func GetEntry(id string) (LogEntry, error) {
	var found LogEntry
	err := withReadLock(func() error {
		path, err := GetLogPath()
		if err != nil {
			return err
		}
		entries, err := loadHistoryInternal(path)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if strings.HasPrefix(e.ID, id) {
				found = e
				return nil
			}
		}
		return fmt.Errorf("telemetry: entry %q not found", id)
	})
	return found, err
}

// LoadHistory reads all log entries, newest first.
func LoadHistory() ([]LogEntry, error) {
	var entries []LogEntry
	err := withReadLock(func() error {
		path, err := GetLogPath()
		if err != nil {
			return err
		}
		var loadErr error
		entries, loadErr = loadHistoryInternal(path)
		return loadErr
	})
	return entries, err
}

func loadHistoryInternal(path string) ([]LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []LogEntry{}, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, scanner.Err()
}

func rewriteHistoryInternal(path string, entries []LogEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for i := len(entries) - 1; i >= 0; i-- {
		data, err := json.Marshal(entries[i])
		if err != nil {
			continue
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	return nil
}

func appendEntryInternal(path string, entry LogEntry) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// --- Display ---

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	rowStyle = lipgloss.NewStyle().Padding(0, 1)

	statusDoneStr      = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")).Render("DONE")
	statusRejectedStr  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500")).Render("REJECTED")
	statusCancelledStr = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500")).Render("CANCELLED")
	statusFailedStr    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Render("FAILED")
)

func statusString(status string) string {
	switch status {
	case "done":
		return statusDoneStr
	case "rejected":
		return statusRejectedStr
	case "cancelled":
		return statusCancelledStr
	default:
		return statusFailedStr
	}
}

// ShowHistory prints a table of all recorded sessions.
func ShowHistory() {
	entries, err := LoadHistory()
	if err != nil {
		fmt.Printf("Error loading history: %v\n", err)
		return
	}
	if len(entries) == 0 {
		fmt.Println("No transfer history found.")
		return
	}

	fmt.Println("")
	fmt.Printf("%s %s %s %s %s %s %s\n",
		headerStyle.Width(20).Render("DATE"),
		headerStyle.Width(10).Render("ROLE"),
		headerStyle.Width(14).Render("TAG"),
		headerStyle.Width(7).Render("FILES"),
		headerStyle.Width(10).Render("BYTES"),
		headerStyle.Width(8).Render("TIME"),
		headerStyle.Width(10).Render("STATUS"),
	)
	fmt.Println("")

	for _, e := range entries {
		ts := e.Timestamp.Format("2006-01-02 15:04")
		tag := e.TicketTag
		if len(tag) > 12 {
			tag = tag[:12]
		}
		roleStr := lipgloss.NewStyle().Foreground(lipgloss.Color("#00FFFF")).Render("RECEIVER")
		if e.Role == "sender" {
			roleStr = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500")).Render("SENDER")
		}

		fmt.Printf("%s %s %s %s %s %s %s\n",
			rowStyle.Width(20).Render(ts),
			rowStyle.Width(10).Render(roleStr),
			rowStyle.Width(14).Render(tag),
			rowStyle.Width(7).Render(fmt.Sprintf("%d", e.EntryCount)),
			rowStyle.Width(10).Render(formatBytes(e.BytesMoved)),
			rowStyle.Width(8).Render(fmt.Sprintf("%.1fs", e.DurationSec)),
			rowStyle.Width(10).Render(statusString(e.Status)),
		)
	}
	fmt.Println("")
}

// ShowDetail prints one session's full record.
func ShowDetail(id string) {
	entry, err := GetEntry(id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Println("")
	fmt.Println(headerStyle.Render("SESSION DETAILS"))
	fmt.Println("")

	printKV := func(k, v string) {
		fmt.Printf("%s %s\n", lipgloss.NewStyle().Bold(true).Width(15).Foreground(lipgloss.Color("240")).Render(k+":"), v)
	}

	printKV("ID", entry.ID)
	printKV("Date", entry.Timestamp.Format(time.RFC822))
	printKV("Role", strings.ToUpper(entry.Role))
	printKV("Status", entry.Status)
	printKV("Ticket tag", entry.TicketTag)
	printKV("Files", fmt.Sprintf("%d", entry.EntryCount))
	printKV("Bytes moved", formatBytes(entry.BytesMoved))
	printKV("Duration", fmt.Sprintf("%.2fs", entry.DurationSec))
	fmt.Println("")

	if entry.Error != "" {
		fmt.Println(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF0000")).Render("Error:"))
		fmt.Println(entry.Error)
		fmt.Println("")
	}
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
