// Package offer implements the Offer/Accept Engine (spec.md §4.4): it
// turns an fstree.Provider's pre-order walk into a wire.Offer on the
// sender side, and computes a ResumeTable by inspecting a destination
// directory on the receiver side. Grounded on the teacher's manifest
// handling in internal/core/receiver.go, generalized from "one archive"
// to "an offer of many independently-resumable entries".
package offer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/qdrop/qdrop/internal/fstree"
	"github.com/qdrop/qdrop/pkg/wire"
)

// ErrOfferBuild is returned when a source path produces an offer entry
// that violates spec.md §4.4(1): a ".." segment, an absolute root, or a
// non-UTF-8 path component.
var ErrOfferBuild = errors.New("offer: invalid entry")

// Build walks roots via provider and returns the resulting Offer plus
// the local fstree.Entry slice (same order, same length) the transfer
// engine needs to find each entry's bytes on disk.
func Build(provider fstree.Provider, roots []string, sessionNonce [16]byte) (wire.Offer, []fstree.Entry, error) {
	entries, err := provider.Walk(roots)
	if err != nil {
		return wire.Offer{}, nil, fmt.Errorf("%w: %v", ErrOfferBuild, err)
	}
	fileEntries := make([]wire.FileEntry, len(entries))
	for i, e := range entries {
		fileEntries[i] = e.FileEntry
	}
	return wire.Offer{
		Version:      wire.CurrentProtocolVersion(),
		SessionNonce: sessionNonce,
		Entries:      fileEntries,
	}, entries, nil
}

// BuildResumeTable implements spec.md §4.4(4): for each entry, inspect
// destRoot/relative_path and decide how many bytes are already present.
func BuildResumeTable(destRoot string, entries []wire.FileEntry) ([]uint64, error) {
	table := make([]uint64, len(entries))
	for i, e := range entries {
		if e.IsDir {
			table[i] = 0
			continue
		}
		target := filepath.Join(destRoot, filepath.FromSlash(e.RelativePath))
		info, err := os.Lstat(target)
		switch {
		case errors.Is(err, os.ErrNotExist):
			table[i] = 0
		case err != nil:
			return nil, fmt.Errorf("offer: stat %q: %w", target, err)
		case info.IsDir():
			// spec.md §4.4(4): destination is a directory where a file is
			// expected; resume 0 and the item is replaced at write time.
			table[i] = 0
		case uint64(info.Size()) <= e.Size:
			table[i] = uint64(info.Size())
		default:
			// Existing file is larger than expected; resume 0, truncate on
			// first write.
			table[i] = 0
		}
	}
	return table, nil
}

// ValidateResumeTable implements the sender-side check from spec.md
// §4.4(5): 0 ≤ resume_table[i] ≤ entries[i].size and matching lengths.
func ValidateResumeTable(entries []wire.FileEntry, resumeTable []uint64) error {
	if len(resumeTable) != len(entries) {
		return fmt.Errorf("offer: resume table has %d entries, want %d", len(resumeTable), len(entries))
	}
	for i, e := range entries {
		if resumeTable[i] > e.Size {
			return fmt.Errorf("offer: resume_table[%d]=%d exceeds entry size %d", i, resumeTable[i], e.Size)
		}
	}
	return nil
}

// PendingIndexes returns, in offer order, the indexes of entries the
// transfer engine must actually open a data stream for: non-directory
// entries not already fully present (spec.md §4.5).
func PendingIndexes(entries []wire.FileEntry, resumeTable []uint64) []int {
	var pending []int
	for i, e := range entries {
		if e.IsDir {
			continue
		}
		if resumeTable[i] < e.Size {
			pending = append(pending, i)
		}
	}
	return pending
}
