// Package fstree implements the FileTreeProvider collaborator (§6):
// given a list of user-supplied paths, yields a pre-order sequence of
// wire.FileEntry with canonicalised relative paths, rejecting symlinks
// that escape the supplied roots. Grounded on the teacher's path-safety
// checks (internal/core/receiver.go's zip/tar-slip guards) generalized
// from "one archive member" to "arbitrary offer entry", and on the
// teacher's source-file locking (internal/core/sender.go) carried
// forward here so a sender doesn't ship a file that's concurrently
// being rewritten on its own disk.
package fstree

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/gofrs/flock"
	"github.com/qdrop/qdrop/pkg/wire"
)

// Entry pairs a wire.FileEntry with enough local state for the Transfer
// Engine to actually read the bytes: the absolute source path (empty for
// directories).
type Entry struct {
	wire.FileEntry
	AbsPath string
}

// Provider yields a pre-order sequence of Entry for a set of root paths.
// The teacher has no equivalent (it only ever sends one file or a single
// compressed archive); this is new relative to the teacher, built in the
// idiom of its path-safety checks.
type Provider interface {
	Walk(roots []string) ([]Entry, error)
}

// OSProvider is the default, real-filesystem-backed Provider.
type OSProvider struct {
	// ComputeHash, when non-nil, is called by Walk for every regular file
	// and its result stored in FileEntry.Hash (for example a blake3
	// digest, as internal/transferengine.HashPrefix computes). Off by
	// default: hashing every file up front is expensive for large trees
	// and the hash is only load-bearing for resume verification, not for
	// offer acceptance (spec.md §3 FileEntry.hash is optional).
	ComputeHash func(path string) ([]byte, error)
}

// Walk lists each root (a file or a directory) and its descendants in
// pre-order: a directory entry always precedes its children, matching
// spec.md §4.4(1).
func (p OSProvider) Walk(roots []string) ([]Entry, error) {
	var entries []Entry
	for _, root := range roots {
		info, err := os.Lstat(root)
		if err != nil {
			return nil, fmt.Errorf("fstree: stat %q: %w", root, err)
		}
		base := filepath.Base(filepath.Clean(root))
		if info.Mode()&os.ModeSymlink != 0 {
			return nil, fmt.Errorf("fstree: %q: %w", root, ErrSymlinkEscape)
		}
		if info.IsDir() {
			sub, err := walkDir(root, base)
			if err != nil {
				return nil, err
			}
			entries = append(entries, sub...)
		} else {
			e, err := fileEntry(root, base, info)
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
		}
	}
	if p.ComputeHash != nil {
		for i := range entries {
			if entries[i].IsDir {
				continue
			}
			h, err := p.ComputeHash(entries[i].AbsPath)
			if err != nil {
				return nil, fmt.Errorf("fstree: hash %q: %w", entries[i].AbsPath, err)
			}
			entries[i].Hash = h
		}
	}
	return entries, nil
}

func walkDir(absRoot, relRoot string) ([]Entry, error) {
	if !utf8.ValidString(relRoot) {
		return nil, fmt.Errorf("fstree: %q: %w", relRoot, ErrInvalidPath)
	}
	entries := []Entry{{FileEntry: wire.FileEntry{RelativePath: relRoot, IsDir: true}}}

	children, err := os.ReadDir(absRoot)
	if err != nil {
		return nil, fmt.Errorf("fstree: read dir %q: %w", absRoot, err)
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Name() < children[j].Name() })

	for _, c := range children {
		childAbs := filepath.Join(absRoot, c.Name())
		childRel := relRoot + "/" + c.Name()

		info, err := os.Lstat(childAbs)
		if err != nil {
			return nil, fmt.Errorf("fstree: stat %q: %w", childAbs, err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := filepath.EvalSymlinks(childAbs)
			if err != nil || !isDescendant(absRoot, target) {
				return nil, fmt.Errorf("fstree: %q: %w", childRel, ErrSymlinkEscape)
			}
			info, err = os.Stat(childAbs)
			if err != nil {
				return nil, fmt.Errorf("fstree: stat resolved symlink %q: %w", childAbs, err)
			}
		}

		if info.IsDir() {
			sub, err := walkDir(childAbs, childRel)
			if err != nil {
				return nil, err
			}
			entries = append(entries, sub...)
		} else {
			e, err := fileEntry(childAbs, childRel, info)
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func fileEntry(absPath, relPath string, info os.FileInfo) (Entry, error) {
	if !utf8.ValidString(relPath) {
		return Entry{}, fmt.Errorf("fstree: %q: %w", relPath, ErrInvalidPath)
	}
	for _, seg := range strings.Split(relPath, "/") {
		if seg == ".." {
			return Entry{}, fmt.Errorf("fstree: %q: %w", relPath, ErrInvalidPath)
		}
	}
	return Entry{
		FileEntry: wire.FileEntry{
			RelativePath: relPath,
			Size:         uint64(info.Size()),
			IsDir:        false,
		},
		AbsPath: absPath,
	}, nil
}

func isDescendant(root, target string) bool {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// LockForRead acquires a best-effort advisory read lock on a source file
// for the duration of a transfer, exactly as the teacher's sender.go
// does with gofrs/flock. Returns a no-op unlock function if the lock
// could not be taken (best effort; a transfer still proceeds unlocked).
func LockForRead(path string) (unlock func(), err error) {
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil || !locked {
		return func() {}, nil
	}
	return func() { _ = fl.Unlock() }, nil
}

// Open opens a source file for reading at an arbitrary offset, used by
// the transfer engine to begin a resumed send partway through the file.
func Open(path string, offset int64) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}
