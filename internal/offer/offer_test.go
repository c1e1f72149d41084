package offer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/qdrop/qdrop/internal/fstree"
	"github.com/qdrop/qdrop/pkg/wire"
)

func TestBuildOffer(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	o, entries, err := Build(fstree.OSProvider{}, []string{dir}, [16]byte{1, 2, 3})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(o.Entries) != 2 {
		t.Fatalf("got %d entries, want 2 (dir + file)", len(o.Entries))
	}
	if len(entries) != len(o.Entries) {
		t.Fatalf("local entries len %d != offer entries len %d", len(entries), len(o.Entries))
	}
}

func TestBuildResumeTableFreshDestination(t *testing.T) {
	dest := t.TempDir()
	entries := []wire.FileEntry{
		{RelativePath: "a.txt", Size: 100},
		{RelativePath: "sub", IsDir: true},
	}
	table, err := BuildResumeTable(dest, entries)
	if err != nil {
		t.Fatalf("BuildResumeTable: %v", err)
	}
	if table[0] != 0 || table[1] != 0 {
		t.Fatalf("got %v, want all zero for a fresh destination", table)
	}
}

func TestBuildResumeTablePartialFile(t *testing.T) {
	dest := t.TempDir()
	if err := os.WriteFile(filepath.Join(dest, "a.txt"), make([]byte, 40), 0o644); err != nil {
		t.Fatal(err)
	}
	entries := []wire.FileEntry{{RelativePath: "a.txt", Size: 100}}
	table, err := BuildResumeTable(dest, entries)
	if err != nil {
		t.Fatalf("BuildResumeTable: %v", err)
	}
	if table[0] != 40 {
		t.Fatalf("got %d, want 40", table[0])
	}
}

func TestBuildResumeTableOversizedFileResetsToZero(t *testing.T) {
	dest := t.TempDir()
	if err := os.WriteFile(filepath.Join(dest, "a.txt"), make([]byte, 200), 0o644); err != nil {
		t.Fatal(err)
	}
	entries := []wire.FileEntry{{RelativePath: "a.txt", Size: 100}}
	table, err := BuildResumeTable(dest, entries)
	if err != nil {
		t.Fatalf("BuildResumeTable: %v", err)
	}
	if table[0] != 0 {
		t.Fatalf("got %d, want 0 for an oversized existing file", table[0])
	}
}

func TestBuildResumeTableTypeMismatchResetsToZero(t *testing.T) {
	dest := t.TempDir()
	if err := os.Mkdir(filepath.Join(dest, "a.txt"), 0o755); err != nil {
		t.Fatal(err)
	}
	entries := []wire.FileEntry{{RelativePath: "a.txt", Size: 100}}
	table, err := BuildResumeTable(dest, entries)
	if err != nil {
		t.Fatalf("BuildResumeTable: %v", err)
	}
	if table[0] != 0 {
		t.Fatalf("got %d, want 0 when a directory occupies a file's expected path", table[0])
	}
}

func TestValidateResumeTableRejectsOversizedValue(t *testing.T) {
	entries := []wire.FileEntry{{RelativePath: "a.txt", Size: 10}}
	if err := ValidateResumeTable(entries, []uint64{11}); err == nil {
		t.Fatal("expected an error for resume_table[i] > size")
	}
}

func TestValidateResumeTableRejectsLengthMismatch(t *testing.T) {
	entries := []wire.FileEntry{{RelativePath: "a.txt", Size: 10}}
	if err := ValidateResumeTable(entries, []uint64{1, 2}); err == nil {
		t.Fatal("expected an error for mismatched lengths")
	}
}

func TestPendingIndexesSkipsDirsAndComplete(t *testing.T) {
	entries := []wire.FileEntry{
		{RelativePath: "dir", IsDir: true},
		{RelativePath: "done.txt", Size: 10},
		{RelativePath: "partial.txt", Size: 10},
	}
	resumeTable := []uint64{0, 10, 4}
	pending := PendingIndexes(entries, resumeTable)
	if len(pending) != 1 || pending[0] != 2 {
		t.Fatalf("got %v, want [2]", pending)
	}
}
