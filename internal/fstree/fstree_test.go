package fstree

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWalkSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := OSProvider{}.Walk([]string{path})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].RelativePath != "note.txt" || entries[0].IsDir {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
	if entries[0].Size != 5 {
		t.Fatalf("size = %d, want 5", entries[0].Size)
	}
}

func TestWalkDirectoryPreOrder(t *testing.T) {
	root := t.TempDir()
	top := filepath.Join(root, "project")
	if err := os.MkdirAll(filepath.Join(top, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(top, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(top, "sub", "b.txt"), []byte("bb"), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := OSProvider{}.Walk([]string{top})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	want := []string{"project", "project/a.txt", "project/sub", "project/sub/b.txt"}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d: %+v", len(entries), len(want), entries)
	}
	for i, rel := range want {
		if entries[i].RelativePath != rel {
			t.Fatalf("entry %d: got %q, want %q", i, entries[i].RelativePath, rel)
		}
	}
	if !entries[0].IsDir || !entries[2].IsDir {
		t.Fatalf("expected directory entries at indices 0 and 2: %+v", entries)
	}
}

func TestWalkRejectsEscapingSymlink(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	top := filepath.Join(root, "project")
	if err := os.Mkdir(top, 0o755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(top, "escape")
	if err := os.Symlink(filepath.Join(outside, "secret.txt"), link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	_, err := OSProvider{}.Walk([]string{top})
	if err == nil {
		t.Fatal("expected an error for an escaping symlink")
	}
}

func TestLockForReadBestEffort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	unlock, err := LockForRead(path)
	if err != nil {
		t.Fatalf("LockForRead: %v", err)
	}
	defer unlock()
}
