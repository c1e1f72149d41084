package archive

import (
	"os"
	"path/filepath"
	"testing"
)

func makeTestTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "file1.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "subdir", "file2.txt"), []byte("world"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestCompressExtractRoundTripTarGz(t *testing.T) {
	src := makeTestTree(t)

	archivePath, err := Compress(src, TarGz)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	defer os.Remove(archivePath)

	destDir := t.TempDir()
	if err := Extract(archivePath, destDir); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	base := filepath.Base(src)
	got, err := os.ReadFile(filepath.Join(destDir, base, "file1.txt"))
	if err != nil {
		t.Fatalf("file1.txt missing after extract: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("file1.txt content = %q, want %q", got, "hello")
	}

	got, err = os.ReadFile(filepath.Join(destDir, base, "subdir", "file2.txt"))
	if err != nil {
		t.Fatalf("subdir/file2.txt missing after extract: %v", err)
	}
	if string(got) != "world" {
		t.Errorf("subdir/file2.txt content = %q, want %q", got, "world")
	}
}

func TestCompressExtractRoundTripZip(t *testing.T) {
	src := makeTestTree(t)

	archivePath, err := Compress(src, Zip)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	defer os.Remove(archivePath)

	destDir := t.TempDir()
	if err := Extract(archivePath, destDir); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	base := filepath.Base(src)
	got, err := os.ReadFile(filepath.Join(destDir, base, "file1.txt"))
	if err != nil {
		t.Fatalf("file1.txt missing after extract: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("file1.txt content = %q, want %q", got, "hello")
	}
}

func TestExtractRejectsPathEscape(t *testing.T) {
	destDir := t.TempDir()

	if _, err := safeJoin(destDir, "../../etc/passwd"); err == nil {
		t.Fatal("expected safeJoin to reject an escaping entry name")
	}

	target, err := safeJoin(destDir, "nested/ok.txt")
	if err != nil {
		t.Fatalf("safeJoin rejected a valid entry: %v", err)
	}
	if filepath.Dir(target) != filepath.Join(destDir, "nested") {
		t.Errorf("safeJoin produced unexpected path %q", target)
	}
}

func TestCompressUnsupportedFormat(t *testing.T) {
	src := makeTestTree(t)
	if _, err := Compress(src, Format("rar")); err == nil {
		t.Fatal("expected an error for an unsupported format")
	}
}
