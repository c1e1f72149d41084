// Package archive bundles a directory tree into one opaque .tar.gz or .zip
// blob, and extracts one back out. It exists only for the CLI's optional
// --archive flag (see cmd/qdrop): the Offer/Accept protocol in pkg/wire and
// internal/offer already transmits whole directory trees natively, so
// nothing in internal/offer or internal/fstree ever needs this package.
// Grounded on the teacher's internal/core.CompressPath (archive creation)
// and the auto-unzip branch of internal/core's receiver (zip-slip-safe
// extraction), generalized from a fixed ".tar.gz or .zip" sender-side
// choice into a small reusable pair of functions.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format names a supported archive container.
type Format string

const (
	TarGz Format = "tar.gz"
	Zip   Format = "zip"
)

// Compress walks srcPath and writes a new archive of the given format to a
// temp file, returning its path. The caller owns cleanup (os.Remove).
func Compress(srcPath string, format Format) (string, error) {
	switch format {
	case TarGz:
		return compressTarGz(srcPath)
	case Zip:
		return compressZip(srcPath)
	default:
		return "", fmt.Errorf("archive: unsupported format %q", format)
	}
}

func compressTarGz(srcPath string) (string, error) {
	tempFile, err := os.CreateTemp("", "qdrop-*.tar.gz")
	if err != nil {
		return "", err
	}

	gw := gzip.NewWriter(tempFile)
	tw := tar.NewWriter(gw)

	walkErr := filepath.Walk(srcPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, info.Name())
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relativeToBase(srcPath, path))
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})

	tw.Close()
	gw.Close()
	tempFile.Close()

	if walkErr != nil {
		os.Remove(tempFile.Name())
		return "", walkErr
	}
	return tempFile.Name(), nil
}

func compressZip(srcPath string) (string, error) {
	tempFile, err := os.CreateTemp("", "qdrop-*.zip")
	if err != nil {
		return "", err
	}

	zw := zip.NewWriter(tempFile)

	walkErr := filepath.Walk(srcPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relativeToBase(srcPath, path))
		if info.IsDir() {
			header.Name += "/"
		} else {
			header.Method = zip.Deflate
		}

		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})

	zw.Close()
	tempFile.Close()

	if walkErr != nil {
		os.Remove(tempFile.Name())
		return "", walkErr
	}
	return tempFile.Name(), nil
}

// relativeToBase names archive entries by the base name of srcPath rather
// than its full path, so extracting "send/project" produces "project/...",
// not the sender's absolute directory layout.
func relativeToBase(srcPath, path string) string {
	base := filepath.Dir(srcPath)
	if base == "." {
		base = ""
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return filepath.Base(path)
	}
	return rel
}

// Extract detects the container from archivePath's extension and unpacks it
// under destDir, rejecting any entry whose name would escape destDir
// (zip slip).
func Extract(archivePath, destDir string) error {
	switch {
	case strings.HasSuffix(archivePath, ".tar.gz") || strings.HasSuffix(archivePath, ".tgz"):
		return extractTarGz(archivePath, destDir)
	case strings.HasSuffix(archivePath, ".zip"):
		return extractZip(archivePath, destDir)
	default:
		return fmt.Errorf("archive: unrecognized extension on %q", archivePath)
	}
}

func safeJoin(destDir, name string) (string, error) {
	target := filepath.Join(destDir, name)
	prefix := filepath.Clean(destDir) + string(os.PathSeparator)
	if !strings.HasPrefix(target, prefix) {
		return "", fmt.Errorf("archive: entry %q escapes destination", name)
	}
	return target, nil
}

func extractTarGz(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			continue
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.Create(target)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}

func extractZip(archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, entry := range zr.File {
		target, err := safeJoin(destDir, entry.Name)
		if err != nil {
			continue
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, entry.Mode())
		if err != nil {
			return err
		}
		rc, err := entry.Open()
		if err != nil {
			out.Close()
			return err
		}
		_, err = io.Copy(out, rc)
		rc.Close()
		out.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
