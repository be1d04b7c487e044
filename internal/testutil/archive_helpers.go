package testutil

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"testing"
)

// ArchiveEntry describes a single entry in a tar.gz archive for testing.
type ArchiveEntry struct {
	Name    string
	Content string
}

// GzipBytes compresses data with gzip.
func GzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	if _, err := gzw.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gzw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// TarGzBytes builds a tar.gz archive containing the given entries in order.
func TarGzBytes(t *testing.T, entries []ArchiveEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)

	for _, e := range entries {
		h := &tar.Header{
			Name:     e.Name,
			Mode:     0644,
			Size:     int64(len(e.Content)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(h); err != nil {
			t.Fatalf("tar header %s: %v", e.Name, err)
		}
		if _, err := tw.Write([]byte(e.Content)); err != nil {
			t.Fatalf("tar write %s: %v", e.Name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := gzw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}
