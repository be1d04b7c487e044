package mailbox

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"
)

// documentSuffix is the extension of the structured export document itself.
const documentSuffix = ".json"

// supportedAttachment reports whether an attachment filename looks like an
// export artifact we know how to open.
func supportedAttachment(name string) bool {
	return strings.HasSuffix(name, ".gz") || strings.HasSuffix(name, documentSuffix)
}

// decompress extracts the export document bytes from an attachment. The
// filename picks the strategy: a tar.gz container, a single gzip stream, or
// an already-decompressed document passed through unchanged.
func decompress(data []byte, filename string) ([]byte, error) {
	switch {
	case strings.HasSuffix(filename, ".tar.gz"):
		return extractFromTarGz(data)
	case strings.HasSuffix(filename, ".gz"):
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("open gzip stream %s: %w", filename, err)
		}
		defer gz.Close()
		out, err := io.ReadAll(gz)
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", filename, err)
		}
		return out, nil
	case strings.HasSuffix(filename, documentSuffix):
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported attachment format: %s", filename)
	}
}

// extractFromTarGz returns the first archive entry whose name ends in the
// document suffix, falling back to the first regular entry when none match.
func extractFromTarGz(data []byte) ([]byte, error) {
	readEntries := func(pick func(name string) bool) ([]byte, bool, error) {
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, false, fmt.Errorf("open tar.gz stream: %w", err)
		}
		defer gz.Close()

		tr := tar.NewReader(gz)
		for {
			hdr, err := tr.Next()
			if err == io.EOF {
				return nil, false, nil
			}
			if err != nil {
				return nil, false, fmt.Errorf("read tar.gz entry: %w", err)
			}
			if hdr.Typeflag != tar.TypeReg {
				continue
			}
			if pick(hdr.Name) {
				content, err := io.ReadAll(tr)
				if err != nil {
					return nil, false, fmt.Errorf("extract %s: %w", hdr.Name, err)
				}
				return content, true, nil
			}
		}
	}

	content, found, err := readEntries(func(name string) bool {
		return strings.HasSuffix(name, documentSuffix)
	})
	if err != nil {
		return nil, err
	}
	if found {
		return content, nil
	}

	content, found, err = readEntries(func(string) bool { return true })
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("tar.gz archive has no extractable entries")
	}
	return content, nil
}
