package mailbox

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ledgerline/snapstore/internal/testutil"
)

// rawMessage builds a multipart MIME message with one text part and the
// given attachments.
func rawMessage(t *testing.T, attachments map[string][]byte) []byte {
	t.Helper()

	var sb strings.Builder
	sb.WriteString("From: backup@example.com\r\n")
	sb.WriteString("To: snapstore@example.com\r\n")
	sb.WriteString("Subject: snap_backup\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: multipart/mixed; boundary=\"frontier\"\r\n")
	sb.WriteString("\r\n")

	sb.WriteString("--frontier\r\n")
	sb.WriteString("Content-Type: text/plain\r\n\r\n")
	sb.WriteString("Adjunto el respaldo diario.\r\n")

	for name, content := range attachments {
		sb.WriteString("--frontier\r\n")
		sb.WriteString("Content-Type: application/octet-stream\r\n")
		sb.WriteString("Content-Transfer-Encoding: base64\r\n")
		fmt.Fprintf(&sb, "Content-Disposition: attachment; filename=%q\r\n\r\n", name)
		sb.WriteString(base64.StdEncoding.EncodeToString(content))
		sb.WriteString("\r\n")
	}
	sb.WriteString("--frontier--\r\n")
	return []byte(sb.String())
}

func TestPickAttachment(t *testing.T) {
	doc := []byte(`{"metadata":{},"tables":{}}`)

	t.Run("gzip attachment", func(t *testing.T) {
		raw := rawMessage(t, map[string][]byte{
			"export.json.gz": testutil.GzipBytes(t, doc),
		})
		name, content, err := pickAttachment(raw)
		testutil.MustNoErr(t, err, "pick attachment")
		if name != "export.json.gz" {
			t.Errorf("name = %q", name)
		}
		got, err := decompress(content, name)
		testutil.MustNoErr(t, err, "decompress picked attachment")
		if string(got) != string(doc) {
			t.Errorf("content = %q", got)
		}
	})

	t.Run("unsupported attachments skipped", func(t *testing.T) {
		raw := rawMessage(t, map[string][]byte{
			"notas.pdf": []byte("pdf bytes"),
		})
		if _, _, err := pickAttachment(raw); err == nil {
			t.Error("pickAttachment succeeded with only a pdf attached")
		}
	})

	t.Run("no attachments", func(t *testing.T) {
		raw := rawMessage(t, nil)
		_, _, err := pickAttachment(raw)
		if err == nil || !strings.Contains(err.Error(), "no attachment") {
			t.Errorf("err = %v, want no attachment", err)
		}
	})
}

func TestWriteDocument(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "data", "export.json")
	c := NewClient(&Config{}, docPath)

	doc := []byte(`{"metadata":{},"tables":{"x":{}}}`)
	testutil.MustNoErr(t, c.writeDocument(doc), "write document")

	got := testutil.ReadFile(t, docPath)
	if string(got) != string(doc) {
		t.Errorf("document content = %q", got)
	}

	// Replacing leaves no temp files behind.
	doc2 := []byte(`{"metadata":{},"tables":{"y":{}}}`)
	testutil.MustNoErr(t, c.writeDocument(doc2), "rewrite document")
	got = testutil.ReadFile(t, docPath)
	if string(got) != string(doc2) {
		t.Errorf("document content after rewrite = %q", got)
	}

	entries, err := filepath.Glob(filepath.Join(dir, "data", ".export-*"))
	testutil.MustNoErr(t, err, "glob temp files")
	if len(entries) != 0 {
		t.Errorf("temp files left behind: %v", entries)
	}
}
