package mailbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledgerline/snapstore/internal/fileutil"
)

// Cursor remembers the UID of the last export that was fully applied, so an
// unchanged mailbox is detected without re-downloading anything. It survives
// restarts as a one-line state file under the data directory.
type Cursor struct {
	path string
}

// NewCursor creates a Cursor persisted at path.
func NewCursor(path string) *Cursor {
	return &Cursor{path: path}
}

// Load returns the stored UID, or "" when no cursor has been written yet.
func (c *Cursor) Load() (string, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read sync cursor: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Commit durably records uid as the last applied export.
func (c *Cursor) Commit(uid string) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("create cursor directory: %w", err)
	}
	if err := fileutil.SecureWriteFile(c.path, []byte(uid+"\n"), 0600); err != nil {
		return fmt.Errorf("write sync cursor: %w", err)
	}
	return nil
}
