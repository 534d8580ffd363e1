// Package memory provides the agent's long-lived notes file. The
// orchestrator treats it as an opaque excerpt source; the remember
// skill appends to it.
package memory

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// DefaultExcerptBytes bounds the excerpt injected into each turn's
// context. Older notes fall off the front; the file itself is never
// trimmed.
const DefaultExcerptBytes = 4096

// Notes is a file-backed note store. The zero path disables it: both
// operations degrade to no-ops.
type Notes struct {
	path         string
	excerptBytes int
	mu           sync.Mutex
}

// NewNotes creates a notes store over path. path may be empty.
func NewNotes(path string, excerptBytes int) *Notes {
	if excerptBytes <= 0 {
		excerptBytes = DefaultExcerptBytes
	}
	return &Notes{path: path, excerptBytes: excerptBytes}
}

// Excerpt returns the tail of the notes file, cut to a line boundary.
// A missing or empty file yields an empty excerpt, not an error.
func (n *Notes) Excerpt(ctx context.Context) (string, error) {
	if n.path == "" {
		return "", nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	data, err := os.ReadFile(n.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read notes: %w", err)
	}

	text := strings.TrimSpace(string(data))
	if len(text) <= n.excerptBytes {
		return text, nil
	}

	tail := text[len(text)-n.excerptBytes:]
	if i := strings.IndexByte(tail, '\n'); i >= 0 {
		tail = tail[i+1:]
	}
	return tail, nil
}

// Append adds a timestamped note.
func (n *Notes) Append(ctx context.Context, note string) error {
	if n.path == "" {
		return fmt.Errorf("notes file not configured")
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	f, err := os.OpenFile(n.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open notes: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("- [%s] %s\n", time.Now().Format("2006-01-02 15:04"), strings.TrimSpace(note))
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append note: %w", err)
	}
	return nil
}
