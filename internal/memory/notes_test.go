package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExcerptMissingFile(t *testing.T) {
	n := NewNotes(filepath.Join(t.TempDir(), "notes.md"), 0)

	got, err := n.Excerpt(context.Background())
	if err != nil {
		t.Fatalf("Excerpt() error: %v", err)
	}
	if got != "" {
		t.Errorf("Excerpt() = %q, want empty for missing file", got)
	}
}

func TestAppendAndExcerpt(t *testing.T) {
	n := NewNotes(filepath.Join(t.TempDir(), "notes.md"), 0)
	ctx := context.Background()

	if err := n.Append(ctx, "user likes tea"); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := n.Append(ctx, "  user's cat is named Miso  "); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	got, err := n.Excerpt(ctx)
	if err != nil {
		t.Fatalf("Excerpt() error: %v", err)
	}
	if !strings.Contains(got, "user likes tea") {
		t.Errorf("Excerpt() = %q, missing first note", got)
	}
	if !strings.Contains(got, "user's cat is named Miso") {
		t.Errorf("Excerpt() = %q, missing trimmed second note", got)
	}
	if strings.Contains(got, "  user's") {
		t.Error("note whitespace not trimmed")
	}
}

func TestExcerptTailCutsAtLineBoundary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	var b strings.Builder
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&b, "- note number %03d with some padding text\n", i)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	n := NewNotes(path, 256)
	got, err := n.Excerpt(context.Background())
	if err != nil {
		t.Fatalf("Excerpt() error: %v", err)
	}
	if len(got) > 256 {
		t.Errorf("excerpt is %d bytes, want <= 256", len(got))
	}
	if !strings.HasPrefix(got, "- note") {
		t.Errorf("excerpt starts mid-line: %q", got[:20])
	}
	if !strings.Contains(got, "number 099") {
		t.Error("excerpt missing the newest note")
	}
}

func TestUnconfiguredNotes(t *testing.T) {
	n := NewNotes("", 0)
	ctx := context.Background()

	got, err := n.Excerpt(ctx)
	if err != nil || got != "" {
		t.Errorf("Excerpt() = (%q, %v), want empty no-op", got, err)
	}
	if err := n.Append(ctx, "lost"); err == nil {
		t.Error("Append() error = nil, want unconfigured failure")
	}
}
