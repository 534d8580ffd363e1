package skills

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeSkill(t *testing.T, dir, file, doc string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, file), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testCatalog(t *testing.T) (*Catalog, string) {
	t.Helper()
	dir := t.TempDir()
	writeSkill(t, dir, "search.md", `---
name: search
description: Search the web
---

## Examples

- weather in Paris
`)
	writeSkill(t, dir, "notes.md", `---
name: notes
description: Manage the note archive
---

## Guidelines

- Keep entries short
`)
	writeSkill(t, dir, "legacy.md", "---\nname: legacy\ndescription: retired skill\navailable: false\n---\n")

	c := NewCatalog(discardLogger())
	if err := c.Load(dir); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return c, dir
}

func TestCatalogLoad(t *testing.T) {
	c, _ := testCatalog(t)

	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
	if _, ok := c.Get("search"); !ok {
		t.Error("Get(search) missing")
	}
	want := []string{"legacy", "notes", "search"}
	if got := c.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestCatalogLoadSkipsInvalid(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "good.md", "---\nname: good\ndescription: fine\n---\n")
	writeSkill(t, dir, "bad.md", "no front matter at all\n")
	writeSkill(t, dir, "notes.txt", "not a descriptor\n")

	c := NewCatalog(discardLogger())
	if err := c.Load(dir); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (invalid and non-md files skipped)", c.Len())
	}
}

func TestCatalogLoadMissingDir(t *testing.T) {
	c := NewCatalog(discardLogger())
	if err := c.Load(filepath.Join(t.TempDir(), "does-not-exist")); err != nil {
		t.Fatalf("Load() error: %v, want nil for missing dir", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestCatalogReloadReplaces(t *testing.T) {
	c, dir := testCatalog(t)

	// A reload from a different directory fully replaces the registry.
	dir2 := t.TempDir()
	writeSkill(t, dir2, "only.md", "---\nname: only\ndescription: the survivor\n---\n")
	if err := c.Load(dir2); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after reload", c.Len())
	}
	if _, ok := c.Get("search"); ok {
		t.Error("stale skill survived reload")
	}
	_ = dir
}

func TestSummarize(t *testing.T) {
	c, _ := testCatalog(t)

	want := "- notes: Manage the note archive\n- search: Search the web\n"
	if got := c.Summarize(); got != want {
		t.Errorf("Summarize() = %q, want %q", got, want)
	}

	// Stable across calls.
	if c.Summarize() != c.Summarize() {
		t.Error("Summarize() not stable between calls")
	}
}

func TestFindRelevant(t *testing.T) {
	c, _ := testCatalog(t)

	tests := []struct {
		query string
		want  []string
	}{
		{"WEB", []string{"search"}},
		{"paris", []string{"search"}},      // matched via example text
		{"entries", []string{"notes"}},     // matched via guideline text
		{"nothing-here", nil},
	}
	for _, tt := range tests {
		got := c.FindRelevant(tt.query)
		if len(got) != len(tt.want) {
			t.Errorf("FindRelevant(%q) = %v, want %v", tt.query, got, tt.want)
			continue
		}
		for _, name := range tt.want {
			found := false
			for _, g := range got {
				if g == name {
					found = true
				}
			}
			if !found {
				t.Errorf("FindRelevant(%q) = %v, missing %q", tt.query, got, name)
			}
		}
	}
}
