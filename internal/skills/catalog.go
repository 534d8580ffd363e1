package skills

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Catalog is a name-indexed registry of skill descriptors. Load
// replaces the whole registry in one atomic swap, so readers always
// see either the fully-old or fully-new catalog.
type Catalog struct {
	mu     sync.RWMutex
	skills map[string]*Descriptor
	logger *slog.Logger
}

// NewCatalog creates an empty catalog.
func NewCatalog(logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		skills: make(map[string]*Descriptor),
		logger: logger,
	}
}

// Load scans dir for .md descriptor documents and replaces the
// catalog. A descriptor that fails to parse is skipped with a
// warning, not fatal to the load. A missing directory yields an
// empty catalog.
func (c *Catalog) Load(dir string) error {
	next := make(map[string]*Descriptor)

	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("read skills dir: %w", err)
		}

		var files []string
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
				files = append(files, e.Name())
			}
		}
		sort.Strings(files)

		for _, f := range files {
			data, err := os.ReadFile(filepath.Join(dir, f))
			if err != nil {
				c.logger.Warn("skill descriptor unreadable, skipping", "file", f, "error", err)
				continue
			}
			d, err := ParseDescriptor(data)
			if err != nil {
				c.logger.Warn("skill descriptor invalid, skipping", "file", f, "error", err)
				continue
			}
			next[d.Name] = d
		}
	}

	c.mu.Lock()
	c.skills = next
	c.mu.Unlock()

	c.logger.Info("skill catalog loaded", "dir", dir, "skills", len(next))
	return nil
}

// Get returns the descriptor for name.
func (c *Catalog) Get(name string) (*Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.skills[name]
	return d, ok
}

// Names returns all skill names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.skills))
	for name := range c.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of loaded skills.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.skills)
}

// Summarize produces a short per-skill digest for prompting. Skills
// marked unavailable are excluded. Output is stable between loads.
func (c *Catalog) Summarize() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.skills))
	for name, d := range c.skills {
		if d.Available {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		d := c.skills[name]
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
	}
	return b.String()
}

// FindRelevant returns the names of skills whose name, description,
// or any example/guideline contains the query, case-insensitively.
// The result order is unspecified; matching is advisory only.
func (c *Catalog) FindRelevant(query string) []string {
	q := strings.ToLower(query)

	c.mu.RLock()
	defer c.mu.RUnlock()

	var matches []string
	for name, d := range c.skills {
		if matchesQuery(d, q) {
			matches = append(matches, name)
		}
	}
	return matches
}

func matchesQuery(d *Descriptor, q string) bool {
	if strings.Contains(strings.ToLower(d.Name), q) {
		return true
	}
	if strings.Contains(strings.ToLower(d.Description), q) {
		return true
	}
	for _, e := range d.Examples {
		if strings.Contains(strings.ToLower(e), q) {
			return true
		}
	}
	for _, g := range d.Guidelines {
		if strings.Contains(strings.ToLower(g), q) {
			return true
		}
	}
	return false
}
