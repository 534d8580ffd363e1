// Package skills loads skill descriptor documents and dispatches
// skill invocations against them.
//
// A descriptor is a markdown file with a YAML front-matter block
// (name, description, optional flags) followed by a body. Body
// sections named "Instructions", "Examples", and "Guidelines" are
// extracted by heading; Examples and Guidelines are split into their
// bullet items.
package skills

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// Descriptor is one parsed skill document. Name is the sole lookup key.
type Descriptor struct {
	Name         string
	Description  string
	Available    bool
	Parameters   map[string]string
	Instructions string
	Examples     []string
	Guidelines   []string
}

// frontMatter is the YAML block at the top of a descriptor file.
// Values may be quoted or bare; booleans are recognized by the YAML
// decoder.
type frontMatter struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Available   *bool             `yaml:"available"`
	Parameters  map[string]string `yaml:"parameters"`
}

// ParseDescriptor parses one descriptor document. Both LF and CRLF
// line endings are accepted.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	fm, body, ok := splitFrontMatter(string(data))
	if !ok {
		return nil, fmt.Errorf("missing front-matter block")
	}

	var meta frontMatter
	if err := yaml.Unmarshal([]byte(fm), &meta); err != nil {
		return nil, fmt.Errorf("parse front-matter: %w", err)
	}
	if meta.Name == "" {
		return nil, fmt.Errorf("front-matter missing required key: name")
	}

	d := &Descriptor{
		Name:        meta.Name,
		Description: meta.Description,
		Available:   true,
		Parameters:  meta.Parameters,
	}
	if meta.Available != nil {
		d.Available = *meta.Available
	}

	parseBody(d, []byte(body))
	return d, nil
}

// splitFrontMatter separates the leading "---" delimited block from
// the body. Returns ok=false when the document has no front-matter.
func splitFrontMatter(raw string) (fm, body string, ok bool) {
	// Normalize line endings once; both YAML and markdown parsing
	// downstream are simpler against plain LF.
	raw = strings.ReplaceAll(raw, "\r\n", "\n")

	if !strings.HasPrefix(raw, "---\n") {
		return "", "", false
	}

	rest := raw[4:]
	closeIdx := strings.Index(rest, "\n---")
	if closeIdx < 0 {
		return "", "", false
	}

	fm = rest[:closeIdx]
	body = rest[closeIdx+4:]
	body = strings.TrimLeft(body, "\n")
	return fm, body, true
}

// sectionNames maps lowercased heading text to the descriptor field
// it populates.
var sectionNames = map[string]bool{
	"instructions": true,
	"examples":     true,
	"guidelines":   true,
}

// parseBody walks the markdown AST of the descriptor body and fills
// the section fields. Instructions keeps its full prose; Examples and
// Guidelines keep only their bullet items.
func parseBody(d *Descriptor, body []byte) {
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(body))

	var section string
	var instructions []string

	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		if h, isHeading := n.(*ast.Heading); isHeading {
			name := strings.ToLower(strings.TrimSpace(nodeText(h, body)))
			if sectionNames[name] {
				section = name
			} else {
				section = ""
			}
			continue
		}

		switch section {
		case "instructions":
			if t := blockText(n, body); t != "" {
				instructions = append(instructions, t)
			}
		case "examples":
			if list, isList := n.(*ast.List); isList {
				d.Examples = append(d.Examples, listItems(list, body)...)
			}
		case "guidelines":
			if list, isList := n.(*ast.List); isList {
				d.Guidelines = append(d.Guidelines, listItems(list, body)...)
			}
		}
	}

	d.Instructions = strings.Join(instructions, "\n\n")
}

// listItems returns the trimmed text of each item in a list.
func listItems(list *ast.List, source []byte) []string {
	var items []string
	for li := list.FirstChild(); li != nil; li = li.NextSibling() {
		if t := strings.TrimSpace(nodeText(li, source)); t != "" {
			items = append(items, t)
		}
	}
	return items
}

// blockText returns the raw source text of a block node. Nodes that
// track their source lines (paragraphs, code blocks) are read from
// their segments; container nodes fall back to their inline text.
func blockText(n ast.Node, source []byte) string {
	lines := n.Lines()
	if lines.Len() > 0 {
		var b strings.Builder
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.Write(seg.Value(source))
		}
		return strings.TrimSpace(b.String())
	}
	return strings.TrimSpace(nodeText(n, source))
}

// nodeText concatenates all inline text beneath a node.
func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
