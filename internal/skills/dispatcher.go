package skills

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hankl/microbot/internal/httpkit"
)

// maxResultBytes caps the text a single tool execution may feed back
// into the model-facing message list.
const maxResultBytes = 100 * 1024

// Rememberer is the write half of the external memory store, consumed
// by the built-in remember skill.
type Rememberer interface {
	Append(ctx context.Context, note string) error
}

// ShellOptions configures the built-in shell skill. Disabled unless
// explicitly enabled.
type ShellOptions struct {
	Enabled         bool
	WorkingDir      string
	DeniedPatterns  []string
	AllowedPrefixes []string
	Timeout         time.Duration
}

// DataQueryOptions configures the built-in data_query skill, which
// shells out to an external command-line analyzer.
type DataQueryOptions struct {
	AnalyzerCmd string
	Timeout     time.Duration
}

// DispatcherOptions bundles the dependencies of the built-in handlers.
type DispatcherOptions struct {
	Shell     ShellOptions
	DataQuery DataQueryOptions
	Memory    Rememberer
	FetchMax  int // max characters returned by web_fetch (default 50000)
}

// Dispatcher executes named skill invocations against the catalog.
// Execute never panics and never returns an error: every failure is
// rendered as a textual result so the orchestration loop can feed it
// back to the model as context.
type Dispatcher struct {
	catalog    *Catalog
	opts       DispatcherOptions
	httpClient *http.Client
	logger     *slog.Logger
}

// NewDispatcher creates a dispatcher over the given catalog.
func NewDispatcher(catalog *Catalog, opts DispatcherOptions, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Shell.Timeout <= 0 {
		opts.Shell.Timeout = 30 * time.Second
	}
	if opts.DataQuery.Timeout <= 0 {
		opts.DataQuery.Timeout = 30 * time.Second
	}
	if opts.DataQuery.AnalyzerCmd == "" {
		opts.DataQuery.AnalyzerCmd = "dsq"
	}
	if opts.FetchMax <= 0 {
		opts.FetchMax = 50000
	}
	return &Dispatcher{
		catalog:    catalog,
		opts:       opts,
		httpClient: httpkit.NewClient(httpkit.WithTimeout(30 * time.Second)),
		logger:     logger,
	}
}

// Execute runs the named skill with the given parameters and returns
// a textual result. Unknown skills, execution failures, and timeouts
// all come back as text, never as panics or errors.
func (d *Dispatcher) Execute(ctx context.Context, name string, params map[string]string) string {
	skill, ok := d.catalog.Get(name)
	if !ok {
		known := d.catalog.Names()
		if len(known) == 0 {
			return fmt.Sprintf("Error: unknown skill %q (no skills are loaded)", name)
		}
		return fmt.Sprintf("Error: unknown skill %q. Available skills: %s", name, strings.Join(known, ", "))
	}

	start := time.Now()
	var result string
	switch name {
	case "data_query":
		result = d.runDataQuery(ctx, params)
	case "shell":
		result = d.runShell(ctx, params)
	case "web_fetch":
		result = d.runWebFetch(ctx, params)
	case "remember":
		result = d.runRemember(ctx, params)
	default:
		result = d.runPlaceholder(skill, params)
	}

	d.logger.Debug("skill executed",
		"skill", name,
		"duration", time.Since(start).Round(time.Millisecond),
		"result_len", len(result),
	)
	return truncateResult(result)
}

// inferTableName derives a SQL table name from a data file name: the
// base name with its extension stripped and every non-alphanumeric
// character mapped to an underscore.
func inferTableName(file string) string {
	base := filepath.Base(file)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	var b strings.Builder
	for _, r := range base {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// fromClauseRe matches the table reference of the first FROM clause.
var fromClauseRe = regexp.MustCompile(`(?i)(\bFROM\s+)([^\s;]+)`)

// rewriteQueryTable substitutes the inferred table name into the FROM
// clause of the supplied query text. Queries without a FROM clause are
// returned unchanged.
func rewriteQueryTable(query, table string) string {
	replaced := false
	return fromClauseRe.ReplaceAllStringFunc(query, func(m string) string {
		if replaced {
			return m
		}
		replaced = true
		sub := fromClauseRe.FindStringSubmatch(m)
		return sub[1] + table
	})
}

// runDataQuery executes the external analyzer against a data file,
// substituting the inferred table name into the query's FROM clause.
func (d *Dispatcher) runDataQuery(ctx context.Context, params map[string]string) string {
	file := params["file"]
	query := params["query"]
	if file == "" {
		return "Error: data_query requires a 'file' parameter"
	}
	if query == "" {
		return "Error: data_query requires a 'query' parameter"
	}

	sql := rewriteQueryTable(query, inferTableName(file))

	ctx, cancel := context.WithTimeout(ctx, d.opts.DataQuery.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.opts.DataQuery.AnalyzerCmd, file, sql)
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("Error: data query timed out after %s", d.opts.DataQuery.Timeout)
	}
	if err != nil {
		return fmt.Sprintf("Error: data query failed: %v\n%s", err, out)
	}

	result := strings.TrimSpace(string(out))
	if result == "" {
		return "Query returned no rows."
	}
	return result
}

// runShell executes a shell command, subject to the deny and allow
// lists. Grounds execution in a timeout so a hung command yields a
// textual error rather than stalling the loop.
func (d *Dispatcher) runShell(ctx context.Context, params map[string]string) string {
	if !d.opts.Shell.Enabled {
		return "Error: shell execution is disabled in this deployment"
	}

	command := params["command"]
	if command == "" {
		command = params["query"]
	}
	if command == "" {
		return "Error: shell requires a 'command' parameter"
	}

	for _, denied := range d.opts.Shell.DeniedPatterns {
		if denied != "" && strings.Contains(command, denied) {
			return fmt.Sprintf("Error: command blocked by policy (matched %q)", denied)
		}
	}
	if len(d.opts.Shell.AllowedPrefixes) > 0 {
		allowed := false
		for _, prefix := range d.opts.Shell.AllowedPrefixes {
			if strings.HasPrefix(strings.TrimSpace(command), prefix) {
				allowed = true
				break
			}
		}
		if !allowed {
			return "Error: command not in the allowed prefix list"
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.Shell.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if d.opts.Shell.WorkingDir != "" {
		cmd.Dir = d.opts.Shell.WorkingDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("Error: command timed out after %s", d.opts.Shell.Timeout)
	}

	var b strings.Builder
	if err != nil {
		fmt.Fprintf(&b, "Command failed: %v\n", err)
	}
	if s := strings.TrimSpace(stdout.String()); s != "" {
		b.WriteString(s)
		b.WriteByte('\n')
	}
	if s := strings.TrimSpace(stderr.String()); s != "" {
		fmt.Fprintf(&b, "stderr: %s\n", s)
	}
	if b.Len() == 0 {
		return "Command completed with no output."
	}
	return strings.TrimSpace(b.String())
}

// runWebFetch retrieves a URL and returns its readable text content.
func (d *Dispatcher) runWebFetch(ctx context.Context, params map[string]string) string {
	url := params["url"]
	if url == "" {
		url = params["query"]
	}
	if url == "" {
		return "Error: web_fetch requires a 'url' parameter"
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Sprintf("Error: unsupported URL scheme in %q", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Sprintf("Error: invalid URL: %v", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Sprintf("Error: fetch failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Error: fetch returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return fmt.Sprintf("Error: read body: %v", err)
	}

	raw := string(body)
	contentType := resp.Header.Get("Content-Type")

	var title, content string
	if strings.Contains(contentType, "html") {
		title, content = extractHTML(raw)
	} else {
		content = raw
	}

	if len(content) > d.opts.FetchMax {
		content = content[:d.opts.FetchMax] + "\n[truncated]"
	}

	if title != "" {
		return fmt.Sprintf("Title: %s\n\n%s", title, content)
	}
	return content
}

// runRemember appends a note to the external memory store.
func (d *Dispatcher) runRemember(ctx context.Context, params map[string]string) string {
	if d.opts.Memory == nil {
		return "Error: memory store is not configured"
	}

	note := params["note"]
	if note == "" {
		note = params["query"]
	}
	if note == "" {
		return "Error: remember requires a 'note' parameter"
	}

	if err := d.opts.Memory.Append(ctx, note); err != nil {
		return fmt.Sprintf("Error: could not save note: %v", err)
	}
	return "Noted."
}

// runPlaceholder handles skills with a descriptor but no native
// handler. The invocation is acknowledged with the skill's own
// instructions so the model can carry on usefully.
func (d *Dispatcher) runPlaceholder(skill *Descriptor, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "Skill %q acknowledged", skill.Name)
	if len(keys) > 0 {
		b.WriteString(" with parameters:")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%q", k, params[k])
		}
	}
	b.WriteString(". No native handler is installed for this skill.")
	if skill.Instructions != "" {
		fmt.Fprintf(&b, "\nSkill guidance: %s", skill.Instructions)
	}
	return b.String()
}

func truncateResult(s string) string {
	if len(s) <= maxResultBytes {
		return s
	}
	return s[:maxResultBytes] + "\n[output truncated]"
}
