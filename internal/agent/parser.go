package agent

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ToolCall is one structured skill invocation extracted from model
// output. Params preserves insertion order in Keys so callers can
// reproduce the call as written.
type ToolCall struct {
	Name   string
	Keys   []string
	Params map[string]string
}

// set records a parameter, keeping first-seen key order. A repeated
// key overwrites the value without duplicating the key.
func (tc *ToolCall) set(key, value string) {
	if tc.Params == nil {
		tc.Params = make(map[string]string)
	}
	if _, seen := tc.Params[key]; !seen {
		tc.Keys = append(tc.Keys, key)
	}
	tc.Params[key] = value
}

// ParseToolCalls extracts tool calls from one block of model text.
// Two grammars are attempted in fixed precedence: tagged blocks first,
// then templated-JSON placeholders. The first grammar producing any
// match wins. No matches is a normal outcome, not an error.
func ParseToolCalls(text string, logger *slog.Logger) []ToolCall {
	if logger == nil {
		logger = slog.Default()
	}

	if calls := parseTagged(text); len(calls) > 0 {
		return calls
	}
	return parseTemplated(text, logger)
}

// openTagRe matches an opening tag. Tag names are restricted to
// alphanumerics and hyphens.
var openTagRe = regexp.MustCompile(`<([A-Za-z0-9][A-Za-z0-9-]*)>`)

// parseTagged implements the tagged-block grammar: a same-named
// opening/closing tag pair encloses either nested parameter tag pairs
// (one level only) or bare text, which becomes the single parameter
// "query". Each balanced top-level pair yields one ToolCall, in
// document order. Unbalanced tags are skipped.
func parseTagged(text string) []ToolCall {
	var calls []ToolCall

	pos := 0
	for pos < len(text) {
		loc := openTagRe.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		name := text[pos+loc[2] : pos+loc[3]]
		openEnd := pos + loc[1]

		closing := "</" + name + ">"
		rel := strings.Index(text[openEnd:], closing)
		if rel < 0 {
			// No matching close: not a call, keep scanning after the tag.
			pos = openEnd
			continue
		}

		inner := text[openEnd : openEnd+rel]
		call := ToolCall{Name: name}

		params := parseParamTags(inner)
		if len(params) == 0 {
			call.set("query", strings.TrimSpace(inner))
		} else {
			for _, p := range params {
				call.set(p.name, p.value)
			}
		}

		calls = append(calls, call)
		pos = openEnd + rel + len(closing)
	}

	return calls
}

type paramTag struct {
	name  string
	value string
}

// parseParamTags scans the interior of a skill tag for one level of
// nested parameter tag pairs. Empty content is a legitimate
// empty-string value.
func parseParamTags(inner string) []paramTag {
	var params []paramTag

	pos := 0
	for pos < len(inner) {
		loc := openTagRe.FindStringSubmatchIndex(inner[pos:])
		if loc == nil {
			break
		}
		name := inner[pos+loc[2] : pos+loc[3]]
		openEnd := pos + loc[1]

		closing := "</" + name + ">"
		rel := strings.Index(inner[openEnd:], closing)
		if rel < 0 {
			pos = openEnd
			continue
		}

		params = append(params, paramTag{
			name:  name,
			value: strings.TrimSpace(inner[openEnd : openEnd+rel]),
		})
		pos = openEnd + rel + len(closing)
	}

	return params
}

// placeholderRe matches ${name}, ${name.method}, and ${name:method}.
// The method part is reserved for forward compatibility and is not
// surfaced as a parameter.
var placeholderRe = regexp.MustCompile(`\$\{([A-Za-z0-9_-]+)(?:[.:]([A-Za-z0-9_-]+))?\}`)

// fenceRe matches a fenced code block, optionally tagged json.
var fenceRe = regexp.MustCompile("(?s)```(?:json)?[ \t]*\n(.*?)```")

// reservedQueryField is the templated-JSON field renamed to "query"
// before dispatch. The data-query skill is the primary consumer of
// this grammar and its original clients sent the statement under
// this key.
const reservedQueryField = "sql"

// parseTemplated implements the templated-JSON grammar: a ${name}
// placeholder followed anywhere later in the text by a fenced JSON
// block. Each placeholder consumes the first unclaimed fence after it.
// A JSON parse failure skips that occurrence without affecting
// sibling matches.
func parseTemplated(text string, logger *slog.Logger) []ToolCall {
	placeholders := placeholderRe.FindAllStringSubmatchIndex(text, -1)
	if placeholders == nil {
		return nil
	}

	fences := fenceRe.FindAllStringSubmatchIndex(text, -1)

	var calls []ToolCall
	nextFence := 0
	for _, ph := range placeholders {
		name := text[ph[2]:ph[3]]

		// Claim the first fence that starts after this placeholder.
		fenceIdx := -1
		for i := nextFence; i < len(fences); i++ {
			if fences[i][0] >= ph[1] {
				fenceIdx = i
				break
			}
		}
		if fenceIdx < 0 {
			logger.Debug("placeholder without JSON block, skipping", "skill", name)
			continue
		}
		nextFence = fenceIdx + 1

		payload := text[fences[fenceIdx][2]:fences[fenceIdx][3]]
		params, err := decodeJSONParams(payload)
		if err != nil {
			logger.Warn("malformed JSON block for placeholder, skipping",
				"skill", name, "error", err)
			continue
		}

		call := ToolCall{Name: name}
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out := k
			if k == reservedQueryField {
				out = "query"
			}
			call.set(out, params[k])
		}
		calls = append(calls, call)
	}

	return calls
}

// decodeJSONParams parses a JSON object and coerces every field to
// text. Numbers keep their source form via json.Number; compound
// values are re-marshaled.
func decodeJSONParams(payload string) (map[string]string, error) {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	params := make(map[string]string, len(raw))
	for k, v := range raw {
		params[k] = coerceToText(v)
	}
	return params, nil
}

func coerceToText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
