package sanitize

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Package sanitize normalizes raw summary text returned by the analysis
// service into displayable plain text. The service is asked for plain JSON but
// in practice answers arrive wrapped in code fences, quoted, labeled, or as
// half-escaped JSON fragments; Summary peels those layers off best-effort and
// never fails.

// Mode controls how aggressively Summary strips structural leftovers.
type Mode int

const (
	// Lenient keeps brackets and quotes that survive the structured-text
	// checks. Used for the documents list, where legitimate prose may
	// contain them.
	Lenient Mode = iota
	// Strict additionally removes stray braces, brackets and double quotes
	// from malformed structured text. Used for live-preview display.
	Strict
)

var (
	fenceOpenRe    = regexp.MustCompile("(?i)^```(?:json)?")
	fenceCloseRe   = regexp.MustCompile("(?i)```$")
	leadingLabelRe = regexp.MustCompile(`(?i)^\s*(?:summary|department)\s*[:=]\s*`)
	inlineLabelRe  = regexp.MustCompile(`(?i)\b(?:summary|department)\s*[:=]`)
	structuralRe   = regexp.MustCompile(`[{}\[\]"]`)
	unescaper      = strings.NewReplacer(`\"`, `"`, `\n`, "\n")
)

// Summary normalizes raw analysis output into plain text. It always returns a
// string and is idempotent on already-clean text.
func Summary(raw string, mode Mode) string {
	if raw == "" {
		return ""
	}

	text := strings.TrimSpace(raw)
	text = strings.TrimSpace(fenceOpenRe.ReplaceAllString(text, ""))
	text = strings.TrimSpace(fenceCloseRe.ReplaceAllString(text, ""))

	// A successfully parsed wrapper resolves the summary outright; the
	// remaining steps only clean up text that never was valid JSON.
	if resolved, ok := fromJSON(text); ok {
		return strings.TrimSpace(unescaper.Replace(resolved))
	}

	if len(text) >= 2 {
		if (strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`)) ||
			(strings.HasPrefix(text, "'") && strings.HasSuffix(text, "'")) {
			text = text[1 : len(text)-1]
		}
	}

	text = leadingLabelRe.ReplaceAllString(text, "")
	if mode == Strict {
		text = inlineLabelRe.ReplaceAllString(text, "")
	}

	text = unescaper.Replace(text)

	if mode == Strict {
		text = structuralRe.ReplaceAllString(text, "")
	}

	return strings.TrimSpace(text)
}

// fromJSON attempts to interpret text as a JSON wrapper around a summary.
// It handles quoted strings, objects with a string "summary" field, arrays of
// such objects, and as a last resort the first string-typed property of an
// object in declaration order.
func fromJSON(text string) (string, bool) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case []any:
		for _, el := range t {
			if m, ok := el.(map[string]any); ok {
				if s, ok := m["summary"].(string); ok {
					return s, true
				}
			}
		}
	case map[string]any:
		if s, ok := t["summary"].(string); ok {
			return s, true
		}
		if s, ok := firstStringValue(text); ok {
			return s, true
		}
	}
	return "", false
}

// firstStringValue scans the top-level object token stream so "first" means
// declaration order, not Go map iteration order.
func firstStringValue(text string) (string, bool) {
	dec := json.NewDecoder(strings.NewReader(text))
	tok, err := dec.Token()
	if err != nil {
		return "", false
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return "", false
	}
	for dec.More() {
		if _, err := dec.Token(); err != nil { // key
			return "", false
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return "", false
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, true
		}
	}
	return "", false
}
