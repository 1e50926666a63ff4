package compactor

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Verbosity controls how much detail is retained after compaction.
type Verbosity int

const (
	Minimal  Verbosity = iota // strip tracing fields, short traces, 200 runes
	Standard                  // strip tracing fields, 20 frames, 2000 runes
	Full                      // retain everything
)

// ParseVerbosity maps a config string to a Verbosity. Unknown values map to Standard.
func ParseVerbosity(s string) Verbosity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal":
		return Minimal
	case "full":
		return Full
	default:
		return Standard
	}
}

// defaultStripFields are high-cardinality JSON keys that carry no signal
// for analysis.
var defaultStripFields = []string{
	"trace_id", "span_id", "request_id", "correlation_id",
	"dd.trace_id", "dd.span_id", "x_request_id",
}

// Compactor shrinks log messages before they are placed in a prompt.
type Compactor struct {
	Verbosity   Verbosity
	stripFields []string
}

// Option configures a Compactor.
type Option func(*Compactor)

// WithStripFields replaces the default list of JSON keys removed from
// structured messages.
func WithStripFields(fields []string) Option {
	return func(c *Compactor) {
		c.stripFields = fields
	}
}

// New creates a Compactor with the given verbosity level.
func New(v Verbosity, opts ...Option) *Compactor {
	c := &Compactor{Verbosity: v, stripFields: defaultStripFields}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compact applies verbosity-based field stripping, stack trace truncation
// and length truncation to a log message. Returns the compacted text and a
// one-line summary.
func (c *Compactor) Compact(raw string) (compacted string, summary string) {
	switch c.Verbosity {
	case Minimal:
		s := stripFields(raw, c.stripFields)
		return capHeader(truncateStackTrace(s, 5), 200), summarize(raw)
	case Standard:
		s := stripFields(raw, c.stripFields)
		return capHeader(truncateStackTrace(s, 20), 2000), summarize(raw)
	default:
		return raw, summarize(raw)
	}
}

// Summarize returns the first line of s cut to 120 runes at a word boundary.
func Summarize(s string) string {
	return summarize(s)
}

// truncate cuts s to maxLen runes, appending "..." when anything was removed.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i] + "..."
		}
		n++
	}
	return s
}

const summaryRunes = 120

func summarize(raw string) string {
	line := raw
	if i := strings.IndexByte(line, '\n'); i != -1 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if utf8.RuneCountInString(line) <= summaryRunes {
		return line
	}

	cut := truncate(line, summaryRunes)
	cut = strings.TrimSuffix(cut, "...")
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}

// truncateStackTrace keeps the header, the first maxFrames frame lines and
// the last two. Frame lines are indented; anything before the first one is
// header. Messages without frames are returned unchanged.
func truncateStackTrace(s string, maxFrames int) string {
	header, frames := splitTrace(s)
	if frames == nil {
		return s
	}
	const tail = 2
	if len(frames) <= maxFrames+tail {
		return s
	}

	out := make([]string, 0, len(header)+maxFrames+1+tail)
	out = append(out, header...)
	out = append(out, frames[:maxFrames]...)
	out = append(out, fmt.Sprintf("\t... (%d frames omitted)", len(frames)-maxFrames-tail))
	out = append(out, frames[len(frames)-tail:]...)
	return strings.Join(out, "\n")
}

// capHeader truncates the non-frame part of s to maxLen runes. Frames are
// bounded by truncateStackTrace instead.
func capHeader(s string, maxLen int) string {
	header, frames := splitTrace(s)
	if frames == nil {
		return truncate(s, maxLen)
	}
	return truncate(strings.Join(header, "\n"), maxLen) + "\n" + strings.Join(frames, "\n")
}

// splitTrace splits s at its first indented line. frames is nil when s
// has no indented lines.
func splitTrace(s string) (header, frames []string) {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if strings.HasPrefix(l, "\t") || strings.HasPrefix(l, "  ") {
			return lines[:i], lines[i:]
		}
	}
	return lines, nil
}

// stripFields removes the listed keys from a JSON object message. Non-JSON
// input, and JSON with none of the keys, is returned unchanged.
func stripFields(s string, fields []string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{") {
		return s
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &m); err != nil {
		return s
	}

	removed := false
	for _, f := range fields {
		if _, ok := m[f]; ok {
			delete(m, f)
			removed = true
		}
	}
	if !removed {
		return s
	}

	out, err := json.Marshal(m)
	if err != nil {
		return s
	}
	return string(out)
}
