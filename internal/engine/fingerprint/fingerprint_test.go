package fingerprint

import (
	"strings"
	"testing"
	"time"

	"github.com/hejijunhao/warden/internal/model"
)

var t0 = time.Date(2026, 2, 19, 12, 0, 0, 0, time.UTC)

func entry(service string, level model.Level, msg string, offset time.Duration) model.LogEntry {
	return model.LogEntry{
		Timestamp: t0.Add(offset),
		Level:     level,
		Message:   msg,
		Service:   service,
		Project:   "p1",
	}
}

func TestLogEventOrderIndependent(t *testing.T) {
	a := []model.LogEntry{
		entry("api", model.LevelError, "db timeout", 0),
		entry("api", model.LevelWarn, "slow query", 10*time.Second),
		entry("web", model.LevelError, "502 upstream", 20*time.Second),
	}
	b := []model.LogEntry{a[2], a[0], a[1]}

	if LogEvent(a, Options{}) != LogEvent(b, Options{}) {
		t.Fatal("expected identical fingerprints for permuted batches")
	}
}

func TestLogEventEqualAfterBucketing(t *testing.T) {
	// Same multiset once timestamps are floored, but raw timestamps are swapped
	// between the two messages.
	a := []model.LogEntry{
		entry("api", model.LevelError, "first", 1*time.Second),
		entry("api", model.LevelError, "second", 2*time.Second),
	}
	b := []model.LogEntry{
		entry("api", model.LevelError, "first", 2*time.Second),
		entry("api", model.LevelError, "second", 1*time.Second),
	}
	if LogEvent(a, Options{}) != LogEvent(b, Options{}) {
		t.Fatal("expected equal fingerprints for batches equal after bucketing")
	}
}

func TestLogEventDuplicatesCount(t *testing.T) {
	one := []model.LogEntry{entry("api", model.LevelError, "boom", 0)}
	two := []model.LogEntry{entry("api", model.LevelError, "boom", 0), entry("api", model.LevelError, "boom", time.Second)}
	if LogEvent(one, Options{}) == LogEvent(two, Options{}) {
		t.Fatal("batches with different multiplicity must differ")
	}
}

func TestLogEventDistinct(t *testing.T) {
	base := entry("api", model.LevelError, "connection refused", 0)
	batch := func(e model.LogEntry) []model.LogEntry { return []model.LogEntry{e} }
	want := LogEvent(batch(base), Options{})

	tests := []struct {
		name   string
		mutate func(e model.LogEntry) model.LogEntry
	}{
		{"service", func(e model.LogEntry) model.LogEntry { e.Service = "web"; return e }},
		{"level", func(e model.LogEntry) model.LogEntry { e.Level = model.LevelWarn; return e }},
		{"message", func(e model.LogEntry) model.LogEntry { e.Message = "connection reset"; return e }},
		{"bucket", func(e model.LogEntry) model.LogEntry { e.Timestamp = e.Timestamp.Add(6 * time.Minute); return e }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LogEvent(batch(tt.mutate(base)), Options{}); got == want {
				t.Fatalf("expected a different fingerprint after changing %s", tt.name)
			}
		})
	}
}

func TestLogEventSameBucket(t *testing.T) {
	a := []model.LogEntry{entry("api", model.LevelError, "boom", 0)}
	b := []model.LogEntry{entry("api", model.LevelError, "boom", 4*time.Minute)}
	if LogEvent(a, Options{}) != LogEvent(b, Options{}) {
		t.Fatal("entries in the same 5m bucket should fingerprint identically")
	}
}

func TestLogEventMessagePrefix(t *testing.T) {
	head := strings.Repeat("x", DefaultMessagePrefix)
	a := []model.LogEntry{entry("api", model.LevelError, head+" request id 1234", 0)}
	b := []model.LogEntry{entry("api", model.LevelError, head+" request id 9876", 0)}
	if LogEvent(a, Options{}) != LogEvent(b, Options{}) {
		t.Fatal("suffix beyond the prefix window should be ignored")
	}

	c := []model.LogEntry{entry("api", model.LevelError, "y"+head[1:]+" tail", 0)}
	if LogEvent(a, Options{}) == LogEvent(c, Options{}) {
		t.Fatal("difference inside the prefix window should change the fingerprint")
	}
}

func TestLogEventCustomOptions(t *testing.T) {
	a := []model.LogEntry{entry("api", model.LevelError, "abcdef", 0)}
	b := []model.LogEntry{entry("api", model.LevelError, "abcxyz", 50*time.Second)}
	opts := Options{MessagePrefix: 3, Bucket: time.Minute}
	if LogEvent(a, opts) != LogEvent(b, opts) {
		t.Fatal("expected equal fingerprints with a 3-rune prefix and 1m bucket")
	}
	if LogEvent(a, Options{}) == LogEvent(b, Options{}) {
		t.Fatal("expected different fingerprints with default options")
	}
}

func TestPrefixRunes(t *testing.T) {
	if got := prefix("h\u00e9llo", 2); got != "h\u00e9" {
		t.Fatalf("prefix: got %q", got)
	}
	// Decomposed e + combining acute normalizes to a single rune.
	if got := prefix("he\u0301llo", 2); got != "h\u00e9" {
		t.Fatalf("prefix after NFC: got %q", got)
	}
	if got := prefix("ab", 10); got != "ab" {
		t.Fatalf("short input: got %q", got)
	}
}

func TestIssue(t *testing.T) {
	a := Issue("p1", "api", "fallback-error-count")
	if a != Issue("p1", "api", "fallback-error-count") {
		t.Fatal("Issue must be deterministic")
	}
	if a == Issue("p1", "web", "fallback-error-count") {
		t.Fatal("different service must differ")
	}
	// Separator prevents field-boundary collisions.
	if Issue("ab", "c", "d") == Issue("a", "bc", "d") {
		t.Fatal("field boundaries must matter")
	}
	if len(a.String()) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a.String()))
	}
}
