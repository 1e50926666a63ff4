package compactor

import (
	"strings"
	"testing"
	"time"

	"github.com/hejijunhao/warden/internal/engine/dedup"
	"github.com/hejijunhao/warden/internal/model"
)

var t0 = time.Date(2026, 2, 19, 12, 0, 0, 0, time.UTC)

func line(level model.Level, msg string, offset time.Duration) dedup.Line {
	ts := t0.Add(offset)
	return dedup.Line{
		Entry: model.LogEntry{Timestamp: ts, Level: level, Service: "api", Message: msg},
		Count: 1,
		First: ts,
		Last:  ts,
	}
}

func TestFitNoBudget(t *testing.T) {
	c := New(Standard)
	lines := []dedup.Line{
		line(model.LevelInfo, "started", 0),
		line(model.LevelError, "boom", time.Second),
	}
	texts, omitted := c.Fit(lines, 0)
	if omitted != 0 || len(texts) != 2 {
		t.Fatalf("expected all lines, got %d (omitted %d)", len(texts), omitted)
	}
	if !strings.Contains(texts[0], "started") || !strings.Contains(texts[1], "boom") {
		t.Fatalf("expected original order, got %v", texts)
	}
}

func TestFitPrefersErrors(t *testing.T) {
	c := New(Standard)
	lines := []dedup.Line{
		line(model.LevelInfo, strings.Repeat("noise ", 20), 0),
		line(model.LevelError, "database connection refused", time.Second),
		line(model.LevelDebug, strings.Repeat("debug ", 20), 2*time.Second),
	}
	errTokens := EstimateTokens(lines[1].Text())
	texts, omitted := c.Fit(lines, errTokens)
	if len(texts) != 1 || omitted != 2 {
		t.Fatalf("expected only the error line, got %v (omitted %d)", texts, omitted)
	}
	if !strings.Contains(texts[0], "database connection refused") {
		t.Fatalf("unexpected line: %q", texts[0])
	}
}

func TestFitCompactsMessages(t *testing.T) {
	c := New(Minimal)
	msg := `{"msg":"timeout","trace_id":"abc123"}`
	texts, _ := c.Fit([]dedup.Line{line(model.LevelError, msg, 0)}, 0)
	if strings.Contains(texts[0], "trace_id") {
		t.Fatalf("expected trace_id stripped, got %q", texts[0])
	}
}

func TestParseVerbosity(t *testing.T) {
	tests := map[string]Verbosity{
		"minimal":  Minimal,
		"FULL":     Full,
		"standard": Standard,
		"":         Standard,
		"bogus":    Standard,
	}
	for in, want := range tests {
		if got := ParseVerbosity(in); got != want {
			t.Errorf("ParseVerbosity(%q) = %d, want %d", in, got, want)
		}
	}
}
