package analyzer

import (
	"strings"
	"testing"
	"time"

	"github.com/hejijunhao/warden/internal/model"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func entries(service string, level model.Level, n int) []model.LogEntry {
	out := make([]model.LogEntry, n)
	for i := range out {
		out[i] = model.LogEntry{
			Timestamp: t0.Add(time.Duration(i) * time.Second),
			Level:     level,
			Message:   "connection refused to db-primary:5432",
			Service:   service,
			Project:   "p1",
		}
	}
	return out
}

func TestHeuristicSeverity(t *testing.T) {
	tests := []struct {
		name       string
		errors     int
		warns      int
		want       model.Severity
		actionable bool
	}{
		{"quiet", 0, 0, model.SeverityLow, false},
		{"three errors", 3, 0, model.SeverityLow, false},
		{"four errors", 4, 0, model.SeverityMedium, false},
		{"many warnings", 0, 21, model.SeverityMedium, false},
		{"twenty warnings", 0, 20, model.SeverityLow, false},
		{"ten errors", 10, 0, model.SeverityMedium, false},
		{"eleven errors", 11, 0, model.SeverityHigh, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := append(entries("api", model.LevelError, tt.errors), entries("api", model.LevelWarn, tt.warns)...)
			f := Heuristic(batch, model.Target{Name: "shop", Project: "p1"})
			if f.Severity != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, f.Severity)
			}
			if f.Actionable != tt.actionable {
				t.Fatalf("expected actionable=%v", tt.actionable)
			}
			if !f.Fallback {
				t.Fatal("expected Fallback to be set")
			}
			if !tt.actionable && (f.IssueTitle != "" || f.IssueBody != "") {
				t.Fatal("issue text must be empty when not actionable")
			}
		})
	}
}

func TestHeuristicExampleBatch(t *testing.T) {
	// 15 entries for project p1, 12 of them errors from api.
	batch := append(entries("api", model.LevelError, 12), entries("api", model.LevelInfo, 3)...)

	f := Heuristic(batch, model.Target{Name: "shop", Project: "p1"})

	if f.Severity != model.SeverityHigh || !f.Actionable {
		t.Fatalf("expected actionable high, got %s actionable=%v", f.Severity, f.Actionable)
	}
	if len(f.ErrorPatterns) != 1 || f.ErrorPatterns[0] != FallbackPattern {
		t.Fatalf("expected [%s], got %v", FallbackPattern, f.ErrorPatterns)
	}
	if len(f.AffectedServices) != 1 || f.AffectedServices[0] != "api" {
		t.Fatalf("expected [api], got %v", f.AffectedServices)
	}
	if !strings.Contains(f.IssueTitle, "12 errors in shop") {
		t.Fatalf("unexpected title %q", f.IssueTitle)
	}
	if !strings.Contains(f.IssueBody, "connection refused") {
		t.Fatalf("expected sample errors in body, got %q", f.IssueBody)
	}
}

func TestHeuristicAffectedServicesOrder(t *testing.T) {
	batch := []model.LogEntry{
		{Level: model.LevelInfo, Service: "web"},
		{Level: model.LevelError, Service: "worker"},
		{Level: model.LevelError, Service: "api"},
		{Level: model.LevelError, Service: "worker"},
		{Level: model.LevelError, Service: ""},
	}
	f := Heuristic(batch, model.Target{Project: "p1"})
	if strings.Join(f.AffectedServices, ",") != "worker,api" {
		t.Fatalf("expected worker,api got %v", f.AffectedServices)
	}
}

func TestHeuristicNoErrorsNoPattern(t *testing.T) {
	f := Heuristic(entries("api", model.LevelWarn, 25), model.Target{Project: "p1"})
	if len(f.ErrorPatterns) != 0 {
		t.Fatalf("expected no patterns without errors, got %v", f.ErrorPatterns)
	}
}
