package analyzer

import (
	"fmt"
	"strings"

	"github.com/hejijunhao/warden/internal/engine/compactor"
	"github.com/hejijunhao/warden/internal/model"
)

// FallbackPattern is the error pattern reported by Heuristic.
const FallbackPattern = "fallback-error-count"

// Thresholds used by Heuristic.
const (
	highErrors   = 10
	mediumErrors = 3
	mediumWarns  = 20
	sampleErrors = 10
)

// Heuristic grades entries by counting levels. It is used when the analyzer
// fails and never returns an error.
func Heuristic(entries []model.LogEntry, target model.Target) model.Finding {
	errs, warns := model.CountLevels(entries)

	sev := model.SeverityLow
	switch {
	case errs > highErrors:
		sev = model.SeverityHigh
	case errs > mediumErrors || warns > mediumWarns:
		sev = model.SeverityMedium
	}

	f := model.Finding{
		Severity:         sev,
		Summary:          fmt.Sprintf("%d errors and %d warnings in %d entries for %s", errs, warns, len(entries), target.Label()),
		AffectedServices: errorServices(entries),
		Actionable:       sev == model.SeverityHigh,
		Fallback:         true,
	}
	if errs > 0 {
		f.ErrorPatterns = []string{FallbackPattern}
	}
	if f.Actionable {
		f.IssueTitle = heuristicTitle(entries, errs, target)
		f.IssueBody = heuristicBody(entries, f)
	}
	return f
}

// errorServices returns the services with at least one error entry, in
// first-seen order.
func errorServices(entries []model.LogEntry) []string {
	var out []string
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.Level != model.LevelError || e.Service == "" || seen[e.Service] {
			continue
		}
		seen[e.Service] = true
		out = append(out, e.Service)
	}
	return out
}

func heuristicTitle(entries []model.LogEntry, errs int, target model.Target) string {
	title := fmt.Sprintf("%d errors in %s", errs, target.Label())
	for _, e := range entries {
		if e.Level == model.LevelError {
			return title + ": " + compactor.Summarize(e.Message)
		}
	}
	return title
}

func heuristicBody(entries []model.LogEntry, f model.Finding) string {
	var b strings.Builder
	b.WriteString(f.Summary)
	b.WriteString("\n\nThe analyzer was unavailable; this issue was graded by error count.\n")
	if len(f.AffectedServices) > 0 {
		fmt.Fprintf(&b, "\nAffected services: %s\n", strings.Join(f.AffectedServices, ", "))
	}

	b.WriteString("\nSample errors:\n")
	n := 0
	for _, e := range entries {
		if e.Level != model.LevelError {
			continue
		}
		fmt.Fprintf(&b, "- %s %s: %s\n", e.Timestamp.UTC().Format("2006-01-02T15:04:05Z"), e.Service, compactor.Summarize(e.Message))
		n++
		if n == sampleErrors {
			break
		}
	}
	return b.String()
}
