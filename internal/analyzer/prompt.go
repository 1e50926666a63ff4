package analyzer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tmc/langchaingo/prompts"

	"github.com/hejijunhao/warden/internal/model"
)

var analysisTemplate = prompts.NewPromptTemplate(`
You are an SRE triaging production logs for the project "{{.target}}" ({{.project}}).
Decide whether the logs below show a problem that needs a tracked issue.

## Summary
- Entries  : {{.total}}
- Errors   : {{.errors}}
- Warnings : {{.warnings}}
- Services : {{.services}}
- Window   : {{.window}}

## Log lines (identical lines are collapsed{{.omitted}})
{{.lines}}

Respond ONLY with valid JSON in this exact shape:
{
  "severity": "low|medium|high",
  "summary": "one or two sentences",
  "affected_services": ["service name as it appears in the logs"],
  "error_patterns": ["short stable kebab-case name per distinct failure, e.g. db-connection-refused"],
  "actionable": true,
  "issue_title": "concise issue title, only when actionable",
  "issue_body": "markdown issue body with evidence and suggested next steps, only when actionable"
}

Use the same error_patterns name for the same failure every time you see it.`, []string{
	"target", "project", "total", "errors", "warnings", "services", "window", "omitted", "lines",
})

// buildPrompt renders the analysis prompt for entries.
func (a *LLM) buildPrompt(entries []model.LogEntry, target model.Target) (string, error) {
	errs, warns := model.CountLevels(entries)
	lines, omitted := a.compactor.Fit(a.dedup.Collapse(entries), a.promptBudget)

	omittedNote := ""
	if omitted > 0 {
		omittedNote = fmt.Sprintf("; %d lower-priority lines omitted", omitted)
	}

	return analysisTemplate.Format(map[string]any{
		"target":   target.Label(),
		"project":  target.Project,
		"total":    len(entries),
		"errors":   errs,
		"warnings": warns,
		"services": strings.Join(serviceNames(entries), ", "),
		"window":   window(entries),
		"omitted":  omittedNote,
		"lines":    strings.Join(lines, "\n"),
	})
}

func serviceNames(entries []model.LogEntry) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		if e.Service != "" && !seen[e.Service] {
			seen[e.Service] = true
			out = append(out, e.Service)
		}
	}
	sort.Strings(out)
	return out
}

func window(entries []model.LogEntry) string {
	var first, last time.Time
	for _, e := range entries {
		if e.Timestamp.IsZero() {
			continue
		}
		if first.IsZero() || e.Timestamp.Before(first) {
			first = e.Timestamp
		}
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
	}
	if first.IsZero() {
		return "unknown"
	}
	return first.UTC().Format(time.RFC3339) + " to " + last.UTC().Format(time.RFC3339)
}
