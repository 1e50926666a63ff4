package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hejijunhao/warden/internal/model"
)

type response struct {
	Severity         string   `json:"severity"`
	Summary          string   `json:"summary"`
	AffectedServices []string `json:"affected_services"`
	ErrorPatterns    []string `json:"error_patterns"`
	Actionable       bool     `json:"actionable"`
	IssueTitle       string   `json:"issue_title"`
	IssueBody        string   `json:"issue_body"`
}

// parseFinding reads the model's JSON answer. Code fences and text around
// the outermost object are tolerated.
func parseFinding(raw string) (model.Finding, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if start == -1 || end < start {
		return model.Finding{}, fmt.Errorf("%w: no JSON object (raw: %.200s)", ErrMalformedResponse, raw)
	}

	var r response
	if err := json.Unmarshal([]byte(s[start:end+1]), &r); err != nil {
		return model.Finding{}, fmt.Errorf("%w: %v (raw: %.200s)", ErrMalformedResponse, err, raw)
	}

	sev, err := model.ParseSeverity(r.Severity)
	if err != nil {
		return model.Finding{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if strings.TrimSpace(r.Summary) == "" {
		return model.Finding{}, fmt.Errorf("%w: empty summary", ErrMalformedResponse)
	}

	f := model.Finding{
		Severity:         sev,
		Summary:          strings.TrimSpace(r.Summary),
		AffectedServices: uniq(r.AffectedServices),
		ErrorPatterns:    uniq(r.ErrorPatterns),
		Actionable:       r.Actionable,
	}
	if f.Actionable {
		if len(f.ErrorPatterns) == 0 {
			return model.Finding{}, fmt.Errorf("%w: actionable finding without error_patterns", ErrMalformedResponse)
		}
		f.IssueTitle = strings.TrimSpace(r.IssueTitle)
		if f.IssueTitle == "" {
			f.IssueTitle = f.Summary
		}
		f.IssueBody = r.IssueBody
	}
	return f, nil
}

// uniq trims and drops empty and repeated values, keeping first-seen order.
func uniq(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
