package model

import (
	"fmt"
	"strings"
	"time"
)

// Severity grades a Finding. Severities are ordered: Low < Medium < High.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "low"
	}
}

// ParseSeverity parses "low", "medium" or "high" (case-insensitive).
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	default:
		return SeverityLow, fmt.Errorf("unknown severity %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Finding is the result of analyzing one target's logs for one cycle.
// IssueTitle and IssueBody are set only when Actionable is true.
type Finding struct {
	Severity         Severity `json:"severity"`
	Summary          string   `json:"summary"`
	AffectedServices []string `json:"affected_services,omitempty"`
	ErrorPatterns    []string `json:"error_patterns,omitempty"`
	Actionable       bool     `json:"actionable"`
	IssueTitle       string   `json:"issue_title,omitempty"`
	IssueBody        string   `json:"issue_body,omitempty"`
	Fallback         bool     `json:"fallback,omitempty"` // produced by the heuristic, not the analyzer
}

// Narrow returns a copy of f scoped to a single error pattern. When f carries
// more than one pattern the issue title is suffixed with the pattern so that
// issues filed per pattern stay distinguishable.
func (f Finding) Narrow(pattern string) Finding {
	n := f
	n.AffectedServices = append([]string(nil), f.AffectedServices...)
	n.ErrorPatterns = []string{pattern}
	if len(f.ErrorPatterns) > 1 && n.IssueTitle != "" {
		n.IssueTitle = n.IssueTitle + " (" + pattern + ")"
	}
	return n
}

// IssueRef identifies an issue created in an external tracker.
type IssueRef struct {
	Identifier string `json:"identifier"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	Repository string `json:"repository"`
}

// IssueRecord is the payload stored alongside an issue fingerprint.
type IssueRecord struct {
	Project   string    `json:"project"`
	Service   string    `json:"service"`
	Pattern   string    `json:"pattern"`
	Issue     IssueRef  `json:"issue"`
	Timestamp time.Time `json:"timestamp"`
}
