// Package alert delivers findings to notification channels.
package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hejijunhao/warden/internal/model"
)

// Alert is one notification for a finding that produced new issues.
type Alert struct {
	CycleID   string           `json:"cycle_id"`
	Timestamp time.Time        `json:"timestamp"`
	Target    model.Target     `json:"target"`
	Finding   model.Finding    `json:"finding"`
	Issues    []model.IssueRef `json:"issues"`
}

// Channel is a notification transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, a Alert) error
	Close() error
}

// Result is the outcome of sending an alert on one channel.
type Result struct {
	Channel string `json:"channel"`
	Err     error  `json:"-"`
}

// Subject returns a one-line headline for a.
func Subject(a Alert) string {
	return fmt.Sprintf("[warden] %s in %s: %s", strings.ToUpper(a.Finding.Severity.String()), a.Target.Label(), a.Finding.Summary)
}

// Body renders a as plain text.
func Body(a Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", a.Finding.Summary)
	fmt.Fprintf(&b, "Target:   %s (%s)\n", a.Target.Label(), a.Target.Project)
	fmt.Fprintf(&b, "Severity: %s\n", a.Finding.Severity)
	if len(a.Finding.AffectedServices) > 0 {
		fmt.Fprintf(&b, "Services: %s\n", strings.Join(a.Finding.AffectedServices, ", "))
	}
	if a.Finding.Fallback {
		b.WriteString("Graded by error count; the analyzer was unavailable.\n")
	}
	if len(a.Issues) > 0 {
		b.WriteString("\nIssues:\n")
		for _, ref := range a.Issues {
			fmt.Fprintf(&b, "- %s %s %s\n", ref.Repository+ref.Identifier, ref.Title, ref.URL)
		}
	}
	if a.CycleID != "" {
		fmt.Fprintf(&b, "\nCycle %s at %s\n", a.CycleID, a.Timestamp.UTC().Format(time.RFC3339))
	}
	return b.String()
}
