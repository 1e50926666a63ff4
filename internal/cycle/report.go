package cycle

import (
	"time"

	"github.com/hejijunhao/warden/internal/model"
)

// Outcome is how a cycle ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeEmpty     Outcome = "empty"     // no entries collected
	OutcomeDuplicate Outcome = "duplicate" // batch already processed
	OutcomeSkipped   Outcome = "skipped"   // another cycle was in flight
)

// Report describes one Run.
type Report struct {
	CycleID     string         `json:"cycle_id"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Outcome     Outcome        `json:"outcome"`
	Entries     int            `json:"entries"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	Targets     []TargetReport `json:"targets,omitempty"`
}

// TargetReport describes one target's pass through a cycle.
type TargetReport struct {
	Target        string           `json:"target"`
	Project       string           `json:"project"`
	Entries       int              `json:"entries"`
	FetchError    string           `json:"fetch_error,omitempty"`
	Severity      *model.Severity  `json:"severity,omitempty"`
	Actionable    bool             `json:"actionable"`
	Fallback      bool             `json:"fallback,omitempty"`
	AnalyzerError string           `json:"analyzer_error,omitempty"`
	Skipped       string           `json:"skipped,omitempty"`
	Service       string           `json:"service,omitempty"`
	Created       []model.IssueRef `json:"created,omitempty"`
	Suppressed    []string         `json:"suppressed,omitempty"`
	IssueErrors   []string         `json:"issue_errors,omitempty"`
	Alerted       bool             `json:"alerted"`
	Alerts        []ChannelResult  `json:"alerts,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// ChannelResult is the outcome of one alert channel.
type ChannelResult struct {
	Channel string `json:"channel"`
	Error   string `json:"error,omitempty"`
}

// IssuesCreated counts issues created across all targets.
func (r Report) IssuesCreated() int {
	n := 0
	for _, t := range r.Targets {
		n += len(t.Created)
	}
	return n
}

// AlertsSent counts alerts dispatched, one per target that alerted.
func (r Report) AlertsSent() int {
	n := 0
	for _, t := range r.Targets {
		if t.Alerted {
			n++
		}
	}
	return n
}
