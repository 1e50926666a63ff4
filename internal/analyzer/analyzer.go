// Package analyzer turns a target's log entries into a Finding.
package analyzer

import (
	"context"
	"errors"

	"github.com/hejijunhao/warden/internal/model"
)

// ErrMalformedResponse is returned when the model output cannot be read as a
// finding.
var ErrMalformedResponse = errors.New("analyzer: malformed response")

// Analyzer produces a Finding for the entries of one target.
type Analyzer interface {
	Analyze(ctx context.Context, entries []model.LogEntry, target model.Target) (model.Finding, error)
}

// Func adapts a plain function to the Analyzer interface.
type Func func(ctx context.Context, entries []model.LogEntry, target model.Target) (model.Finding, error)

func (f Func) Analyze(ctx context.Context, entries []model.LogEntry, target model.Target) (model.Finding, error) {
	return f(ctx, entries, target)
}
