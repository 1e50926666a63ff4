// Package issue files findings in an external issue tracker.
package issue

import (
	"context"
	"errors"

	"github.com/hejijunhao/warden/internal/model"
)

// ErrNoRepository is returned when neither the target nor the tracker names
// a repository.
var ErrNoRepository = errors.New("issue: no repository configured")

// Tracker creates issues for findings.
type Tracker interface {
	CreateIssue(ctx context.Context, f model.Finding, target model.Target) ([]model.IssueRef, error)
}

// Func adapts a plain function to the Tracker interface.
type Func func(ctx context.Context, f model.Finding, target model.Target) ([]model.IssueRef, error)

func (fn Func) CreateIssue(ctx context.Context, f model.Finding, target model.Target) ([]model.IssueRef, error) {
	return fn(ctx, f, target)
}
