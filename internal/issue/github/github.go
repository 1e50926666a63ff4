// Package github files issues through the GitHub REST API.
package github

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hejijunhao/warden/internal/connector/httpclient"
	"github.com/hejijunhao/warden/internal/issue"
	"github.com/hejijunhao/warden/internal/model"
)

const defaultEndpoint = "https://api.github.com"

var _ issue.Tracker = (*Tracker)(nil)

// Tracker implements issue.Tracker for GitHub repositories.
type Tracker struct {
	client            *httpclient.Client
	endpoint          string
	defaultRepository string
	labels            []string
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithEndpoint overrides the API base URL (GitHub Enterprise, tests).
func WithEndpoint(url string) Option {
	return func(t *Tracker) { t.endpoint = strings.TrimSuffix(url, "/") }
}

// WithDefaultRepository sets the "owner/repo" used for targets without one.
func WithDefaultRepository(repo string) Option {
	return func(t *Tracker) { t.defaultRepository = repo }
}

// WithLabels sets labels added to every issue.
func WithLabels(labels ...string) Option {
	return func(t *Tracker) { t.labels = labels }
}

// New creates a Tracker authenticated with token.
func New(token string, opts ...Option) *Tracker {
	t := &Tracker{endpoint: defaultEndpoint}
	for _, opt := range opts {
		opt(t)
	}
	t.client = httpclient.New(t.endpoint, token,
		httpclient.WithHeader("Accept", "application/vnd.github+json"),
		httpclient.WithHeader("X-GitHub-Api-Version", "2022-11-28"),
	)
	return t
}

type createRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels,omitempty"`
}

type createResponse struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
	Title   string `json:"title"`
}

// CreateIssue opens one issue for f in the target's repository.
func (t *Tracker) CreateIssue(ctx context.Context, f model.Finding, target model.Target) ([]model.IssueRef, error) {
	repo := target.Repository
	if repo == "" {
		repo = t.defaultRepository
	}
	path, err := repoPath(repo)
	if err != nil {
		return nil, err
	}

	req := createRequest{
		Title:  f.IssueTitle,
		Body:   issueBody(f, target),
		Labels: mergeLabels(t.labels, target.Labels, []string{"severity:" + f.Severity.String()}),
	}
	if req.Title == "" {
		req.Title = f.Summary
	}

	var resp createResponse
	if err := t.client.PostJSON(ctx, path+"/issues", req, &resp); err != nil {
		return nil, fmt.Errorf("github: create issue in %s: %w", repo, err)
	}

	return []model.IssueRef{{
		Identifier: "#" + strconv.Itoa(resp.Number),
		URL:        resp.HTMLURL,
		Title:      resp.Title,
		Repository: repo,
	}}, nil
}

// Ping verifies the token can read the default repository.
func (t *Tracker) Ping(ctx context.Context) error {
	if t.defaultRepository == "" {
		var user struct {
			Login string `json:"login"`
		}
		if err := t.client.GetJSON(ctx, "/user", nil, &user); err != nil {
			return fmt.Errorf("github: %w", err)
		}
		return nil
	}
	path, err := repoPath(t.defaultRepository)
	if err != nil {
		return err
	}
	var repo struct {
		FullName string `json:"full_name"`
	}
	if err := t.client.GetJSON(ctx, path, nil, &repo); err != nil {
		return fmt.Errorf("github: %w", err)
	}
	return nil
}

func repoPath(repo string) (string, error) {
	if repo == "" {
		return "", issue.ErrNoRepository
	}
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("github: repository %q is not owner/repo", repo)
	}
	return "/repos/" + owner + "/" + name, nil
}

func issueBody(f model.Finding, target model.Target) string {
	var b strings.Builder
	if f.IssueBody != "" {
		b.WriteString(f.IssueBody)
	} else {
		b.WriteString(f.Summary)
	}
	b.WriteString("\n\n---\n")
	fmt.Fprintf(&b, "- Target: %s (%s)\n", target.Label(), target.Project)
	fmt.Fprintf(&b, "- Severity: %s\n", f.Severity)
	if len(f.AffectedServices) > 0 {
		fmt.Fprintf(&b, "- Services: %s\n", strings.Join(f.AffectedServices, ", "))
	}
	if len(f.ErrorPatterns) > 0 {
		fmt.Fprintf(&b, "- Pattern: `%s`\n", strings.Join(f.ErrorPatterns, "`, `"))
	}
	if f.Fallback {
		b.WriteString("- Graded by error count (analyzer unavailable)\n")
	}
	return b.String()
}

func mergeLabels(sets ...[]string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, set := range sets {
		for _, l := range set {
			if l != "" && !seen[l] {
				seen[l] = true
				out = append(out, l)
			}
		}
	}
	return out
}
