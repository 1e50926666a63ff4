package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hejijunhao/warden/internal/model"
)

var (
	knownProviders   = map[string]bool{"vercel": true, "flyio": true}
	knownDrivers     = map[string]bool{"": true, "memory": true, "redis": true, "sqlite3": true, "postgres": true}
	knownModels      = map[string]bool{"": true, "openai": true, "anthropic": true}
	knownVerbosities = map[string]bool{"minimal": true, "standard": true, "full": true}
)

// Validate reports every configuration problem at once. The returned error
// wraps ErrInvalid.
func (c Config) Validate() error {
	var errs []error

	if len(c.Targets) == 0 {
		errs = append(errs, errors.New("no targets configured (set targets in WARDEN_CONFIG or WARDEN_TARGET_PROJECT)"))
	}
	projects := make(map[string]string)
	for i, t := range c.Targets {
		label := t.Label()
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		if t.Project == "" {
			errs = append(errs, fmt.Errorf("target %s: project is required", label))
		} else if prev, dup := projects[t.Project]; dup {
			errs = append(errs, fmt.Errorf("target %s: project %q already used by target %s", label, t.Project, prev))
		} else {
			projects[t.Project] = label
		}
		if !knownProviders[t.Provider] {
			errs = append(errs, fmt.Errorf("target %s: unknown provider %q", label, t.Provider))
		} else if t.APIKey == "" && c.APIKeys[t.Provider] == "" {
			errs = append(errs, fmt.Errorf("target %s: missing API key for provider %s", label, t.Provider))
		}
	}

	if _, err := model.ParseSeverity(c.Cycle.IssueThreshold); err != nil {
		errs = append(errs, fmt.Errorf("issue_threshold: %w", err))
	}
	if _, err := model.ParseSeverity(c.Cycle.AlertThreshold); err != nil {
		errs = append(errs, fmt.Errorf("alert_threshold: %w", err))
	}
	if c.Cycle.LogEventTTL <= 0 {
		errs = append(errs, fmt.Errorf("log_event_ttl must be positive, got %v", c.Cycle.LogEventTTL))
	}
	if c.Cycle.IssueTTL <= 0 {
		errs = append(errs, fmt.Errorf("issue_ttl must be positive, got %v", c.Cycle.IssueTTL))
	}
	if c.Cycle.Lookback <= 0 {
		errs = append(errs, fmt.Errorf("lookback must be positive, got %v", c.Cycle.Lookback))
	}
	if c.Cycle.MaxParallel < 0 {
		errs = append(errs, fmt.Errorf("max_parallel must be >= 0, got %d", c.Cycle.MaxParallel))
	}
	if strings.TrimSpace(c.Cycle.Schedule) == "" {
		errs = append(errs, errors.New("schedule is required"))
	}

	if !knownDrivers[c.Store.Driver] {
		errs = append(errs, fmt.Errorf("store driver %q is not one of memory, redis, sqlite3, postgres", c.Store.Driver))
	} else if c.Store.Driver != "" && c.Store.Driver != "memory" && c.Store.URL == "" {
		errs = append(errs, fmt.Errorf("store driver %s requires a url (WARDEN_STORE_URL)", c.Store.Driver))
	}

	if !knownModels[c.Analyzer.Provider] {
		errs = append(errs, fmt.Errorf("analyzer provider %q is not one of openai, anthropic", c.Analyzer.Provider))
	} else if c.Analyzer.Provider != "" && c.Analyzer.APIKey == "" {
		errs = append(errs, fmt.Errorf("analyzer provider %s requires an API key (WARDEN_LLM_API_KEY)", c.Analyzer.Provider))
	}
	if !knownVerbosities[c.Analyzer.Verbosity] {
		errs = append(errs, fmt.Errorf("analyzer verbosity %q is not one of minimal, standard, full", c.Analyzer.Verbosity))
	}
	if c.Analyzer.DedupWindow < 0 {
		errs = append(errs, fmt.Errorf("dedup_window must be >= 0, got %v", c.Analyzer.DedupWindow))
	}

	switch c.Issues.Provider {
	case "", "none":
	case "github":
		if c.Issues.Token == "" {
			errs = append(errs, errors.New("issue provider github requires a token (WARDEN_GITHUB_TOKEN)"))
		}
	default:
		errs = append(errs, fmt.Errorf("issue provider %q is not one of github, none", c.Issues.Provider))
	}

	if !knownVerbosities[c.Alerts.Verbosity] {
		errs = append(errs, fmt.Errorf("alert verbosity %q is not one of minimal, standard, full", c.Alerts.Verbosity))
	}
	if e := c.Alerts.Email; e.Host != "" && (e.From == "" || len(e.To) == 0) {
		errs = append(errs, errors.New("email alerts require from and to addresses"))
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log format %q is not one of json, text", c.Log.Format))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown_timeout must be positive, got %v", c.ShutdownTimeout))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}
