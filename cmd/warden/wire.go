package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hejijunhao/warden/internal/alert"
	"github.com/hejijunhao/warden/internal/alert/async"
	"github.com/hejijunhao/warden/internal/alert/email"
	"github.com/hejijunhao/warden/internal/alert/file"
	"github.com/hejijunhao/warden/internal/alert/multi"
	"github.com/hejijunhao/warden/internal/alert/slack"
	"github.com/hejijunhao/warden/internal/alert/stdout"
	"github.com/hejijunhao/warden/internal/analyzer"
	"github.com/hejijunhao/warden/internal/config"
	"github.com/hejijunhao/warden/internal/connector"
	"github.com/hejijunhao/warden/internal/cycle"
	"github.com/hejijunhao/warden/internal/engine/compactor"
	"github.com/hejijunhao/warden/internal/engine/fingerprint"
	"github.com/hejijunhao/warden/internal/idempotence"
	"github.com/hejijunhao/warden/internal/issue"
	"github.com/hejijunhao/warden/internal/issue/github"
	"github.com/hejijunhao/warden/internal/model"
)

// app holds the wired components of one process.
type app struct {
	cfg       config.Config
	guard     *idempotence.Guard
	collector *connector.Collector
	model     *analyzer.LLM    // nil when only the heuristic runs
	tracker   *github.Tracker  // nil when issues are disabled
	alerts    *multi.Multi
	channels  []alert.Channel
	coord     *cycle.Coordinator
}

func build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg}

	if cfg.Store.Driver == "" {
		a.guard = idempotence.NewGuard(nil, cfg.Store.Namespace, idempotence.WithLogger(logger))
	} else {
		a.guard = idempotence.Open(ctx, idempotence.StoreConfig{Driver: cfg.Store.Driver, URL: cfg.Store.URL},
			cfg.Store.Namespace, idempotence.WithLogger(logger))
	}

	collector, err := connector.NewCollector(cfg.Targets, cfg.APIKeys)
	if err != nil {
		return nil, err
	}
	a.collector = collector

	an, err := a.buildAnalyzer()
	if err != nil {
		return nil, err
	}

	var tracker issue.Tracker
	if cfg.TrackerEnabled() {
		opts := []github.Option{github.WithDefaultRepository(cfg.Issues.Repository), github.WithLabels(cfg.Issues.Labels...)}
		if cfg.Issues.Endpoint != "" {
			opts = append(opts, github.WithEndpoint(cfg.Issues.Endpoint))
		}
		a.tracker = github.New(cfg.Issues.Token, opts...)
		tracker = a.tracker
	}

	if err := a.buildChannels(logger); err != nil {
		return nil, err
	}
	a.alerts = multi.New(a.channels...)

	var dispatcher cycle.Dispatcher
	if a.alerts.Len() > 0 {
		dispatcher = a.alerts
	}

	issueThr, alertThr := cfg.Thresholds()
	a.coord = cycle.New(cycle.Config{
		Targets:        cfg.Targets,
		Lookback:       cfg.Cycle.Lookback,
		IssueThreshold: issueThr,
		AlertThreshold: alertThr,
		LogEventTTL:    cfg.Cycle.LogEventTTL,
		IssueTTL:       cfg.Cycle.IssueTTL,
		Fingerprint: fingerprint.Options{
			MessagePrefix: cfg.Cycle.FingerprintPrefix,
			Bucket:        cfg.Cycle.FingerprintBucket,
		},
		MaxParallel: cfg.Cycle.MaxParallel,
	}, a.collector, an, tracker, dispatcher, a.guard, cycle.WithLogger(logger))

	return a, nil
}

func (a *app) buildAnalyzer() (analyzer.Analyzer, error) {
	c := a.cfg.Analyzer
	if c.Provider == "" {
		return analyzer.Func(func(_ context.Context, entries []model.LogEntry, t model.Target) (model.Finding, error) {
			return analyzer.Heuristic(entries, t), nil
		}), nil
	}
	m, err := analyzer.NewModel(analyzer.ModelConfig{
		Provider: c.Provider,
		APIKey:   c.APIKey,
		Model:    c.Model,
		BaseURL:  c.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	opts := []analyzer.Option{
		analyzer.WithVerbosity(compactor.ParseVerbosity(c.Verbosity)),
		analyzer.WithDedupWindow(c.DedupWindow),
		analyzer.WithTimeout(c.Timeout),
	}
	if c.PromptBudget > 0 {
		opts = append(opts, analyzer.WithPromptBudget(c.PromptBudget))
	}
	if c.MaxTokens > 0 {
		opts = append(opts, analyzer.WithMaxTokens(c.MaxTokens))
	}
	a.model = analyzer.New(m, opts...)
	return a.model, nil
}

func (a *app) buildChannels(logger *slog.Logger) error {
	c := a.cfg.Alerts
	if c.Stdout {
		a.channels = append(a.channels, stdout.New(c.Pretty))
	}
	if c.SlackURL != "" {
		a.channels = append(a.channels, slack.New(c.SlackURL, slack.WithTimeout(c.Timeout)))
	}
	if c.FilePath != "" {
		ch, err := file.New(c.FilePath, compactor.ParseVerbosity(c.Verbosity), file.WithMaxSize(c.FileMaxSize))
		if err != nil {
			return fmt.Errorf("alert file: %w", err)
		}
		a.channels = append(a.channels, ch)
	}
	if c.Email.Host != "" {
		ch, err := email.New(email.Config{
			Host:     c.Email.Host,
			Port:     c.Email.Port,
			Username: c.Email.Username,
			Password: c.Email.Password,
			From:     c.Email.From,
			To:       c.Email.To,
		})
		if err != nil {
			return err
		}
		if !c.Email.Async {
			a.channels = append(a.channels, ch)
			return nil
		}
		a.channels = append(a.channels, async.New(ch, async.WithOnError(func(err error) {
			logger.Warn("queued email alert failed", "error", err)
		})))
	}
	return nil
}

type check struct {
	name string
	ping func(context.Context) error
}

// checks returns every health-checkable dependency.
func (a *app) checks() []check {
	out := []check{{"store", a.guard.Ping}}
	if a.model != nil {
		out = append(out, check{"analyzer", a.model.Ping})
	}
	if a.tracker != nil {
		out = append(out, check{"issues", a.tracker.Ping})
	}
	for _, ch := range a.channels {
		if p, ok := ch.(interface{ Ping(context.Context) error }); ok {
			out = append(out, check{"alert:" + ch.Name(), p.Ping})
		}
	}
	return out
}

func (a *app) Close() error {
	return errors.Join(a.alerts.Close(), a.guard.Close())
}
