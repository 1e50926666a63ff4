// Package cycle runs analysis cycles: collect logs, skip batches already
// processed, analyze each target, file issues at most once per problem and
// alert on new issues.
package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hejijunhao/warden/internal/alert"
	"github.com/hejijunhao/warden/internal/analyzer"
	"github.com/hejijunhao/warden/internal/connector"
	"github.com/hejijunhao/warden/internal/engine/fingerprint"
	"github.com/hejijunhao/warden/internal/engine/gate"
	"github.com/hejijunhao/warden/internal/idempotence"
	"github.com/hejijunhao/warden/internal/issue"
	"github.com/hejijunhao/warden/internal/model"
)

// DefaultLookback is the collection window used when Config.Lookback is zero.
const DefaultLookback = 15 * time.Minute

// Source fetches a target's log entries.
type Source interface {
	Fetch(ctx context.Context, target model.Target, params connector.QueryParams) ([]model.LogEntry, error)
}

// Dispatcher sends an alert to every configured channel and reports each
// channel's outcome.
type Dispatcher interface {
	Dispatch(ctx context.Context, a alert.Alert) []alert.Result
}

// Config is the resolved configuration of a Coordinator.
type Config struct {
	Targets        []model.Target
	Lookback       time.Duration
	IssueThreshold model.Severity
	AlertThreshold model.Severity
	LogEventTTL    time.Duration
	IssueTTL       time.Duration
	Fingerprint    fingerprint.Options
	MaxParallel    int // concurrent targets; <= 1 is sequential
}

// Coordinator runs one cycle at a time.
type Coordinator struct {
	cfg      Config
	source   Source
	analyzer analyzer.Analyzer
	tracker  issue.Tracker
	alerts   Dispatcher
	guard    *idempotence.Guard
	logger   *slog.Logger
	now      func() time.Time

	running atomic.Bool
	state   atomic.Int32

	mu   sync.Mutex
	last *Report
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithClock sets the time source. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates a Coordinator. A nil tracker disables issue creation and with
// it alerting; a nil dispatcher disables alerting.
func New(cfg Config, source Source, an analyzer.Analyzer, tracker issue.Tracker, alerts Dispatcher, guard *idempotence.Guard, opts ...Option) *Coordinator {
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultLookback
	}
	if cfg.LogEventTTL <= 0 {
		cfg.LogEventTTL = idempotence.DefaultLogEventTTL
	}
	if cfg.IssueTTL <= 0 {
		cfg.IssueTTL = idempotence.DefaultIssueTTL
	}
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 1
	}
	if guard == nil {
		guard = idempotence.NewGuard(nil, "")
	}
	c := &Coordinator{
		cfg:      cfg,
		source:   source,
		analyzer: an,
		tracker:  tracker,
		alerts:   alerts,
		guard:    guard,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current cycle state. With parallel targets it reflects
// the most recent transition of any target.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// InFlight reports whether a cycle is running.
func (c *Coordinator) InFlight() bool {
	return c.running.Load()
}

// LastReport returns the report of the most recent cycle that was not skipped.
func (c *Coordinator) LastReport() (Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Report{}, false
	}
	return *c.last, true
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
}

// Run executes one cycle. It never fails: collaborator errors are logged and
// recorded in the report at the smallest affected scope. A Run that starts
// while another is in flight returns immediately with OutcomeSkipped.
func (c *Coordinator) Run(ctx context.Context) Report {
	rep := Report{CycleID: uuid.NewString(), StartedAt: c.now()}
	logger := c.logger.With("cycle_id", rep.CycleID)

	if !c.running.CompareAndSwap(false, true) {
		logger.Warn("cycle already in progress, skipping")
		rep.Outcome = OutcomeSkipped
		rep.FinishedAt = c.now()
		return rep
	}
	defer c.running.Store(false)
	defer c.setState(Idle)

	c.run(ctx, &rep, logger)
	rep.FinishedAt = c.now()

	logger.Info("cycle finished",
		"outcome", rep.Outcome,
		"entries", rep.Entries,
		"issues_created", rep.IssuesCreated(),
		"alerts", rep.AlertsSent(),
		"duration", rep.FinishedAt.Sub(rep.StartedAt),
	)

	c.mu.Lock()
	c.last = &rep
	c.mu.Unlock()
	return rep
}

func (c *Coordinator) run(ctx context.Context, rep *Report, logger *slog.Logger) {
	c.setState(Collecting)
	rep.Targets = make([]TargetReport, len(c.cfg.Targets))
	batch := c.collect(ctx, rep, logger)
	rep.Entries = len(batch)
	if len(batch) == 0 {
		rep.Outcome = OutcomeEmpty
		logger.Info("no log entries collected")
		return
	}

	c.setState(CheckingBatchDedup)
	fp := fingerprint.LogEvent(batch, c.cfg.Fingerprint)
	rep.Fingerprint = fp.String()
	if c.guard.Seen(ctx, idempotence.KindLogEvent, fp) {
		rep.Outcome = OutcomeDuplicate
		logger.Info("batch already processed", "fingerprint", rep.Fingerprint)
		return
	}

	c.setState(Analyzing)
	_, groups := model.Partition(batch)
	c.forEachTarget(func(i int) {
		t := c.cfg.Targets[i]
		c.processTarget(ctx, rep.CycleID, t, groups[t.Project], &rep.Targets[i], logger.With("target", t.Label()))
	})

	c.setState(Finalizing)
	c.guard.Mark(ctx, idempotence.KindLogEvent, fp, logEventRecord{
		CycleID:    rep.CycleID,
		Entries:    rep.Entries,
		RecordedAt: c.now(),
	}, c.cfg.LogEventTTL)
	rep.Outcome = OutcomeCompleted
}

type logEventRecord struct {
	CycleID    string    `json:"cycle_id"`
	Entries    int       `json:"entries"`
	RecordedAt time.Time `json:"recorded_at"`
}

// collect fetches every target. A failing target is logged and contributes
// no entries.
func (c *Coordinator) collect(ctx context.Context, rep *Report, logger *slog.Logger) []model.LogEntry {
	end := c.now()
	params := connector.QueryParams{Start: end.Add(-c.cfg.Lookback), End: end}

	var batch []model.LogEntry
	for i, t := range c.cfg.Targets {
		tr := &rep.Targets[i]
		tr.Target, tr.Project = t.Label(), t.Project

		var entries []model.LogEntry
		err := safely(func() error {
			var err error
			entries, err = c.source.Fetch(ctx, t, params)
			return err
		})
		if err != nil {
			tr.FetchError = err.Error()
			logger.Warn("log collection failed, skipping target", "target", t.Label(), "error", err)
			continue
		}
		batch = append(batch, entries...)
	}
	return batch
}

// forEachTarget calls fn for every target index, with at most MaxParallel
// calls in flight.
func (c *Coordinator) forEachTarget(fn func(i int)) {
	if c.cfg.MaxParallel <= 1 {
		for i := range c.cfg.Targets {
			fn(i)
		}
		return
	}
	sem := make(chan struct{}, c.cfg.MaxParallel)
	var wg sync.WaitGroup
	for i := range c.cfg.Targets {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(i)
		}(i)
	}
	wg.Wait()
}

// processTarget analyzes and acts on one target. A panic is contained here.
func (c *Coordinator) processTarget(ctx context.Context, cycleID string, t model.Target, entries []model.LogEntry, tr *TargetReport, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			tr.Error = fmt.Sprintf("panic: %v", r)
			logger.Error("target processing panicked", "panic", r)
		}
	}()

	tr.Entries = len(entries)
	if tr.FetchError != "" {
		return
	}
	if len(entries) == 0 {
		tr.Skipped = "no entries"
		return
	}

	f, err := c.analyzer.Analyze(ctx, entries, t)
	if err != nil {
		tr.AnalyzerError = err.Error()
		logger.Warn("analysis failed, using heuristic finding", "error", err)
		f = analyzer.Heuristic(entries, t)
	}
	sev := f.Severity
	tr.Severity, tr.Actionable, tr.Fallback = &sev, f.Actionable, f.Fallback

	floor := gate.Floor(c.cfg.IssueThreshold, c.cfg.AlertThreshold)
	switch {
	case !f.Actionable:
		tr.Skipped = "not actionable"
		return
	case f.Severity < floor && len(f.AffectedServices) == 0:
		tr.Skipped = "below report floor"
		return
	}

	c.setState(Acting)
	service := primaryService(f, t, entries)
	tr.Service = service

	var created []model.IssueRef
	for _, pattern := range f.ErrorPatterns {
		fp := fingerprint.Issue(t.Project, service, pattern)
		plog := logger.With("pattern", pattern, "fingerprint", fp.String())

		if c.guard.Seen(ctx, idempotence.KindIssue, fp) {
			tr.Suppressed = append(tr.Suppressed, pattern)
			plog.Info("issue already filed, suppressing")
			continue
		}
		if !gate.ShouldAct(f.Severity, c.cfg.IssueThreshold) || c.tracker == nil {
			continue
		}

		refs, err := c.tracker.CreateIssue(ctx, f.Narrow(pattern), t)
		if err != nil {
			tr.IssueErrors = append(tr.IssueErrors, pattern+": "+err.Error())
			plog.Warn("issue creation failed", "error", err)
			continue
		}
		if len(refs) == 0 {
			plog.Warn("issue tracker returned no references")
			continue
		}

		c.guard.Mark(ctx, idempotence.KindIssue, fp, model.IssueRecord{
			Project:   t.Project,
			Service:   service,
			Pattern:   pattern,
			Issue:     refs[0],
			Timestamp: c.now(),
		}, c.cfg.IssueTTL)
		created = append(created, refs...)
		plog.Info("issue created", "issue", refs[0].Repository+refs[0].Identifier)
	}
	tr.Created = created

	if len(created) == 0 || !gate.ShouldAct(f.Severity, c.cfg.AlertThreshold) || c.alerts == nil {
		return
	}

	results := c.alerts.Dispatch(ctx, alert.Alert{
		CycleID:   cycleID,
		Timestamp: c.now(),
		Target:    t,
		Finding:   f,
		Issues:    created,
	})
	tr.Alerted = true
	for _, r := range results {
		cr := ChannelResult{Channel: r.Channel}
		if r.Err != nil {
			cr.Error = r.Err.Error()
			logger.Warn("alert channel failed", "channel", r.Channel, "error", r.Err)
		}
		tr.Alerts = append(tr.Alerts, cr)
	}
}

// primaryService picks the service id used in issue fingerprints: the first
// affected service, else the target's service override, else the most
// frequent service in the entries (first seen wins ties), else the target
// label.
func primaryService(f model.Finding, t model.Target, entries []model.LogEntry) string {
	if len(f.AffectedServices) > 0 {
		return f.AffectedServices[0]
	}
	if t.Service != "" {
		return t.Service
	}

	counts := make(map[string]int)
	var order []string
	for _, e := range entries {
		if e.Service == "" {
			continue
		}
		if counts[e.Service] == 0 {
			order = append(order, e.Service)
		}
		counts[e.Service]++
	}
	best := ""
	for _, s := range order {
		if best == "" || counts[s] > counts[best] {
			best = s
		}
	}
	if best != "" {
		return best
	}
	return t.Label()
}

// safely runs fn, converting a panic into an error.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
