// Package scheduler triggers analysis cycles on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hejijunhao/warden/internal/cycle"
)

// Runner runs one cycle.
type Runner interface {
	Run(ctx context.Context) cycle.Report
}

// Scheduler calls Runner.Run on every tick of a cron schedule. Overlapping
// ticks are left to the runner, which skips while a cycle is in flight.
type Scheduler struct {
	cron       *cron.Cron
	runner     Runner
	runOnStart bool
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRunOnStart runs a cycle immediately when the scheduler starts.
func WithRunOnStart(b bool) Option {
	return func(s *Scheduler) { s.runOnStart = b }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New parses spec (five-field cron or a descriptor such as "@every 15m")
// and returns a stopped Scheduler.
func New(spec string, runner Runner, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{runner: runner, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.cron = cron.New(cron.WithChain(cron.Recover(cronLogger{s.logger})))
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins ticking. It does not block.
func (s *Scheduler) Start() {
	if s.runOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tick()
		}()
	}
	s.cron.Start()
	s.logger.Info("scheduler started", "next", s.Next())
}

// Next returns the time of the next scheduled tick.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop stops ticking and waits for a running cycle until ctx is done, then
// cancels it.
func (s *Scheduler) Stop(ctx context.Context) error {
	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

func (s *Scheduler) tick() {
	rep := s.runner.Run(s.ctx)
	s.logger.Debug("scheduled cycle done", "cycle_id", rep.CycleID, "outcome", rep.Outcome)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
