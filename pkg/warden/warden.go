package warden

import (
	"context"
	"fmt"
	"time"

	"github.com/hejijunhao/warden/internal/engine/fingerprint"
	"github.com/hejijunhao/warden/internal/engine/gate"
	"github.com/hejijunhao/warden/internal/idempotence"
	"github.com/hejijunhao/warden/internal/model"

	// Register store backends.
	_ "github.com/hejijunhao/warden/internal/idempotence/memory"
	_ "github.com/hejijunhao/warden/internal/idempotence/redis"
	_ "github.com/hejijunhao/warden/internal/idempotence/sqlstore"
)

// Warden answers "has this already happened?" for log batches and issues.
type Warden struct {
	guard *idempotence.Guard
	opts  options
}

// New opens the configured store. A store that cannot be opened is logged
// and New still succeeds, running without a store.
func New(opts ...Option) (*Warden, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logEventTTL <= 0 || o.issueTTL <= 0 {
		return nil, fmt.Errorf("warden: TTLs must be positive")
	}
	guard := idempotence.Open(context.Background(),
		idempotence.StoreConfig{Driver: o.driver, URL: o.url},
		o.namespace, idempotence.WithLogger(o.logger))
	return &Warden{guard: guard, opts: o}, nil
}

// BatchFingerprint returns the hex fingerprint of a log batch. Batches that
// differ only in order, or in timestamps within the same bucket, share a
// fingerprint.
func (w *Warden) BatchFingerprint(logs []Log) string {
	return w.batch(logs).String()
}

// IssueFingerprint returns the hex fingerprint of a problem.
func IssueFingerprint(project, service, pattern string) string {
	return fingerprint.Issue(project, service, pattern).String()
}

// SeenBatch reports whether the batch was marked within the log-event TTL.
func (w *Warden) SeenBatch(ctx context.Context, logs []Log) bool {
	return w.guard.Seen(ctx, idempotence.KindLogEvent, w.batch(logs))
}

// MarkBatch records the batch as processed.
func (w *Warden) MarkBatch(ctx context.Context, logs []Log) {
	w.guard.Mark(ctx, idempotence.KindLogEvent, w.batch(logs), map[string]any{
		"entries":     len(logs),
		"recorded_at": time.Now().UTC(),
	}, w.opts.logEventTTL)
}

// SeenIssue reports whether an issue for the problem was marked within the
// issue TTL.
func (w *Warden) SeenIssue(ctx context.Context, project, service, pattern string) bool {
	return w.guard.Seen(ctx, idempotence.KindIssue, fingerprint.Issue(project, service, pattern))
}

// MarkIssue records that ref was filed for the problem. Call it only after
// the issue was created.
func (w *Warden) MarkIssue(ctx context.Context, project, service, pattern string, ref Issue) {
	w.guard.Mark(ctx, idempotence.KindIssue, fingerprint.Issue(project, service, pattern), model.IssueRecord{
		Project:   project,
		Service:   service,
		Pattern:   pattern,
		Issue:     model.IssueRef(ref),
		Timestamp: time.Now().UTC(),
	}, w.opts.issueTTL)
}

// ShouldAct reports whether severity meets threshold. Both are "low",
// "medium" or "high".
func ShouldAct(severity, threshold string) (bool, error) {
	sev, err := model.ParseSeverity(severity)
	if err != nil {
		return false, fmt.Errorf("warden: %w", err)
	}
	thr, err := model.ParseSeverity(threshold)
	if err != nil {
		return false, fmt.Errorf("warden: %w", err)
	}
	return gate.ShouldAct(sev, thr), nil
}

// Ping reports whether the store is reachable.
func (w *Warden) Ping(ctx context.Context) error {
	return w.guard.Ping(ctx)
}

// Close releases the store.
func (w *Warden) Close() error {
	return w.guard.Close()
}

func (w *Warden) batch(logs []Log) fingerprint.Fingerprint {
	entries := make([]model.LogEntry, len(logs))
	for i, l := range logs {
		entries[i] = model.LogEntry{
			Timestamp: l.Timestamp,
			Level:     model.ParseLevel(l.Level),
			Message:   l.Message,
			Service:   l.Service,
			Project:   l.Project,
		}
	}
	return fingerprint.LogEvent(entries, fingerprint.Options{
		MessagePrefix: w.opts.messagePrefix,
		Bucket:        w.opts.bucket,
	})
}
