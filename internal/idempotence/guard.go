package idempotence

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hejijunhao/warden/internal/engine/fingerprint"
)

// Kind distinguishes the fingerprint namespaces.
type Kind string

const (
	KindLogEvent Kind = "log_event"
	KindIssue    Kind = "issue"
)

const (
	DefaultLogEventTTL = 24 * time.Hour
	DefaultIssueTTL    = 7 * 24 * time.Hour
	DefaultNamespace   = "warden"
)

// ErrNoStore is returned by Ping when the Guard runs without a store.
var ErrNoStore = errors.New("idempotence: no store")

// Presence is the outcome of a Check.
type Presence int

const (
	Absent Presence = iota
	Present
	Unavailable
)

func (p Presence) String() string {
	switch p {
	case Present:
		return "present"
	case Unavailable:
		return "unavailable"
	default:
		return "absent"
	}
}

// Guard applies the degradation policy on top of a Store: when the store is
// missing or failing, checks report Unavailable (treated as not seen) and
// writes are dropped with a log line. Guard methods never return errors.
type Guard struct {
	store     Store
	namespace string
	logger    *slog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the logger used for degraded operations.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// NewGuard wraps store. A nil store yields a Guard that is always unavailable.
func NewGuard(store Store, namespace string, opts ...Option) *Guard {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	g := &Guard{store: store, namespace: namespace, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Open acquires the configured store. Acquisition failure is not fatal: it
// is logged and the returned Guard runs without a store. A best-effort sweep
// of records stored without a TTL runs after a successful open.
func Open(ctx context.Context, cfg StoreConfig, namespace string, opts ...Option) *Guard {
	g := NewGuard(nil, namespace, opts...)

	ctor, err := lookup(cfg.Driver)
	if err != nil {
		g.logger.Error("idempotence store unavailable, running fail-open", "driver", cfg.Driver, "error", err)
		return g
	}
	store, err := ctor(ctx, cfg)
	if err != nil {
		g.logger.Error("idempotence store unavailable, running fail-open", "driver", cfg.Driver, "error", err)
		return g
	}
	g.store = store

	if n, err := store.SweepPersistent(ctx, g.namespace+":"); err != nil {
		g.logger.Warn("sweep of records without ttl failed", "error", err)
	} else if n > 0 {
		g.logger.Warn("removed records stored without ttl", "count", n)
	}
	return g
}

// Key returns the store key for a fingerprint: "<namespace>:<kind>:<hex>".
func (g *Guard) Key(kind Kind, fp fingerprint.Fingerprint) string {
	return g.namespace + ":" + string(kind) + ":" + fp.String()
}

// Check looks up a fingerprint.
func (g *Guard) Check(ctx context.Context, kind Kind, fp fingerprint.Fingerprint) Presence {
	if g.store == nil {
		return Unavailable
	}
	key := g.Key(kind, fp)
	ok, err := g.store.Exists(ctx, key)
	if err != nil {
		g.logger.Warn("idempotence check failed, treating as not seen", "key", key, "error", err)
		return Unavailable
	}
	if ok {
		return Present
	}
	return Absent
}

// Seen reports whether a live record exists. An unavailable store reads as
// not seen.
func (g *Guard) Seen(ctx context.Context, kind Kind, fp fingerprint.Fingerprint) bool {
	return g.Check(ctx, kind, fp) == Present
}

// Mark records that an action was taken for fp. payload is JSON-encoded;
// nil stores an empty value.
func (g *Guard) Mark(ctx context.Context, kind Kind, fp fingerprint.Fingerprint, payload any, ttl time.Duration) {
	key := g.Key(kind, fp)
	if g.store == nil {
		g.logger.Warn("idempotence store unavailable, record dropped", "key", key)
		return
	}
	var value []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			g.logger.Warn("idempotence payload not encodable, recording without payload", "key", key, "error", err)
		} else {
			value = b
		}
	}
	if err := g.store.Record(ctx, key, value, ttl); err != nil {
		g.logger.Warn("idempotence record failed", "key", key, "error", err)
	}
}

// Ping reports whether the store is reachable.
func (g *Guard) Ping(ctx context.Context) error {
	if g.store == nil {
		return ErrNoStore
	}
	return g.store.Ping(ctx)
}

// Close releases the store.
func (g *Guard) Close() error {
	if g.store == nil {
		return nil
	}
	return g.store.Close()
}
