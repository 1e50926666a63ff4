package idempotence

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hejijunhao/warden/internal/engine/fingerprint"
)

// fakeStore is a map-backed Store that can be switched into a failing mode.
type fakeStore struct {
	mu      sync.Mutex
	records map[string][]byte
	ttls    map[string]time.Duration
	fail    bool
	swept   string
	closed  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

var errDown = errors.New("connection refused")

func (f *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return false, errDown
	}
	_, ok := f.records[key]
	return ok, nil
}

func (f *fakeStore) Record(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errDown
	}
	f.records[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) SweepPersistent(_ context.Context, prefix string) (int, error) {
	f.swept = prefix
	return 0, nil
}

func (f *fakeStore) Ping(context.Context) error {
	if f.fail {
		return errDown
	}
	return nil
}

func (f *fakeStore) Close() error {
	f.closed = true
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGuardKeyLayout(t *testing.T) {
	g := NewGuard(nil, "prod")
	fp := fingerprint.Issue("p1", "api", "timeout")
	key := g.Key(KindIssue, fp)
	if key != "prod:issue:"+fp.String() {
		t.Fatalf("unexpected key %q", key)
	}
	if !strings.HasPrefix(g.Key(KindLogEvent, fp), "prod:log_event:") {
		t.Fatalf("unexpected log event key %q", g.Key(KindLogEvent, fp))
	}
	if !strings.HasPrefix(NewGuard(nil, "").Key(KindIssue, fp), DefaultNamespace+":") {
		t.Fatal("empty namespace should use the default")
	}
}

func TestGuardCheckAndMark(t *testing.T) {
	st := newFakeStore()
	g := NewGuard(st, "ns", WithLogger(quietLogger()))
	ctx := context.Background()
	fp := fingerprint.Issue("p1", "api", "timeout")

	if got := g.Check(ctx, KindIssue, fp); got != Absent {
		t.Fatalf("expected absent, got %s", got)
	}
	g.Mark(ctx, KindIssue, fp, map[string]string{"issue": "#1"}, time.Hour)
	if got := g.Check(ctx, KindIssue, fp); got != Present {
		t.Fatalf("expected present, got %s", got)
	}
	if !g.Seen(ctx, KindIssue, fp) {
		t.Fatal("expected Seen after Mark")
	}
	key := g.Key(KindIssue, fp)
	if string(st.records[key]) != `{"issue":"#1"}` {
		t.Fatalf("unexpected payload %q", st.records[key])
	}
	if st.ttls[key] != time.Hour {
		t.Fatalf("unexpected ttl %v", st.ttls[key])
	}
	// Kinds are separate namespaces.
	if g.Seen(ctx, KindLogEvent, fp) {
		t.Fatal("log_event namespace should not see issue records")
	}
}

func TestGuardFailOpen(t *testing.T) {
	st := newFakeStore()
	g := NewGuard(st, "ns", WithLogger(quietLogger()))
	ctx := context.Background()
	fp := fingerprint.Issue("p1", "api", "timeout")

	g.Mark(ctx, KindIssue, fp, nil, time.Hour)
	st.fail = true

	if got := g.Check(ctx, KindIssue, fp); got != Unavailable {
		t.Fatalf("expected unavailable, got %s", got)
	}
	if g.Seen(ctx, KindIssue, fp) {
		t.Fatal("unavailable store must read as not seen")
	}
	// Mark must not panic or surface the error.
	g.Mark(ctx, KindIssue, fingerprint.Issue("p1", "api", "other"), nil, time.Hour)
	if err := g.Ping(ctx); err == nil {
		t.Fatal("expected ping error from failing store")
	}
}

func TestGuardWithoutStore(t *testing.T) {
	g := NewGuard(nil, "ns", WithLogger(quietLogger()))
	ctx := context.Background()
	fp := fingerprint.Issue("p1", "api", "timeout")

	g.Mark(ctx, KindIssue, fp, nil, time.Hour)
	if got := g.Check(ctx, KindIssue, fp); got != Unavailable {
		t.Fatalf("expected unavailable, got %s", got)
	}
	if err := g.Ping(ctx); !errors.Is(err, ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
	if err := g.Close(); err != nil {
		t.Fatalf("close without store: %v", err)
	}
}

func TestOpenUnknownDriverFailsOpen(t *testing.T) {
	g := Open(context.Background(), StoreConfig{Driver: "no-such-driver"}, "ns", WithLogger(quietLogger()))
	if g == nil {
		t.Fatal("Open must always return a Guard")
	}
	if got := g.Check(context.Background(), KindLogEvent, fingerprint.Issue("a", "b", "c")); got != Unavailable {
		t.Fatalf("expected unavailable, got %s", got)
	}
}

func TestOpenConstructorErrorFailsOpen(t *testing.T) {
	Register("broken-for-test", func(context.Context, StoreConfig) (Store, error) {
		return nil, errDown
	})
	defer delete(registry, "broken-for-test")

	g := Open(context.Background(), StoreConfig{Driver: "broken-for-test"}, "ns", WithLogger(quietLogger()))
	if g.Seen(context.Background(), KindIssue, fingerprint.Issue("a", "b", "c")) {
		t.Fatal("expected fail-open guard")
	}
}

func TestOpenSweepsNamespace(t *testing.T) {
	st := newFakeStore()
	Register("fake-for-test", func(context.Context, StoreConfig) (Store, error) {
		return st, nil
	})
	defer delete(registry, "fake-for-test")

	g := Open(context.Background(), StoreConfig{Driver: "fake-for-test"}, "prod", WithLogger(quietLogger()))
	if st.swept != "prod:" {
		t.Fatalf("expected sweep over %q, got %q", "prod:", st.swept)
	}
	if err := g.Close(); err != nil || !st.closed {
		t.Fatalf("expected store closed, err=%v closed=%v", err, st.closed)
	}
}

func TestDrivers(t *testing.T) {
	Register("zz-test", func(context.Context, StoreConfig) (Store, error) { return nil, nil })
	defer delete(registry, "zz-test")
	found := false
	for _, d := range Drivers() {
		if d == "zz-test" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected registered driver in %v", Drivers())
	}
}
