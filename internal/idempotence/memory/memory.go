// Package memory is an in-process idempotence store. Records do not survive
// a restart.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hejijunhao/warden/internal/idempotence"
)

func init() {
	idempotence.Register("memory", func(_ context.Context, _ idempotence.StoreConfig) (idempotence.Store, error) {
		return New(), nil
	})
}

type record struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// Store keeps records in a map and expires them lazily on read.
type Store struct {
	mu      sync.Mutex
	records map[string]record
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{records: make(map[string]record), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	if !ok {
		return false, nil
	}
	if s.expired(r) {
		delete(s.records, key)
		return false, nil
	}
	return true, nil
}

// Record stores value under key. A non-positive ttl stores the record
// without expiry.
func (s *Store) Record(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := record{value: append([]byte(nil), value...)}
	if ttl > 0 {
		r.expiresAt = s.now().Add(ttl)
	}
	s.records[key] = r
	return nil
}

// Value returns the stored payload for key if it is live.
func (s *Store) Value(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	if !ok || s.expired(r) {
		return nil, false
	}
	return r.value, true
}

// Len returns the number of live records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.records {
		if !s.expired(r) {
			n++
		}
	}
	return n
}

func (s *Store) SweepPersistent(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, r := range s.records {
		if strings.HasPrefix(k, prefix) && r.expiresAt.IsZero() {
			delete(s.records, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) expired(r record) bool {
	return !r.expiresAt.IsZero() && !s.now().Before(r.expiresAt)
}
