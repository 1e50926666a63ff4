// Package idempotence records which actions have already been taken and
// answers "has this fingerprint been seen within its TTL window".
package idempotence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrUnknownDriver is returned by Open for an unregistered driver name.
var ErrUnknownDriver = errors.New("idempotence: unknown store driver")

// Store is a namespaced key/TTL cache.
type Store interface {
	// Exists reports whether a live record exists for key.
	Exists(ctx context.Context, key string) (bool, error)

	// Record writes or overwrites key with value, expiring after ttl.
	Record(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SweepPersistent deletes records under prefix that carry no expiry
	// and returns how many were removed.
	SweepPersistent(ctx context.Context, prefix string) (int, error)

	Ping(ctx context.Context) error
	Close() error
}

// StoreConfig selects and configures a backend.
type StoreConfig struct {
	Driver string // "redis", "sqlite3", "postgres", "memory"
	URL    string // driver-specific DSN or URL
}

// Constructor opens a Store from config.
type Constructor func(ctx context.Context, cfg StoreConfig) (Store, error)

var registry = map[string]Constructor{}

// Register adds a store constructor under the given driver name.
func Register(name string, ctor Constructor) {
	registry[name] = ctor
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(name string) (Constructor, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, name)
	}
	return ctor, nil
}
