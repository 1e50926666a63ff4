// Package redis backs the idempotence store with Redis keys and native TTLs.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hejijunhao/warden/internal/idempotence"
)

const (
	defaultURL = "redis://localhost:6379/0"
	scanCount  = 500
)

func init() {
	idempotence.Register("redis", func(ctx context.Context, cfg idempotence.StoreConfig) (idempotence.Store, error) {
		return Open(ctx, cfg.URL)
	})
}

// Store implements idempotence.Store on a Redis client.
type Store struct {
	client goredis.UniversalClient
}

// Open parses url, connects and pings the server.
func Open(ctx context.Context, url string) (*Store, error) {
	if url == "" {
		url = defaultURL
	}
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis store: parse url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis store: ping: %w", err)
	}
	return &Store{client: client}, nil
}

// New wraps an existing client.
func New(client goredis.UniversalClient) *Store {
	return &Store{client: client}
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis store: exists: %w", err)
	}
	return n > 0, nil
}

func (s *Store) Record(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis store: set: %w", err)
	}
	return nil
}

// SweepPersistent scans prefix* and deletes keys whose TTL reports no expiry.
func (s *Store) SweepPersistent(ctx context.Context, prefix string) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, prefix+"*", scanCount).Result()
		if err != nil {
			return removed, fmt.Errorf("redis store: scan: %w", err)
		}
		for _, key := range keys {
			ttl, err := s.client.TTL(ctx, key).Result()
			if err != nil {
				return removed, fmt.Errorf("redis store: ttl: %w", err)
			}
			// -1 is "exists without expiry"; -2 is "missing".
			if ttl != -1 {
				continue
			}
			if err := s.client.Del(ctx, key).Err(); err != nil {
				return removed, fmt.Errorf("redis store: del: %w", err)
			}
			removed++
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
