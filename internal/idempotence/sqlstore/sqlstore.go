// Package sqlstore backs the idempotence store with a SQL table. SQLite and
// PostgreSQL are supported; expiry is enforced on read and expired rows are
// purged during sweeps.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hejijunhao/warden/internal/idempotence"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	defaultSQLitePath = "warden.db"
)

func init() {
	for _, driver := range []string{DriverSQLite, DriverPostgres} {
		driver := driver
		idempotence.Register(driver, func(ctx context.Context, cfg idempotence.StoreConfig) (idempotence.Store, error) {
			return Open(ctx, driver, cfg.URL)
		})
	}
}

// Store implements idempotence.Store on database/sql.
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open connects to the database and creates the schema if needed.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	if driver == DriverSQLite {
		if dsn == "" {
			dsn = defaultSQLitePath
		}
		if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", dsn)
		}
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql store: open: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, driver: driver, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sql store: schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS idempotence_records (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	recorded_at BIGINT NOT NULL,
	expires_at BIGINT
	)`,
		`CREATE INDEX IF NOT EXISTS idx_idempotence_expires ON idempotence_records(expires_at)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT 1 FROM idempotence_records WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`),
		key, s.now().UnixMilli(),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sql store: exists: %w", err)
	}
	return true, nil
}

// Record upserts key. A non-positive ttl stores the record without expiry.
func (s *Store) Record(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.now()
	var expires any
	if ttl > 0 {
		expires = now.Add(ttl).UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO idempotence_records(key, value, recorded_at, expires_at) VALUES(?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, recorded_at = excluded.recorded_at, expires_at = excluded.expires_at`),
		key, string(value), now.UnixMilli(), expires,
	)
	if err != nil {
		return fmt.Errorf("sql store: record: %w", err)
	}
	return nil
}

// SweepPersistent deletes rows under prefix without expiry. Rows whose
// expiry has passed are purged in the same pass but not counted.
func (s *Store) SweepPersistent(ctx context.Context, prefix string) (int, error) {
	like := escapeLike(prefix) + "%"
	res, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM idempotence_records WHERE key LIKE ? ESCAPE '\' AND expires_at IS NULL`), like)
	if err != nil {
		return 0, fmt.Errorf("sql store: sweep: %w", err)
	}
	n, _ := res.RowsAffected()

	if _, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM idempotence_records WHERE expires_at IS NOT NULL AND expires_at <= ?`), s.now().UnixMilli()); err != nil {
		return int(n), fmt.Errorf("sql store: purge expired: %w", err)
	}
	return int(n), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
