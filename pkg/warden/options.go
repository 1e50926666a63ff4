package warden

import (
	"log/slog"
	"time"

	"github.com/hejijunhao/warden/internal/idempotence"
)

type options struct {
	driver        string
	url           string
	namespace     string
	logEventTTL   time.Duration
	issueTTL      time.Duration
	bucket        time.Duration
	messagePrefix int
	logger        *slog.Logger
}

// Option configures a Warden instance.
type Option func(*options)

// WithStore selects the backend: "memory", "redis", "sqlite3" or "postgres",
// with a driver-specific URL. Default: an in-process memory store.
func WithStore(driver, url string) Option {
	return func(o *options) {
		o.driver = driver
		o.url = url
	}
}

// WithNamespace prefixes every key. Default: "warden".
func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

// WithTTLs sets how long batch and issue records suppress repeats.
// Default: 24h and 7 days.
func WithTTLs(logEvent, issue time.Duration) Option {
	return func(o *options) {
		o.logEventTTL = logEvent
		o.issueTTL = issue
	}
}

// WithBucket sets the timestamp window batch fingerprints are floored to.
// Default: 5m.
func WithBucket(d time.Duration) Option {
	return func(o *options) { o.bucket = d }
}

// WithMessagePrefix sets how many characters of each message take part in
// batch fingerprints. Default: 100.
func WithMessagePrefix(n int) Option {
	return func(o *options) { o.messagePrefix = n }
}

// WithLogger sets the logger for store failures. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func defaultOptions() options {
	return options{
		driver:      "memory",
		namespace:   "warden",
		logEventTTL: idempotence.DefaultLogEventTTL,
		issueTTL:    idempotence.DefaultIssueTTL,
		logger:      slog.Default(),
	}
}
