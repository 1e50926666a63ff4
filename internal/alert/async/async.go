// Package async decouples alert delivery from the cycle: alerts are queued
// and a background goroutine sends them to the wrapped channel.
package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hejijunhao/warden/internal/alert"
)

const (
	defaultBufferSize   = 64
	defaultDrainTimeout = 30 * time.Second
)

var (
	// ErrBufferFull is returned by Send in drop mode when the queue is full.
	ErrBufferFull = errors.New("async: buffer full, alert dropped")
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("async: channel closed")
)

// Option configures an Async wrapper.
type Option func(*Async)

// WithBufferSize sets the queue capacity. Default: 64.
func WithBufferSize(n int) Option {
	return func(a *Async) { a.bufSize = n }
}

// WithOnError sets the callback invoked when the inner channel's Send fails.
// Default: logs a warning via slog.
func WithOnError(f func(error)) Option {
	return func(a *Async) { a.errFunc = f }
}

// WithDropOnFull makes Send return ErrBufferFull immediately when the queue
// is full, instead of blocking.
func WithDropOnFull() Option {
	return func(a *Async) { a.dropOnFull = true }
}

// WithDrainTimeout bounds how long Close waits for queued alerts.
func WithDrainTimeout(d time.Duration) Option {
	return func(a *Async) { a.drainTimeout = d }
}

// Async queues alerts for a wrapped channel. A nil error from Send means the
// alert was queued, not delivered; delivery errors go to the error callback.
type Async struct {
	inner        alert.Channel
	ch           chan alert.Alert
	done         chan struct{}
	errFunc      func(error)
	bufSize      int
	dropOnFull   bool
	drainTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// New wraps inner. The drain goroutine starts immediately.
func New(inner alert.Channel, opts ...Option) *Async {
	a := &Async{
		inner:        inner,
		bufSize:      defaultBufferSize,
		drainTimeout: defaultDrainTimeout,
	}
	a.errFunc = func(err error) {
		slog.Warn("async alert delivery failed", "channel", inner.Name(), "error", err)
	}
	for _, opt := range opts {
		opt(a)
	}
	a.ch = make(chan alert.Alert, a.bufSize)
	a.done = make(chan struct{})
	go a.drain()
	return a
}

// Name returns the wrapped channel's name.
func (a *Async) Name() string { return a.inner.Name() }

// Send queues the alert. By default it blocks while the queue is full.
func (a *Async) Send(ctx context.Context, al alert.Alert) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}

	if a.dropOnFull {
		select {
		case a.ch <- al:
			return nil
		default:
			return ErrBufferFull
		}
	}
	select {
	case a.ch <- al:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ping forwards to the wrapped channel when it supports health checks.
func (a *Async) Ping(ctx context.Context) error {
	if p, ok := a.inner.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close stops accepting alerts, waits for the queue to drain (bounded by the
// drain timeout), then closes the wrapped channel.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.ch)
	a.mu.Unlock()

	select {
	case <-a.done:
	case <-time.After(a.drainTimeout):
		slog.Warn("async alert drain timed out", "channel", a.inner.Name())
	}
	return a.inner.Close()
}

func (a *Async) drain() {
	defer close(a.done)
	for al := range a.ch {
		if err := a.inner.Send(context.Background(), al); err != nil {
			a.errFunc(err)
		}
	}
}
