// Package file appends alerts to an NDJSON audit file.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/hejijunhao/warden/internal/alert"
	"github.com/hejijunhao/warden/internal/engine/compactor"
)

const defaultBufSize = 64 * 1024 // 64KB

// Option configures a file Channel.
type Option func(*Channel)

// WithMaxSize sets the file size (bytes) at which rotation triggers.
// 0 (default) disables rotation.
func WithMaxSize(bytes int64) Option {
	return func(c *Channel) { c.maxSize = bytes }
}

// WithBufSize sets the bufio.Writer buffer size. Default: 64KB.
func WithBufSize(bytes int) Option {
	return func(c *Channel) { c.bufSize = bytes }
}

// Channel writes NDJSON to a file with optional size-based rotation. Every
// Send is flushed before it returns.
type Channel struct {
	w         *bufio.Writer
	f         *os.File
	mu        sync.Mutex
	path      string
	verbosity compactor.Verbosity
	maxSize   int64 // 0 = no rotation
	written   int64
	bufSize   int
}

// New creates a file channel that appends NDJSON to the given path.
func New(path string, verbosity compactor.Verbosity, opts ...Option) (*Channel, error) {
	c := &Channel{
		path:      path,
		verbosity: verbosity,
		bufSize:   defaultBufSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.openFile(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Channel) Name() string { return "file" }

// Send JSON-encodes the alert and appends it as a line to the file.
func (c *Channel) Send(_ context.Context, a alert.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(alert.Format(a, c.verbosity))
	if err != nil {
		return fmt.Errorf("file alert: marshal: %w", err)
	}
	data = append(data, '\n')

	if c.maxSize > 0 && c.written > 0 && c.written+int64(len(data)) > c.maxSize {
		if err := c.rotate(); err != nil {
			return fmt.Errorf("file alert: rotate: %w", err)
		}
	}

	n, err := c.w.Write(data)
	c.written += int64(n)
	if err != nil {
		return fmt.Errorf("file alert: write: %w", err)
	}
	if err := c.w.Flush(); err != nil {
		return fmt.Errorf("file alert: flush: %w", err)
	}
	return nil
}

// Close flushes the buffer and closes the file.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.w.Flush(); err != nil {
		c.f.Close()
		return fmt.Errorf("file alert: flush: %w", err)
	}
	return c.f.Close()
}

// openFile opens (or creates) the file and wraps it in a bufio.Writer.
func (c *Channel) openFile() error {
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("file alert: open %s: %w", c.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("file alert: stat %s: %w", c.path, err)
	}
	c.f = f
	c.w = bufio.NewWriterSize(f, c.bufSize)
	c.written = info.Size()
	return nil
}

// rotate closes the current file, renames it to {path}.1 (shifting older
// rotated files up to .10) and opens a new file.
func (c *Channel) rotate() error {
	if err := c.w.Flush(); err != nil {
		return err
	}
	if err := c.f.Close(); err != nil {
		return err
	}

	for i := 9; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", c.path, i)
		to := fmt.Sprintf("%s.%d", c.path, i+1)
		os.Rename(from, to) // missing files are expected
	}
	if err := os.Rename(c.path, c.path+".1"); err != nil {
		return err
	}

	c.written = 0
	return c.openFile()
}
