// Package stdout writes alerts as JSON lines.
package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hejijunhao/warden/internal/alert"
)

// Channel writes JSON-encoded alerts to stdout.
type Channel struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// New creates a stdout channel with optional pretty-printed JSON.
func New(pretty bool) *Channel {
	return NewWriter(os.Stdout, pretty)
}

// NewWriter is New with an arbitrary destination.
func NewWriter(w io.Writer, pretty bool) *Channel {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return &Channel{enc: enc}
}

func (c *Channel) Name() string { return "stdout" }

func (c *Channel) Send(_ context.Context, a alert.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enc.Encode(a); err != nil {
		return fmt.Errorf("stdout alert: %w", err)
	}
	return nil
}

func (c *Channel) Close() error {
	return nil
}
