package dedup

import (
	"fmt"
	"time"

	"github.com/hejijunhao/warden/internal/model"
)

// DefaultWindow is the grouping window used when Config.Window is zero.
const DefaultWindow = 5 * time.Minute

// Config controls deduplication behavior.
type Config struct {
	Window time.Duration // grouping window (default 5m)
}

// Deduplicator collapses repeated log lines within a time window.
type Deduplicator struct {
	cfg Config
}

// New creates a Deduplicator with the given config.
func New(cfg Config) *Deduplicator {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Deduplicator{cfg: cfg}
}

// Line is one collapsed group of identical entries.
type Line struct {
	Entry model.LogEntry // first occurrence
	Count int
	First time.Time
	Last  time.Time
}

// Text renders the line the way it appears in an analysis prompt.
func (l Line) Text() string {
	s := fmt.Sprintf("%s [%s] %s: %s", l.First.UTC().Format(time.RFC3339), l.Entry.Level, l.Entry.Service, l.Entry.Message)
	if l.Count > 1 {
		s += fmt.Sprintf(" (x%d in %s)", l.Count, formatDuration(l.Last.Sub(l.First)))
	}
	return s
}

// Collapse merges entries with identical service, level and message that
// fall within Window of the group's first entry. Returns lines in
// first-occurrence order.
func (d *Deduplicator) Collapse(entries []model.LogEntry) []Line {
	if len(entries) == 0 {
		return nil
	}

	var order []*Line
	groups := make(map[string]*Line)

	for _, e := range entries {
		key := e.Service + "\x00" + e.Level.String() + "\x00" + e.Message

		g, exists := groups[key]
		if exists && absDuration(e.Timestamp.Sub(g.First)) <= d.cfg.Window {
			g.Count++
			if e.Timestamp.After(g.Last) {
				g.Last = e.Timestamp
			}
			if e.Timestamp.Before(g.First) {
				g.First = e.Timestamp
			}
			continue
		}

		// New group: either new key or outside window.
		g = &Line{Entry: e, Count: 1, First: e.Timestamp, Last: e.Timestamp}
		groups[key] = g
		order = append(order, g)
	}

	result := make([]Line, 0, len(order))
	for _, g := range order {
		result = append(result, *g)
	}
	return result
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// formatDuration produces a human-readable short duration string.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm%ds", mins, secs)
}
