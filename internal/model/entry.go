package model

import (
	"strings"
	"time"
)

// Level is a normalized log level. Levels are ordered: Debug < Info < Warn < Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(b []byte) error {
	*l = ParseLevel(string(b))
	return nil
}

// ParseLevel maps a provider level string to a Level.
// Unknown strings map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error", "err", "fatal", "critical", "panic":
		return LevelError
	default:
		return LevelInfo
	}
}

// LogEntry is a single log line produced by a connector. Entries are
// immutable once produced; the cycle only reads them.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Service   string         `json:"service"`
	Project   string         `json:"project"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Partition groups entries by project. Group order follows the first
// appearance of each project and entries keep their arrival order.
func Partition(entries []LogEntry) (order []string, groups map[string][]LogEntry) {
	groups = make(map[string][]LogEntry)
	for _, e := range entries {
		if _, ok := groups[e.Project]; !ok {
			order = append(order, e.Project)
		}
		groups[e.Project] = append(groups[e.Project], e)
	}
	return order, groups
}

// CountLevels returns the number of error- and warn-level entries.
func CountLevels(entries []LogEntry) (errors, warnings int) {
	for _, e := range entries {
		switch e.Level {
		case LevelError:
			errors++
		case LevelWarn:
			warnings++
		}
	}
	return errors, warnings
}
