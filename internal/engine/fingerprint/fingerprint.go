// Package fingerprint derives stable content keys for log batches and
// error-pattern occurrences.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/hejijunhao/warden/internal/model"
)

const (
	DefaultMessagePrefix = 100
	DefaultBucket        = 5 * time.Minute

	separator = "\x1f"
)

// Fingerprint is a SHA-256 digest.
type Fingerprint [sha256.Size]byte

// String returns the lowercase hex encoding.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Options controls log-event fingerprinting. Zero values select defaults.
type Options struct {
	MessagePrefix int           // runes of the message kept (default 100)
	Bucket        time.Duration // timestamp flooring window (default 5m)
}

func (o Options) withDefaults() Options {
	if o.MessagePrefix <= 0 {
		o.MessagePrefix = DefaultMessagePrefix
	}
	if o.Bucket <= 0 {
		o.Bucket = DefaultBucket
	}
	return o
}

// tuple is the bucketed projection of one entry. Field order is the sort order.
type tuple struct {
	Bucket  int64  `json:"b"`
	Service string `json:"s"`
	Level   string `json:"l"`
	Message string `json:"m"`
}

// LogEvent fingerprints a batch. Batches that are equal as multisets after
// bucketing produce the same fingerprint regardless of input order.
func LogEvent(batch []model.LogEntry, opts Options) Fingerprint {
	opts = opts.withDefaults()

	tuples := make([]tuple, len(batch))
	for i, e := range batch {
		tuples[i] = tuple{
			Bucket:  e.Timestamp.UTC().Truncate(opts.Bucket).Unix(),
			Service: e.Service,
			Level:   e.Level.String(),
			Message: prefix(e.Message, opts.MessagePrefix),
		}
	}
	sort.Slice(tuples, func(i, j int) bool {
		a, b := tuples[i], tuples[j]
		if a.Bucket != b.Bucket {
			return a.Bucket < b.Bucket
		}
		if a.Service != b.Service {
			return a.Service < b.Service
		}
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		return a.Message < b.Message
	})

	// Marshalling a slice of flat structs cannot fail.
	data, _ := json.Marshal(tuples)
	return sha256.Sum256(data)
}

// Issue fingerprints one error pattern of one service in one project.
// The pattern is expected to be normalized already.
func Issue(project, service, pattern string) Fingerprint {
	return sha256.Sum256([]byte(project + separator + service + separator + pattern))
}

// prefix returns the first n runes of the NFC form of s.
func prefix(s string, n int) string {
	s = norm.NFC.String(s)
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
