package warden

import "time"

// Log is a log entry as seen by the batch fingerprint. Only the timestamp,
// service, level and message take part.
type Log struct {
	Timestamp time.Time
	Level     string // "debug", "info", "warn", "error"; anything else counts as info
	Message   string
	Service   string
	Project   string
}

// Issue references an issue filed outside warden.
type Issue struct {
	Identifier string `json:"identifier"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	Repository string `json:"repository"`
}
