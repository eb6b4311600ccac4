package engine

import (
	"regexp"
	"sync"
	"time"
)

// DefaultErrorLogSize bounds the recent-error ring.
const DefaultErrorLogSize = 50

// ErrorEntry is one recorded upstream failure. Details have their URL
// query strings redacted, coordinates in query parameters do not
// belong in diagnostics output.
type ErrorEntry struct {
	Time     time.Time `json:"time"`
	Category string    `json:"category"`
	Detail   string    `json:"detail"`
}

// errorLog keeps the most recent N entries, newest first on read.
type errorLog struct {
	mu      sync.Mutex
	entries []ErrorEntry
	max     int
}

func newErrorLog(max int) *errorLog {
	if max <= 0 {
		max = DefaultErrorLogSize
	}
	return &errorLog{max: max}
}

var urlQueryPattern = regexp.MustCompile(`\?[^"'\s]*`)

func redactQueries(s string) string {
	return urlQueryPattern.ReplaceAllString(s, "?[redacted]")
}

func (l *errorLog) add(category string, err error) {
	if err == nil {
		return
	}
	entry := ErrorEntry{
		Time:     time.Now(),
		Category: category,
		Detail:   redactQueries(err.Error()),
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	l.mu.Unlock()
}

func (l *errorLog) recent() []ErrorEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]ErrorEntry, len(l.entries))
	for i, e := range l.entries {
		out[len(out)-1-i] = e
	}
	return out
}
