package logbuf

import (
	"log/slog"
	"sync"
	"time"
)

// Entry is one captured log record.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Ring holds the most recent log entries in a fixed-size circular buffer.
// It backs the daemon's log inspection endpoint.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	filled  bool
}

// NewRing creates a ring that retains up to capacity entries.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{entries: make([]Entry, capacity)}
}

// Add records an entry, evicting the oldest when full.
func (r *Ring) Add(e Entry) {
	r.mu.Lock()
	r.entries[r.next] = e
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.filled = true
	}
	r.mu.Unlock()
}

// Recent returns entries at or above minLevel recorded since the given time,
// oldest first. A zero since means no time filter; limit <= 0 means no cap.
// When limit trims the result, the newest entries are kept.
func (r *Ring) Recent(since time.Time, minLevel slog.Level, limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	oldest := 0
	count := r.next
	if r.filled {
		oldest = r.next
		count = len(r.entries)
	}

	var out []Entry
	for i := 0; i < count; i++ {
		e := r.entries[(oldest+i)%len(r.entries)]
		if !since.IsZero() && e.Time.Before(since) {
			continue
		}
		if levelOf(e.Level) < minLevel {
			continue
		}
		out = append(out, e)
	}

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func levelOf(s string) slog.Level {
	switch s {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
