package audit

import (
	"context"
	"sync"
)

// DefaultMaxEntries is the default retention cap of a Log.
const DefaultMaxEntries = 10000

// Log is a bounded, insertion-ordered audit record.
type Log struct {
	mu       sync.RWMutex
	entries  []Entry
	max      int
	observer Sink
}

// NewLog creates a log retaining at most maxEntries; non-positive values use
// DefaultMaxEntries. observer may be nil.
func NewLog(maxEntries int, observer Sink) *Log {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if observer == nil {
		observer = NoOpSink{}
	}
	return &Log{
		entries:  make([]Entry, 0, min(maxEntries, 256)),
		max:      maxEntries,
		observer: observer,
	}
}

// Append records entry, evicting the oldest entries past the cap, then notifies the
// observer outside the lock.
func (l *Log) Append(ctx context.Context, entry Entry) {
	if l == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if over := len(l.entries) - l.max; over > 0 {
		// FIFO eviction.
		n := copy(l.entries, l.entries[over:])
		clear(l.entries[n:])
		l.entries = l.entries[:n]
	}
	l.mu.Unlock()

	l.observer.Emit(ctx, entry)
}

// Read returns the most recent limit entries oldest-first, or every entry when
// limit <= 0. The returned slice is an independent copy.
func (l *Log) Read(limit int) []Entry {
	if l == nil {
		return nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	start := 0
	if limit > 0 && limit < len(l.entries) {
		start = len(l.entries) - limit
	}
	out := make([]Entry, len(l.entries)-start)
	copy(out, l.entries[start:])
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Cap returns the retention cap.
func (l *Log) Cap() int {
	if l == nil {
		return 0
	}
	return l.max
}

// Clear drops every retained entry.
func (l *Log) Clear() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:0:0]
}
