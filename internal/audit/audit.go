package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Result is the outcome recorded for one access attempt.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Entry is one immutable access record.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	User      string    `json:"user"`
	Resource  string    `json:"resource"`
	Result    Result    `json:"result"`
	Details   string    `json:"details,omitempty"`
}

// Succeeded reports whether the entry records a successful attempt.
func (e Entry) Succeeded() bool {
	return e.Result == ResultSuccess
}

// Sink receives appended audit entries.
type Sink interface {
	Emit(ctx context.Context, entry Entry)
}

// NoOpSink drops audit entries.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Entry) {}

// MultiSink fans an entry out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, entry Entry) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, entry)
		}
	}
}

// ChannelSink writes audit entries into a buffered channel.
type ChannelSink struct {
	entries chan Entry
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		entries: make(chan Entry, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, entry Entry) {
	select {
	case s.entries <- entry:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Entries() <-chan Entry {
	return s.entries
}

// JSONWriterSink writes one JSON object per line. Free-text fields are sanitized so a
// crafted path or error message cannot forge extra lines.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, entry Entry) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(SanitizeEntry(entry))
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
