package audit

import (
	"context"

	"github.com/hashicorp/go-hclog"
)

// LoggerSink mirrors audit entries to a structured logger: successes at Info, failures
// at Warn. All free-text values are sanitized before they reach the logger.
type LoggerSink struct {
	logger hclog.Logger
}

func NewLoggerSink(logger hclog.Logger) *LoggerSink {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &LoggerSink{logger: logger.Named("audit")}
}

func (s *LoggerSink) Emit(_ context.Context, entry Entry) {
	if s == nil {
		return
	}
	safe := SanitizeEntry(entry)

	args := []interface{}{
		"operation", safe.Operation,
		"user", safe.User,
		"resource", safe.Resource,
		"result", string(safe.Result),
	}
	if safe.Details != "" {
		args = append(args, "details", safe.Details)
	}

	if entry.Succeeded() {
		s.logger.Info("access", args...)
		return
	}
	s.logger.Warn("access", args...)
}
