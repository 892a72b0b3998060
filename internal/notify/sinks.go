package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pilab-dev/estate-auth/log"
)

// WriterSink prints notifications as single lines, e.g. for a terminal.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a WriterSink.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

var symbols = map[Kind]string{
	KindSuccess: "✔",
	KindError:   "✖",
	KindInfo:    "ℹ",
}

func (s *WriterSink) Show(_ context.Context, n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbol, ok := symbols[n.Kind]
	if !ok {
		symbol = "•"
	}
	if n.Message == "" {
		fmt.Fprintf(s.w, "%s %s\n", symbol, n.Title)
		return
	}
	fmt.Fprintf(s.w, "%s %s: %s\n", symbol, n.Title, n.Message)
}

// LogSink records notifications in the structured log.
type LogSink struct {
	logger log.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger log.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Show(ctx context.Context, n Notification) {
	fields := map[string]interface{}{
		"kind":       string(n.Kind),
		"title":      n.Title,
		"auth_event": n.AuthEvent,
	}
	if n.Kind == KindError {
		s.logger.Warn(ctx, n.Message, fields)
		return
	}
	s.logger.Debug(ctx, n.Message, fields)
}

// MultiSink fans a notification out to several sinks.
type MultiSink []Sink

func (m MultiSink) Show(ctx context.Context, n Notification) {
	for _, s := range m {
		s.Show(ctx, n)
	}
}
