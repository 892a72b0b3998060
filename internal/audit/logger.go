// Package audit writes an append-only trail of session events as JSON lines.
package audit

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Event represents an audit log event.
type Event struct {
	Timestamp time.Time
	Action    string
	User      string // username or provider email
	Provider  string // identity provider for federated events
	Success   bool
	Error     string // Error message if the action failed
}

// Logger records audit events. A nil *Logger discards them.
type Logger struct {
	zl  zerolog.Logger
	now func() time.Time
}

// New creates an audit logger writing one JSON object per line to w.
func New(w io.Writer) *Logger {
	return &Logger{zl: zerolog.New(w), now: time.Now}
}

// Record writes ev. A zero Timestamp is set to the current time.
func (l *Logger) Record(_ context.Context, ev Event) {
	if l == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.now().UTC()
	}

	e := l.zl.Log().
		Time("timestamp", ev.Timestamp).
		Str("action", ev.Action).
		Bool("success", ev.Success)
	if ev.User != "" {
		e = e.Str("user", ev.User)
	}
	if ev.Provider != "" {
		e = e.Str("provider", ev.Provider)
	}
	if ev.Error != "" {
		e = e.Str("error", ev.Error)
	}
	e.Send()
}
