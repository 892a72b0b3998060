// Package notify surfaces session outcomes to the user. Authentication success
// confirmations are de-duplicated inside a cooldown window so that overlapping
// flows (provider sign-in, then server reconciliation) produce one message.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/pilab-dev/estate-auth/internal/metrics"
)

// Kind classifies a notification.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Notification is one user-facing message.
type Notification struct {
	Kind    Kind
	Title   string
	Message string

	// AuthEvent marks a success confirmation of an authentication event.
	// Only those are subject to the cooldown.
	AuthEvent bool
}

// Sink displays notifications.
type Sink interface {
	Show(ctx context.Context, n Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification)

func (f SinkFunc) Show(ctx context.Context, n Notification) { f(ctx, n) }

// Relay forwards notifications to a sink, suppressing duplicate auth successes.
type Relay struct {
	sink    Sink
	window  time.Duration
	now     func() time.Time
	metrics *metrics.Metrics

	mu             sync.Mutex
	lastAuthNotice time.Time
}

// Option configures a Relay.
type Option func(*Relay)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

// WithMetrics records shown and suppressed notifications.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// NewRelay creates a Relay with the given auth-success cooldown window.
func NewRelay(sink Sink, window time.Duration, opts ...Option) *Relay {
	r := &Relay{sink: sink, window: window, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Notify shows n unless it is an auth success inside the cooldown window.
// It reports whether the notification was shown. A nil Relay shows nothing.
func (r *Relay) Notify(ctx context.Context, n Notification) bool {
	if r == nil {
		return false
	}
	if n.Kind == KindSuccess && n.AuthEvent && !r.claimAuthSlot() {
		r.metrics.ObserveNotification(string(n.Kind), false)
		return false
	}
	r.metrics.ObserveNotification(string(n.Kind), true)
	if r.sink != nil {
		r.sink.Show(ctx, n)
	}
	return true
}

// Success is a shorthand for a non-auth success notification.
func (r *Relay) Success(ctx context.Context, title, message string) bool {
	return r.Notify(ctx, Notification{Kind: KindSuccess, Title: title, Message: message})
}

// AuthSuccess is a shorthand for an authentication success confirmation.
func (r *Relay) AuthSuccess(ctx context.Context, title, message string) bool {
	return r.Notify(ctx, Notification{Kind: KindSuccess, Title: title, Message: message, AuthEvent: true})
}

// Error is a shorthand for an error notification. Errors are never suppressed.
func (r *Relay) Error(ctx context.Context, title, message string) bool {
	return r.Notify(ctx, Notification{Kind: KindError, Title: title, Message: message})
}

// Info is a shorthand for an informational notification.
func (r *Relay) Info(ctx context.Context, title, message string) bool {
	return r.Notify(ctx, Notification{Kind: KindInfo, Title: title, Message: message})
}

func (r *Relay) claimAuthSlot() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if !r.lastAuthNotice.IsZero() && now.Sub(r.lastAuthNotice) < r.window {
		return false
	}
	r.lastAuthNotice = now
	return true
}
