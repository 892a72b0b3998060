// Package gate enforces a minimum interval between credential submissions of
// the same kind. It is a fixed window over the most recent accepted attempt,
// not a token bucket: rejected attempts do not move the window.
package gate

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pilab-dev/estate-auth/domain"
)

// Gate decides whether a submission may proceed.
type Gate struct {
	mu       sync.Mutex
	windows  map[domain.OperationKind]time.Duration
	fallback time.Duration
	attempts *ttlcache.Cache[domain.OperationKind, time.Time]
	store    AttemptStore
	now      func() time.Time
}

// AttemptStore keeps accepted attempts outside the process, so the window
// also holds across separate invocations of a short-lived program.
type AttemptStore interface {
	LastAttempt(kind domain.OperationKind) (time.Time, bool)
	RecordAttempt(kind domain.OperationKind, at time.Time, window time.Duration)
}

// Option configures a Gate.
type Option func(*Gate)

// WithWindow overrides the cooldown for one operation kind.
func WithWindow(kind domain.OperationKind, window time.Duration) Option {
	return func(g *Gate) {
		g.windows[kind] = window
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// WithStore persists accepted attempts in store and consults it when the
// in-memory record is empty.
func WithStore(store AttemptStore) Option {
	return func(g *Gate) {
		g.store = store
	}
}

// New creates a Gate using window for every kind without an explicit override.
func New(window time.Duration, opts ...Option) *Gate {
	g := &Gate{
		windows:  make(map[domain.OperationKind]time.Duration),
		fallback: window,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	// Entries only need to outlive the longest window; the decision itself
	// compares recorded timestamps.
	ttl := window
	for _, w := range g.windows {
		if w > ttl {
			ttl = w
		}
	}
	g.attempts = ttlcache.New[domain.OperationKind, time.Time](
		ttlcache.WithTTL[domain.OperationKind, time.Time](ttl),
		ttlcache.WithDisableTouchOnHit[domain.OperationKind, time.Time](),
	)
	return g
}

// Window returns the cooldown applied to kind.
func (g *Gate) Window(kind domain.OperationKind) time.Duration {
	if w, ok := g.windows[kind]; ok {
		return w
	}
	return g.fallback
}

// Allow is AllowAt with the gate's clock.
func (g *Gate) Allow(kind domain.OperationKind) bool {
	return g.AllowAt(kind, g.now())
}

// AllowAt accepts the attempt and records its timestamp, or rejects it when the
// previous accepted attempt of the same kind is within the window. The check
// and the record are atomic, so a double submission racing the first call's
// network round trip is rejected.
func (g *Gate) AllowAt(kind domain.OperationKind, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.lastAttemptLocked(kind); ok && now.Sub(last) < g.Window(kind) {
		return false
	}
	g.attempts.Set(kind, now, ttlcache.DefaultTTL)
	if g.store != nil {
		g.store.RecordAttempt(kind, now, g.Window(kind))
	}
	return true
}

// RetryAfter reports how long until kind is accepted again; zero when it is
// accepted now.
func (g *Gate) RetryAfter(kind domain.OperationKind) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	last, ok := g.lastAttemptLocked(kind)
	if !ok {
		return 0
	}
	remaining := g.Window(kind) - g.now().Sub(last)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (g *Gate) lastAttemptLocked(kind domain.OperationKind) (time.Time, bool) {
	if item := g.attempts.Get(kind); item != nil {
		return item.Value(), true
	}
	if g.store == nil {
		return time.Time{}, false
	}
	last, ok := g.store.LastAttempt(kind)
	if ok {
		g.attempts.Set(kind, last, ttlcache.DefaultTTL)
	}
	return last, ok
}
