package federation

import (
	"context"
	"sync"

	"github.com/pilab-dev/estate-auth/log"
)

// Bridge wraps a Provider for the session layer. It normalises failures into
// ProviderErrors, checks for a pending redirect result exactly once, and fans
// provider sign-in state changes out to diagnostic listeners. The provider
// state is never the source of truth for the application session.
type Bridge struct {
	provider Provider
	logger   log.Logger

	redirectOnce sync.Once

	mu        sync.Mutex
	current   *ProviderUser
	listeners map[uint64]func(*ProviderUser)
	nextID    uint64
	closed    bool
}

// NewBridge creates a Bridge around provider.
func NewBridge(provider Provider, logger log.Logger) *Bridge {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Bridge{
		provider:  provider,
		logger:    logger.With(map[string]interface{}{"component": "federation", "provider": provider.Name()}),
		listeners: make(map[uint64]func(*ProviderUser)),
	}
}

// ProviderName returns the wrapped provider's name.
func (b *Bridge) ProviderName() string {
	return b.provider.Name()
}

// CheckRedirectResult asks the provider for a pending redirect sign-in result.
// Only the first call reaches the provider; later calls return (nil, nil).
func (b *Bridge) CheckRedirectResult(ctx context.Context) (*ProviderUser, error) {
	var (
		user *ProviderUser
		err  error
	)
	b.redirectOnce.Do(func() {
		user, err = b.provider.RedirectResult(ctx)
	})
	if err != nil {
		perr := AsProviderError(err)
		b.logger.Warn(ctx, "redirect sign-in failed", map[string]interface{}{"code": perr.Code, "error": err.Error()})
		return nil, perr
	}
	if user != nil {
		b.logger.Info(ctx, "redirect sign-in completed", map[string]interface{}{"email": user.Email})
		b.setCurrent(user)
	}
	return user, nil
}

// SignInWithPopup runs the provider's interactive sign-in.
// Failures are returned as *ProviderError.
func (b *Bridge) SignInWithPopup(ctx context.Context) (*ProviderUser, error) {
	user, err := b.provider.SignInInteractive(ctx)
	if err != nil {
		perr := AsProviderError(err)
		b.logger.Warn(ctx, "interactive sign-in failed", map[string]interface{}{"code": perr.Code, "error": err.Error()})
		return nil, perr
	}
	if user == nil {
		return nil, &ProviderError{Code: CodeInternalError, Err: ErrFetchUserInfoFailed}
	}
	b.logger.Info(ctx, "interactive sign-in completed", map[string]interface{}{"email": user.Email})
	b.setCurrent(user)
	return user, nil
}

// SignOut signs out of the provider. Local provider state is cleared even when
// the provider call fails.
func (b *Bridge) SignOut(ctx context.Context) error {
	err := b.provider.SignOut(ctx)
	b.setCurrent(nil)
	return err
}

// CurrentUser returns the provider-side user, or nil when signed out.
func (b *Bridge) CurrentUser() *ProviderUser {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyUser(b.current)
}

// OnStateChanged registers fn for provider sign-in state changes. fn is called
// once immediately with the current state, then on every change, until the
// subscription is cancelled or the bridge is closed.
func (b *Bridge) OnStateChanged(fn func(*ProviderUser)) *Subscription {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return &Subscription{}
	}
	b.nextID++
	id := b.nextID
	b.listeners[id] = fn
	current := copyUser(b.current)
	b.mu.Unlock()

	fn(current)
	return &Subscription{bridge: b, id: id}
}

// Close tears down every subscription. The bridge stays usable for sign-in.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	clear(b.listeners)
}

func (b *Bridge) setCurrent(user *ProviderUser) {
	b.mu.Lock()
	b.current = copyUser(user)
	listeners := make([]func(*ProviderUser), 0, len(b.listeners))
	for _, fn := range b.listeners {
		listeners = append(listeners, fn)
	}
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(copyUser(user))
	}
}

func (b *Bridge) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, id)
}

// Subscription is a cancellable handle for a state listener.
type Subscription struct {
	bridge *Bridge
	id     uint64
	once   sync.Once
}

// Unsubscribe stops delivery. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bridge == nil {
		return
	}
	s.once.Do(func() {
		s.bridge.unsubscribe(s.id)
	})
}

func copyUser(u *ProviderUser) *ProviderUser {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
