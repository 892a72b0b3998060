package session_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pilab-dev/estate-auth/client"
	"github.com/pilab-dev/estate-auth/domain"
	serrors "github.com/pilab-dev/estate-auth/errors"
	"github.com/pilab-dev/estate-auth/internal/audit"
	"github.com/pilab-dev/estate-auth/internal/federation"
	mock_federation "github.com/pilab-dev/estate-auth/internal/federation/mock"
	"github.com/pilab-dev/estate-auth/internal/gate"
	"github.com/pilab-dev/estate-auth/internal/notify"
	"github.com/pilab-dev/estate-auth/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// --- Mock Implementations ---

type MockAuthAPI struct {
	mock.Mock
}

func (m *MockAuthAPI) CurrentUser(ctx context.Context) (*domain.Identity, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

func (m *MockAuthAPI) Login(ctx context.Context, creds domain.Credentials) (*domain.Identity, error) {
	args := m.Called(ctx, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

func (m *MockAuthAPI) Register(ctx context.Context, reg domain.Registration) (*domain.Identity, error) {
	args := m.Called(ctx, reg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

func (m *MockAuthAPI) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockAuthAPI) ReconcileFederated(ctx context.Context, assertion domain.FederatedAssertion) (*domain.Identity, error) {
	args := m.Called(ctx, assertion)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu    sync.Mutex
	shown []notify.Notification
}

func (s *recordingSink) Show(_ context.Context, n notify.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = append(s.shown, n)
}

func (s *recordingSink) ofKind(kind notify.Kind) []notify.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notify.Notification
	for _, n := range s.shown {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type fixture struct {
	api   *MockAuthAPI
	clock *fakeClock
	sink  *recordingSink
	store *session.Store
}

func newFixture(t *testing.T, api session.AuthAPI, opts ...session.Option) *fixture {
	t.Helper()
	f := &fixture{clock: newFakeClock(), sink: &recordingSink{}}
	if m, ok := api.(*MockAuthAPI); ok {
		f.api = m
	}
	g := gate.New(2*time.Second,
		gate.WithWindow(domain.OperationRegister, 3*time.Second),
		gate.WithClock(f.clock.Now))
	relay := notify.NewRelay(f.sink, 3*time.Second, notify.WithClock(f.clock.Now))
	f.store = session.NewStore(api, g, relay, opts...)
	return f
}

var (
	creds = domain.Credentials{Username: "jdoe", Password: "hunter2"}
	jdoe  = &domain.Identity{ID: 7, Username: "jdoe", Email: "jdoe@example.com", FullName: "Jane Doe"}
)

func TestStore_FetchCurrent(t *testing.T) {
	ctx := context.Background()

	t.Run("installs identity", func(t *testing.T) {
		api := new(MockAuthAPI)
		api.On("CurrentUser", mock.Anything).Return(jdoe, nil).Once()
		f := newFixture(t, api)

		res := f.store.FetchCurrent(ctx)
		assert.True(t, res.OK)
		snap := f.store.Snapshot()
		assert.Equal(t, jdoe, snap.Identity)
		assert.False(t, snap.IsLoading)
		api.AssertExpectations(t)
	})

	t.Run("401 is anonymous, not an error", func(t *testing.T) {
		api := new(MockAuthAPI)
		api.On("CurrentUser", mock.Anything).Return(nil, serrors.ErrNotAuthenticated).Once()
		f := newFixture(t, api)

		res := f.store.FetchCurrent(ctx)
		assert.True(t, res.OK)
		assert.NoError(t, res.Err)
		snap := f.store.Snapshot()
		assert.Nil(t, snap.Identity)
		assert.Empty(t, snap.LastError)
		assert.Empty(t, f.sink.shown)
	})

	t.Run("other failures set last error", func(t *testing.T) {
		api := new(MockAuthAPI)
		api.On("CurrentUser", mock.Anything).Return(nil, serrors.NewAPIError(http.StatusInternalServerError, "database unavailable")).Once()
		f := newFixture(t, api)

		res := f.store.FetchCurrent(ctx)
		assert.False(t, res.OK)
		snap := f.store.Snapshot()
		assert.Nil(t, snap.Identity)
		assert.Equal(t, "database unavailable", snap.LastError)
	})

	t.Run("loading flag is set while in flight", func(t *testing.T) {
		api := new(MockAuthAPI)
		f := newFixture(t, api)
		var during domain.Session
		api.On("CurrentUser", mock.Anything).Run(func(mock.Arguments) {
			during = f.store.Snapshot()
		}).Return(nil, serrors.ErrNotAuthenticated).Once()

		f.store.FetchCurrent(ctx)
		assert.True(t, during.IsLoading)
		assert.True(t, during.SubmitDisabled())
		assert.False(t, during.IsAuthenticating)
		assert.False(t, f.store.Snapshot().SubmitDisabled())
	})
}

func TestStore_LoginRateLimited(t *testing.T) {
	ctx := context.Background()
	api := new(MockAuthAPI)
	api.On("Login", mock.Anything, creds).Return(jdoe, nil).Once()
	f := newFixture(t, api)

	first := f.store.Login(ctx, creds)
	require.True(t, first.OK)

	f.clock.Advance(500 * time.Millisecond)
	second := f.store.Login(ctx, creds)
	assert.False(t, second.OK)
	assert.ErrorIs(t, second.Err, serrors.ErrRateLimited)

	f.clock.Advance(time.Second)
	third := f.store.Login(ctx, creds)
	assert.ErrorIs(t, third.Err, serrors.ErrRateLimited)

	// Only the first attempt reached the network.
	api.AssertNumberOfCalls(t, "Login", 1)

	errs := f.sink.ofKind(notify.KindError)
	require.Len(t, errs, 2)
	assert.Equal(t, "Too many attempts", errs[0].Title)

	// A throttled attempt leaves the session alone.
	assert.Equal(t, jdoe, f.store.Snapshot().Identity)
	assert.Empty(t, f.store.Snapshot().LastError)
}

func TestStore_LoginRateLimitedWhileFirstIsPending(t *testing.T) {
	ctx := context.Background()
	api := new(MockAuthAPI)
	started := make(chan struct{})
	release := make(chan struct{})
	api.On("Login", mock.Anything, creds).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(jdoe, nil).Once()
	f := newFixture(t, api)

	done := make(chan session.Result)
	go func() { done <- f.store.Login(ctx, creds) }()
	<-started

	f.clock.Advance(100 * time.Millisecond)
	second := f.store.Login(ctx, creds)
	assert.False(t, second.OK)
	assert.ErrorIs(t, second.Err, serrors.ErrRateLimited)

	errs := f.sink.ofKind(notify.KindError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Too many attempts", errs[0].Title)

	close(release)
	assert.True(t, (<-done).OK)
	api.AssertNumberOfCalls(t, "Login", 1)
	assert.Equal(t, jdoe, f.store.Snapshot().Identity)
}

func TestStore_SubmitDisabled(t *testing.T) {
	ctx := context.Background()
	api := new(MockAuthAPI)
	api.On("Login", mock.Anything, creds).Return(jdoe, nil).Once()
	f := newFixture(t, api)

	assert.False(t, f.store.SubmitDisabled(domain.OperationLogin))
	require.True(t, f.store.Login(ctx, creds).OK)

	assert.True(t, f.store.SubmitDisabled(domain.OperationLogin))
	assert.False(t, f.store.SubmitDisabled(domain.OperationRegister))

	f.clock.Advance(2 * time.Second)
	assert.False(t, f.store.SubmitDisabled(domain.OperationLogin))
}

func TestStore_WithoutGateAndRelay(t *testing.T) {
	ctx := context.Background()
	api := new(MockAuthAPI)
	api.On("Login", mock.Anything, creds).Return(jdoe, nil).Twice()
	api.On("Logout", mock.Anything).Return(errors.New("boom")).Once()
	store := session.NewStore(api, nil, nil)

	assert.NotPanics(t, func() {
		require.True(t, store.Login(ctx, creds).OK)
		require.True(t, store.Login(ctx, creds).OK)
		assert.False(t, store.Logout(ctx).OK)
	})
	assert.False(t, store.SubmitDisabled(domain.OperationLogin))
	api.AssertExpectations(t)
}

func TestStore_LoginAcceptedAfterWindowRegardlessOfOutcome(t *testing.T) {
	ctx := context.Background()
	api := new(MockAuthAPI)
	api.On("Login", mock.Anything, creds).Return(nil, serrors.NewAPIError(http.StatusUnauthorized, "Invalid username or password")).Once()
	api.On("Login", mock.Anything, creds).Return(jdoe, nil).Once()
	f := newFixture(t, api)

	failed := f.store.Login(ctx, creds)
	require.False(t, failed.OK)

	f.clock.Advance(2 * time.Second)
	ok := f.store.Login(ctx, creds)
	require.True(t, ok.OK)
	assert.Equal(t, jdoe, ok.Identity)
	assert.Empty(t, f.store.Snapshot().LastError)
	api.AssertExpectations(t)
}

func TestStore_LoginAndRegisterHaveSeparateWindows(t *testing.T) {
	ctx := context.Background()
	reg := domain.Registration{Username: "jdoe", Email: "jdoe@example.com", Password: "hunter2", FullName: "Jane Doe"}

	api := new(MockAuthAPI)
	api.On("Register", mock.Anything, reg).Return(jdoe, nil).Once()
	api.On("Login", mock.Anything, creds).Return(jdoe, nil).Once()
	f := newFixture(t, api)

	require.True(t, f.store.Register(ctx, reg).OK)
	require.True(t, f.store.Login(ctx, creds).OK)

	f.clock.Advance(2500 * time.Millisecond)
	assert.ErrorIs(t, f.store.Register(ctx, reg).Err, serrors.ErrRateLimited)
	api.AssertExpectations(t)
}

func TestStore_LoginFailureSurfacesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid username or password"}`))
	}))
	defer srv.Close()

	c, err := client.New(client.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	f := newFixture(t, c)

	res := f.store.Login(context.Background(), creds)
	assert.False(t, res.OK)

	snap := f.store.Snapshot()
	assert.Equal(t, "Invalid username or password", snap.LastError)
	assert.False(t, snap.IsAuthenticating)
	assert.Nil(t, snap.Identity)

	errs := f.sink.ofKind(notify.KindError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Login failed", errs[0].Title)
	assert.Equal(t, "Invalid username or password", errs[0].Message)
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection reset by peer")
}

func TestStore_LoginSucceedsThroughFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "no-cache", r.Header.Get("Pragma"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":7,"username":"jdoe","email":"jdoe@example.com","fullName":"Jane Doe"}`))
	}))
	defer srv.Close()

	c, err := client.New(client.Config{
		BaseURL:           srv.URL,
		PrimaryTransport:  failingTransport{},
		FallbackTransport: srv.Client().Transport,
	})
	require.NoError(t, err)
	f := newFixture(t, c)

	res := f.store.Login(context.Background(), creds)
	require.True(t, res.OK, "error: %v", res.Err)
	assert.Equal(t, "Jane Doe", res.Identity.FullName)
	assert.Equal(t, int64(7), f.store.Snapshot().Identity.ID)
}

func TestStore_OperationInFlight(t *testing.T) {
	ctx := context.Background()
	api := new(MockAuthAPI)
	started := make(chan struct{})
	release := make(chan struct{})
	api.On("Login", mock.Anything, creds).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(jdoe, nil).Once()
	f := newFixture(t, api)

	done := make(chan session.Result)
	go func() { done <- f.store.Login(ctx, creds) }()
	<-started

	assert.True(t, f.store.Snapshot().IsAuthenticating)
	assert.True(t, f.store.Snapshot().SubmitDisabled())

	res := f.store.Logout(ctx)
	assert.ErrorIs(t, res.Err, serrors.ErrOperationInFlight)
	res = f.store.HandleFederatedAuth(ctx, domain.FederatedAssertion{FirebaseUID: "u", Email: "e@example.com"})
	assert.ErrorIs(t, res.Err, serrors.ErrOperationInFlight)

	// Past the cooldown the gate lets a login through, but the pending one still blocks it.
	f.clock.Advance(2 * time.Second)
	res = f.store.Login(ctx, creds)
	assert.ErrorIs(t, res.Err, serrors.ErrOperationInFlight)
	assert.Empty(t, f.sink.ofKind(notify.KindError))

	close(release)
	assert.True(t, (<-done).OK)
	assert.False(t, f.store.Snapshot().IsAuthenticating)
	api.AssertExpectations(t)
}

func TestStore_LogoutClearsIdentityWhenEverythingFails(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	provider := mock_federation.NewMockProvider(ctrl)
	provider.EXPECT().Name().Return("google").AnyTimes()
	provider.EXPECT().SignOut(gomock.Any()).Return(errors.New("revoke endpoint unreachable"))

	api := new(MockAuthAPI)
	api.On("Login", mock.Anything, creds).Return(jdoe, nil).Once()
	api.On("Logout", mock.Anything).Return(&serrors.TransportError{
		Op:       "logout",
		Primary:  errors.New("dial tcp: connection refused"),
		Fallback: errors.New("dial tcp: connection refused"),
	}).Once()

	bridge := federation.NewBridge(provider, nil)
	f := newFixture(t, api, session.WithFederatedProvider(bridge))

	require.True(t, f.store.Login(ctx, creds).OK)

	res := f.store.Logout(ctx)
	assert.False(t, res.OK)

	snap := f.store.Snapshot()
	assert.Nil(t, snap.Identity)
	assert.False(t, snap.IsAuthenticating)
	assert.Equal(t, "Could not reach the server. Check your connection and try again.", snap.LastError)

	errs := f.sink.ofKind(notify.KindError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Logout failed", errs[0].Title)
	api.AssertExpectations(t)
}

func TestStore_LogoutSuccess(t *testing.T) {
	ctx := context.Background()
	api := new(MockAuthAPI)
	api.On("CurrentUser", mock.Anything).Return(jdoe, nil).Once()
	api.On("Logout", mock.Anything).Return(nil).Once()
	f := newFixture(t, api)

	require.True(t, f.store.FetchCurrent(ctx).OK)
	res := f.store.Logout(ctx)
	assert.True(t, res.OK)
	assert.False(t, f.store.Snapshot().IsAuthenticated())

	successes := f.sink.ofKind(notify.KindSuccess)
	require.Len(t, successes, 1)
	assert.Equal(t, "Logged out", successes[0].Title)
}

func TestStore_FederatedSignInShowsOneSuccess(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	provider := mock_federation.NewMockProvider(ctrl)
	provider.EXPECT().Name().Return("google").AnyTimes()
	provider.EXPECT().SignInInteractive(gomock.Any()).Return(&federation.ProviderUser{
		UID:         "g-123",
		Email:       "jdoe@example.com",
		DisplayName: "Jane D.",
		PhotoURL:    "https://example.com/j.png",
	}, nil)

	api := new(MockAuthAPI)
	api.On("ReconcileFederated", mock.Anything, domain.FederatedAssertion{
		FirebaseUID: "g-123",
		Email:       "jdoe@example.com",
		DisplayName: "Jane D.",
		PhotoURL:    "https://example.com/j.png",
	}).Return(&domain.Identity{ID: 9, Username: "jdoe", Email: "jdoe@example.com", FullName: "Jane Doe", FirebaseUID: "g-123"}, nil).Once()

	f := newFixture(t, api, session.WithFederatedProvider(federation.NewBridge(provider, nil)))

	res := f.store.SignInWithProvider(ctx)
	require.True(t, res.OK, "error: %v", res.Err)
	assert.Equal(t, "g-123", f.store.Snapshot().Identity.FirebaseUID)

	// Provider sign-in and server reconciliation both succeed; the user sees one confirmation.
	successes := f.sink.ofKind(notify.KindSuccess)
	require.Len(t, successes, 1)
	assert.Equal(t, "Authentication successful", successes[0].Title)
	api.AssertExpectations(t)
}

func TestStore_FederatedSignInReconcileFailureShowsNoSuccess(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	provider := mock_federation.NewMockProvider(ctrl)
	provider.EXPECT().Name().Return("google").AnyTimes()
	provider.EXPECT().SignInInteractive(gomock.Any()).Return(&federation.ProviderUser{UID: "g-123", Email: "jdoe@example.com"}, nil)

	api := new(MockAuthAPI)
	api.On("ReconcileFederated", mock.Anything, mock.AnythingOfType("domain.FederatedAssertion")).
		Return(nil, serrors.NewAPIError(http.StatusInternalServerError, "Account is locked")).Once()
	f := newFixture(t, api, session.WithFederatedProvider(federation.NewBridge(provider, nil)))

	res := f.store.SignInWithProvider(ctx)
	assert.False(t, res.OK)
	assert.Empty(t, f.sink.ofKind(notify.KindSuccess))

	errs := f.sink.ofKind(notify.KindError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Authentication failed", errs[0].Title)
	assert.Equal(t, "Account is locked", errs[0].Message)
	assert.Nil(t, f.store.Snapshot().Identity)
	api.AssertExpectations(t)
}

func TestStore_TwoAuthSuccessesInsideWindow(t *testing.T) {
	ctx := context.Background()
	api := new(MockAuthAPI)
	api.On("Login", mock.Anything, creds).Return(jdoe, nil).Times(3)
	f := newFixture(t, api)

	require.True(t, f.store.Login(ctx, creds).OK)
	f.clock.Advance(2 * time.Second) // past the gate, inside the notification window
	require.True(t, f.store.Login(ctx, creds).OK)
	assert.Len(t, f.sink.ofKind(notify.KindSuccess), 1)

	f.clock.Advance(3 * time.Second)
	require.True(t, f.store.Login(ctx, creds).OK)
	assert.Len(t, f.sink.ofKind(notify.KindSuccess), 2)
}

func TestStore_FederatedSignInProviderFailure(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	provider := mock_federation.NewMockProvider(ctrl)
	provider.EXPECT().Name().Return("google").AnyTimes()
	provider.EXPECT().SignInInteractive(gomock.Any()).
		Return(nil, &federation.ProviderError{Code: federation.CodePopupBlocked})

	api := new(MockAuthAPI)
	f := newFixture(t, api, session.WithFederatedProvider(federation.NewBridge(provider, nil)))

	res := f.store.SignInWithProvider(ctx)
	assert.False(t, res.OK)
	var perr *federation.ProviderError
	require.ErrorAs(t, res.Err, &perr)
	assert.Equal(t, federation.CodePopupBlocked, perr.Code)
	assert.Equal(t, federation.MessageForCode(federation.CodePopupBlocked), f.store.Snapshot().LastError)
	api.AssertNotCalled(t, "ReconcileFederated", mock.Anything, mock.Anything)
}

func TestStore_SignInWithProviderNotConfigured(t *testing.T) {
	f := newFixture(t, new(MockAuthAPI))
	res := f.store.SignInWithProvider(context.Background())
	assert.ErrorIs(t, res.Err, federation.ErrProviderMisconfigured)
}

func TestStore_ResumePendingSignIn(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	provider := mock_federation.NewMockProvider(ctrl)
	provider.EXPECT().Name().Return("google").AnyTimes()
	provider.EXPECT().RedirectResult(gomock.Any()).Return(&federation.ProviderUser{UID: "g-1", Email: "jdoe@example.com"}, nil).Times(1)

	api := new(MockAuthAPI)
	api.On("ReconcileFederated", mock.Anything, mock.AnythingOfType("domain.FederatedAssertion")).Return(jdoe, nil).Once()
	f := newFixture(t, api, session.WithFederatedProvider(federation.NewBridge(provider, nil)))

	res := f.store.ResumePendingSignIn(ctx)
	require.True(t, res.OK)
	assert.Equal(t, jdoe, res.Identity)

	// The redirect result is consumed once; later calls are no-ops.
	res = f.store.ResumePendingSignIn(ctx)
	assert.True(t, res.OK)
	assert.Nil(t, res.Identity)
	assert.False(t, f.store.Snapshot().IsAuthenticating)
	api.AssertExpectations(t)
}

func TestStore_HandleFederatedAuthRejectsIncompleteAssertion(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name      string
		assertion domain.FederatedAssertion
	}{
		{name: "missing uid", assertion: domain.FederatedAssertion{Email: "jdoe@example.com"}},
		{name: "missing email", assertion: domain.FederatedAssertion{FirebaseUID: "g-1"}},
		{name: "blank uid", assertion: domain.FederatedAssertion{FirebaseUID: "  ", Email: "jdoe@example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(MockAuthAPI)
			f := newFixture(t, api)

			res := f.store.HandleFederatedAuth(ctx, tt.assertion)
			assert.False(t, res.OK)
			assert.ErrorIs(t, res.Err, serrors.ErrInvalidAssertion)
			assert.NotEmpty(t, f.store.Snapshot().LastError)
			assert.False(t, f.store.Snapshot().IsAuthenticating)
			api.AssertNotCalled(t, "ReconcileFederated", mock.Anything, mock.Anything)
			assert.Len(t, f.sink.ofKind(notify.KindError), 1)
		})
	}
}

func TestStore_HandleFederatedAuthServerFailure(t *testing.T) {
	api := new(MockAuthAPI)
	api.On("ReconcileFederated", mock.Anything, mock.Anything).
		Return(nil, serrors.NewAPIError(http.StatusConflict, "Email already linked to another account")).Once()
	f := newFixture(t, api)

	res := f.store.HandleFederatedAuth(context.Background(), domain.FederatedAssertion{FirebaseUID: "g-1", Email: "jdoe@example.com"})
	assert.False(t, res.OK)
	assert.Equal(t, "Email already linked to another account", f.store.Snapshot().LastError)
}

func TestStore_FederatedIsNotGated(t *testing.T) {
	ctx := context.Background()
	assertion := domain.FederatedAssertion{FirebaseUID: "g-1", Email: "jdoe@example.com"}
	api := new(MockAuthAPI)
	api.On("ReconcileFederated", mock.Anything, assertion).Return(jdoe, nil).Twice()
	f := newFixture(t, api)

	assert.True(t, f.store.HandleFederatedAuth(ctx, assertion).OK)
	assert.True(t, f.store.HandleFederatedAuth(ctx, assertion).OK)
	api.AssertExpectations(t)
}

func TestStore_AuditTrail(t *testing.T) {
	ctx := context.Background()
	api := new(MockAuthAPI)
	api.On("Login", mock.Anything, creds).Return(jdoe, nil).Once()
	api.On("Logout", mock.Anything).Return(serrors.NewAPIError(http.StatusInternalServerError, "")).Once()

	var buf bytes.Buffer
	f := newFixture(t, api, session.WithAudit(audit.New(&buf)))

	require.True(t, f.store.Login(ctx, creds).OK)
	assert.ErrorIs(t, f.store.Login(ctx, creds).Err, serrors.ErrRateLimited)
	assert.False(t, f.store.Logout(ctx).OK)

	out := buf.String()
	assert.Contains(t, out, `"action":"login","success":true,"user":"jdoe"`)
	assert.Contains(t, out, `"action":"login","success":false,"error":"too many attempts`)
	assert.Contains(t, out, `"action":"logout","success":false,"error":"500 Internal Server Error"`)
}
