// Package session owns the client-side authentication session: who is signed
// in, whether a fetch or sign-in is in flight, and the last failure. Every
// operation catches its own failures, records them, notifies the user and
// returns a Result. Nothing panics or leaks an error past this boundary.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pilab-dev/estate-auth/domain"
	serrors "github.com/pilab-dev/estate-auth/errors"
	"github.com/pilab-dev/estate-auth/internal/audit"
	"github.com/pilab-dev/estate-auth/internal/federation"
	"github.com/pilab-dev/estate-auth/internal/gate"
	"github.com/pilab-dev/estate-auth/internal/metrics"
	"github.com/pilab-dev/estate-auth/internal/notify"
	"github.com/pilab-dev/estate-auth/log"
	"github.com/pilab-dev/estate-auth/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AuthAPI is the remote authentication API. *client.AuthClient implements it.
type AuthAPI interface {
	CurrentUser(ctx context.Context) (*domain.Identity, error)
	Login(ctx context.Context, creds domain.Credentials) (*domain.Identity, error)
	Register(ctx context.Context, reg domain.Registration) (*domain.Identity, error)
	Logout(ctx context.Context) error
	ReconcileFederated(ctx context.Context, assertion domain.FederatedAssertion) (*domain.Identity, error)
}

// FederatedProvider is the external identity provider as seen by the store.
// *federation.Bridge implements it.
type FederatedProvider interface {
	ProviderName() string
	SignInWithPopup(ctx context.Context) (*federation.ProviderUser, error)
	CheckRedirectResult(ctx context.Context) (*federation.ProviderUser, error)
	SignOut(ctx context.Context) error
}

// Result is the outcome of a store operation.
type Result struct {
	OK       bool
	Identity *domain.Identity
	Err      error
}

// Store is the session context object shared by every consumer.
type Store struct {
	api       AuthAPI
	gate      *gate.Gate
	relay     *notify.Relay
	federated FederatedProvider
	logger    log.Logger
	metrics   *metrics.Metrics
	audit     *audit.Logger

	mu      sync.Mutex
	session domain.Session
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger log.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithMetrics records attempt outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithAudit records every authentication outcome in an audit trail.
func WithAudit(a *audit.Logger) Option {
	return func(s *Store) { s.audit = a }
}

// WithFederatedProvider enables provider sign-in and provider sign-out on logout.
func WithFederatedProvider(p FederatedProvider) Option {
	return func(s *Store) { s.federated = p }
}

// NewStore creates a Store. The gate throttles login and register submissions,
// the relay shows outcomes. Either may be nil: a nil gate never throttles and
// a nil relay shows nothing.
func NewStore(api AuthAPI, g *gate.Gate, relay *notify.Relay, opts ...Option) *Store {
	s := &Store{
		api:    api,
		gate:   g,
		relay:  relay,
		logger: log.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(map[string]interface{}{"component": "session"})
	return s
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Clone()
}

// SubmitDisabled reports whether a form for op should be disabled: another
// operation is in flight, or op is still inside its cooldown window.
func (s *Store) SubmitDisabled(op domain.OperationKind) bool {
	if s.Snapshot().SubmitDisabled() {
		return true
	}
	return s.gate != nil && s.gate.RetryAfter(op) > 0
}

// FetchCurrent loads the signed-in identity from the server. An anonymous
// caller is not an error.
func (s *Store) FetchCurrent(ctx context.Context) Result {
	ctx, span := startSpan(ctx, domain.OperationFetch)
	defer span.End()

	s.mu.Lock()
	s.session.IsLoading = true
	s.mu.Unlock()

	identity, err := s.api.CurrentUser(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.IsLoading = false

	switch {
	case err == nil:
		s.session.Identity = identity.Clone()
		s.session.LastError = ""
		s.metrics.ObserveAttempt(string(domain.OperationFetch), true)
		return Result{OK: true, Identity: identity.Clone()}
	case errors.Is(err, serrors.ErrNotAuthenticated):
		s.session.Identity = nil
		s.metrics.ObserveAttempt(string(domain.OperationFetch), true)
		return Result{OK: true}
	default:
		s.session.Identity = nil
		s.session.LastError = serrors.UserMessage(err)
		s.logger.Warn(ctx, "failed to fetch current user", map[string]interface{}{"error": err.Error()})
		recordSpanError(span, err)
		s.metrics.ObserveAttempt(string(domain.OperationFetch), false)
		return Result{Err: err}
	}
}

// Login submits credentials. Attempts inside the login cooldown are rejected
// without touching the network.
func (s *Store) Login(ctx context.Context, creds domain.Credentials) Result {
	ctx, span := startSpan(ctx, domain.OperationLogin)
	defer span.End()

	if res, ok := s.begin(ctx, domain.OperationLogin, true); !ok {
		recordSpanError(span, res.Err)
		return res
	}

	identity, err := s.api.Login(ctx, creds)
	if err != nil {
		return s.fail(ctx, span, domain.OperationLogin, "Login failed", err)
	}

	s.succeed(ctx, domain.OperationLogin, identity)
	s.relay.AuthSuccess(ctx, "Login successful", fmt.Sprintf("Welcome back, %s!", identity.DisplayName()))
	return Result{OK: true, Identity: identity.Clone()}
}

// Register creates an account and signs it in. Shares the gate semantics of Login
// with its own window.
func (s *Store) Register(ctx context.Context, reg domain.Registration) Result {
	ctx, span := startSpan(ctx, domain.OperationRegister)
	defer span.End()

	if res, ok := s.begin(ctx, domain.OperationRegister, true); !ok {
		recordSpanError(span, res.Err)
		return res
	}

	identity, err := s.api.Register(ctx, reg)
	if err != nil {
		return s.fail(ctx, span, domain.OperationRegister, "Registration failed", err)
	}

	s.succeed(ctx, domain.OperationRegister, identity)
	s.relay.AuthSuccess(ctx, "Registration successful", fmt.Sprintf("Welcome aboard, %s!", identity.DisplayName()))
	return Result{OK: true, Identity: identity.Clone()}
}

// Logout signs out of the provider (best effort) and the server. The local
// identity is cleared whatever the outcome so the user can sign in again.
func (s *Store) Logout(ctx context.Context) Result {
	ctx, span := startSpan(ctx, domain.OperationLogout)
	defer span.End()

	if res, ok := s.begin(ctx, domain.OperationLogout, false); !ok {
		recordSpanError(span, res.Err)
		return res
	}

	if s.federated != nil {
		if err := s.federated.SignOut(ctx); err != nil {
			s.logger.Warn(ctx, "provider sign-out failed, continuing with server logout", map[string]interface{}{
				"provider": s.federated.ProviderName(),
				"error":    err.Error(),
			})
		}
	}

	err := s.api.Logout(ctx)

	s.mu.Lock()
	s.session.Identity = nil
	s.session.IsAuthenticating = false
	if err != nil {
		s.session.LastError = serrors.UserMessage(err)
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn(ctx, "server logout failed, local session cleared", map[string]interface{}{"error": err.Error()})
		recordSpanError(span, err)
		s.metrics.ObserveAttempt(string(domain.OperationLogout), false)
		s.audit.Record(ctx, audit.Event{Action: string(domain.OperationLogout), Error: err.Error()})
		s.relay.Error(ctx, "Logout failed", serrors.UserMessage(err))
		return Result{Err: err}
	}

	s.logger.Info(ctx, "logged out")
	s.metrics.ObserveAttempt(string(domain.OperationLogout), true)
	s.audit.Record(ctx, audit.Event{Action: string(domain.OperationLogout), Success: true})
	s.relay.Success(ctx, "Logged out", "You have been successfully logged out.")
	return Result{OK: true}
}

// HandleFederatedAuth reconciles a provider identity with the server. An
// assertion without provider user id or email is rejected before any request.
func (s *Store) HandleFederatedAuth(ctx context.Context, assertion domain.FederatedAssertion) Result {
	ctx, span := startSpan(ctx, domain.OperationFederated)
	defer span.End()

	if res, ok := s.begin(ctx, domain.OperationFederated, false); !ok {
		recordSpanError(span, res.Err)
		return res
	}

	return s.reconcile(ctx, span, assertion)
}

// SignInWithProvider runs the provider's interactive sign-in and reconciles
// the result with the server.
func (s *Store) SignInWithProvider(ctx context.Context) Result {
	ctx, span := startSpan(ctx, domain.OperationFederated)
	defer span.End()

	if s.federated == nil {
		err := fmt.Errorf("%w: no identity provider configured", federation.ErrProviderMisconfigured)
		recordSpanError(span, err)
		return Result{Err: err}
	}

	if res, ok := s.begin(ctx, domain.OperationFederated, false); !ok {
		recordSpanError(span, res.Err)
		return res
	}

	user, err := s.federated.SignInWithPopup(ctx)
	if err != nil {
		return s.failProvider(ctx, span, err)
	}

	return s.reconcileProviderUser(ctx, span, user)
}

// ResumePendingSignIn completes a redirect sign-in started earlier. Without a
// pending result it returns an OK Result with no identity and changes nothing.
func (s *Store) ResumePendingSignIn(ctx context.Context) Result {
	ctx, span := startSpan(ctx, domain.OperationFederated)
	defer span.End()

	if s.federated == nil {
		return Result{OK: true}
	}

	if res, ok := s.begin(ctx, domain.OperationFederated, false); !ok {
		recordSpanError(span, res.Err)
		return res
	}

	user, err := s.federated.CheckRedirectResult(ctx)
	if err != nil {
		return s.failProvider(ctx, span, err)
	}
	if user == nil {
		s.mu.Lock()
		s.session.IsAuthenticating = false
		s.mu.Unlock()
		return Result{OK: true}
	}

	return s.reconcileProviderUser(ctx, span, user)
}

// reconcileProviderUser confirms the provider sign-in only once the server
// accepted it. The cooldown folds it into the reconciliation notice.
func (s *Store) reconcileProviderUser(ctx context.Context, span trace.Span, user *federation.ProviderUser) Result {
	res := s.reconcile(ctx, span, user.Assertion())
	if res.OK {
		s.relay.AuthSuccess(ctx, "Signed in", fmt.Sprintf("Signed in with %s as %s.", s.federated.ProviderName(), user.Email))
	}
	return res
}

// reconcile runs with IsAuthenticating already set.
func (s *Store) reconcile(ctx context.Context, span trace.Span, assertion domain.FederatedAssertion) Result {
	if err := assertion.Validate(); err != nil {
		return s.fail(ctx, span, domain.OperationFederated, "Authentication failed",
			fmt.Errorf("%w: %v", serrors.ErrInvalidAssertion, err))
	}

	identity, err := s.api.ReconcileFederated(ctx, assertion)
	if err != nil {
		return s.fail(ctx, span, domain.OperationFederated, "Authentication failed", err)
	}

	s.succeed(ctx, domain.OperationFederated, identity)

	name := identity.FullName
	if name == "" {
		name = assertion.DisplayName
	}
	if name == "" {
		name = assertion.Email
	}
	s.relay.AuthSuccess(ctx, "Authentication successful", fmt.Sprintf("Welcome, %s!", name))
	return Result{OK: true, Identity: identity.Clone()}
}

// begin marks an authenticating operation as started. Gated operations go
// through the cooldown first, so a double submission racing a pending call
// gets the rate-limit notice. An attempt the gate accepts is still refused
// while another operation is in flight.
func (s *Store) begin(ctx context.Context, op domain.OperationKind, gated bool) (Result, bool) {
	if gated && s.gate != nil && !s.gate.Allow(op) {
		s.logger.Info(ctx, "submission rate limited", map[string]interface{}{
			"operation":   string(op),
			"retry_after": s.gate.RetryAfter(op).String(),
		})
		s.metrics.ObserveRateLimited(string(op))
		s.audit.Record(ctx, audit.Event{Action: string(op), Error: serrors.ErrRateLimited.Error()})
		s.relay.Error(ctx, "Too many attempts", "Please wait a few seconds before trying again.")
		return Result{Err: serrors.ErrRateLimited}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.IsAuthenticating {
		s.logger.Debug(ctx, "operation already in progress", map[string]interface{}{"operation": string(op)})
		return Result{Err: serrors.ErrOperationInFlight}, false
	}
	s.session.IsAuthenticating = true
	s.session.LastError = ""
	return Result{}, true
}

func (s *Store) succeed(ctx context.Context, op domain.OperationKind, identity *domain.Identity) {
	s.mu.Lock()
	s.session.Identity = identity.Clone()
	s.session.IsAuthenticating = false
	s.session.LastError = ""
	s.mu.Unlock()

	s.logger.Info(ctx, "authentication succeeded", map[string]interface{}{
		"operation": string(op),
		"user_id":   identity.ID,
		"username":  identity.Username,
	})
	s.metrics.ObserveAttempt(string(op), true)
	s.audit.Record(ctx, audit.Event{Action: string(op), User: identity.Username, Success: true})
}

func (s *Store) fail(ctx context.Context, span trace.Span, op domain.OperationKind, title string, err error) Result {
	message := serrors.UserMessage(err)

	s.mu.Lock()
	s.session.IsAuthenticating = false
	s.session.LastError = message
	s.mu.Unlock()

	s.logger.Warn(ctx, "authentication failed", map[string]interface{}{
		"operation": string(op),
		"error":     err.Error(),
	})
	recordSpanError(span, err)
	s.metrics.ObserveAttempt(string(op), false)
	s.audit.Record(ctx, audit.Event{Action: string(op), Error: err.Error()})
	s.relay.Error(ctx, title, message)
	return Result{Err: err}
}

func (s *Store) failProvider(ctx context.Context, span trace.Span, err error) Result {
	perr := federation.AsProviderError(err)
	message := perr.Message()

	s.mu.Lock()
	s.session.IsAuthenticating = false
	s.session.LastError = message
	s.mu.Unlock()

	s.logger.Warn(ctx, "provider sign-in failed", map[string]interface{}{
		"provider": s.federated.ProviderName(),
		"code":     perr.Code,
		"error":    err.Error(),
	})
	recordSpanError(span, err)
	s.metrics.ObserveAttempt(string(domain.OperationFederated), false)
	s.audit.Record(ctx, audit.Event{
		Action:   string(domain.OperationFederated),
		Provider: s.federated.ProviderName(),
		Error:    perr.Code,
	})
	s.relay.Error(ctx, "Sign-in failed", message)
	return Result{Err: perr}
}

func startSpan(ctx context.Context, op domain.OperationKind) (context.Context, trace.Span) {
	return tracing.Tracer.Start(ctx, "session."+string(op),
		trace.WithAttributes(attribute.String("auth.operation", string(op))))
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
