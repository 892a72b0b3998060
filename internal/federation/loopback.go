package federation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pilab-dev/estate-auth/domain"
	"github.com/pilab-dev/estate-auth/log"
	"golang.org/x/oauth2"
)

const defaultCallbackTimeout = 5 * time.Minute

// UserInfoFetcher reads the signed-in user's profile with an authenticated client.
type UserInfoFetcher func(ctx context.Context, client *http.Client) (*ProviderUser, error)

// LoopbackProvider implements Provider for OAuth2/OIDC identity providers from
// a terminal. The interactive flow opens the system browser and receives the
// authorization code on a loopback listener. The redirect flow persists a
// pending sign-in and completes it later from a pasted callback URL.
// Both flows use PKCE.
type LoopbackProvider struct {
	idp             *domain.IdentityProvider
	endpoint        oauth2.Endpoint
	fetchUser       UserInfoFetcher
	revokeURL       string
	openBrowser     func(authURL string) error
	pending         PendingStore
	callbackTimeout time.Duration
	logger          log.Logger

	mu          sync.Mutex
	token       *oauth2.Token
	callbackURL string
}

// LoopbackOption configures a LoopbackProvider.
type LoopbackOption func(*LoopbackProvider)

// WithBrowser sets the function that shows the authorization URL to the user.
func WithBrowser(open func(authURL string) error) LoopbackOption {
	return func(p *LoopbackProvider) { p.openBrowser = open }
}

// WithPendingStore enables the redirect flow.
func WithPendingStore(store PendingStore) LoopbackOption {
	return func(p *LoopbackProvider) { p.pending = store }
}

// WithCallbackTimeout bounds how long the interactive flow waits for the browser.
func WithCallbackTimeout(d time.Duration) LoopbackOption {
	return func(p *LoopbackProvider) { p.callbackTimeout = d }
}

// WithLogger sets the provider logger.
func WithLogger(logger log.Logger) LoopbackOption {
	return func(p *LoopbackProvider) { p.logger = logger }
}

// WithRevokeURL enables token revocation on sign-out.
func WithRevokeURL(revokeURL string) LoopbackOption {
	return func(p *LoopbackProvider) { p.revokeURL = revokeURL }
}

// NewLoopbackProvider creates a provider from its IdP configuration.
func NewLoopbackProvider(idpConfig *domain.IdentityProvider, endpoint oauth2.Endpoint, fetch UserInfoFetcher, opts ...LoopbackOption) (*LoopbackProvider, error) {
	if idpConfig == nil || idpConfig.Name == "" || idpConfig.ClientID == "" || idpConfig.RedirectURL == "" {
		return nil, ErrProviderMisconfigured
	}
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" || fetch == nil {
		return nil, ErrProviderMisconfigured
	}
	if _, err := url.Parse(idpConfig.RedirectURL); err != nil {
		return nil, fmt.Errorf("%w: invalid redirect URL: %v", ErrProviderMisconfigured, err)
	}

	p := &LoopbackProvider{
		idp:             idpConfig,
		endpoint:        endpoint,
		fetchUser:       fetch,
		openBrowser:     func(string) error { return errors.New("no browser configured") },
		callbackTimeout: defaultCallbackTimeout,
		logger:          log.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *LoopbackProvider) Name() string {
	return p.idp.Name
}

func (p *LoopbackProvider) oauth2Config(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.idp.ClientID,
		ClientSecret: p.idp.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       p.idp.Scopes,
		Endpoint:     p.endpoint,
	}
}

// SignInInteractive opens the authorization URL in the browser and waits for
// the provider to redirect back to the loopback listener.
func (p *LoopbackProvider) SignInInteractive(ctx context.Context) (*ProviderUser, error) {
	redirect, err := url.Parse(p.idp.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderMisconfigured, err)
	}
	if !isLoopbackHost(redirect.Hostname()) {
		return nil, &ProviderError{Code: CodeUnauthorizedDomain, Err: fmt.Errorf("redirect host %q is not a loopback address", redirect.Hostname())}
	}

	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, &ProviderError{Code: CodePopupBlocked, Err: fmt.Errorf("listen for callback: %w", err)}
	}
	if redirect.Port() == "0" {
		_, port, _ := net.SplitHostPort(ln.Addr().String())
		redirect.Host = net.JoinHostPort(redirect.Hostname(), port)
	}
	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = "/"
	}

	results := make(chan callbackResult, 1)
	srv := &http.Server{
		Handler:           newCallbackHandler(callbackPath, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			p.logger.Error(ctx, "callback listener stopped", serveErr)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	conf := p.oauth2Config(redirect.String())
	authURL := conf.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	p.logger.Debug(ctx, "opening authorization URL", map[string]interface{}{"redirect_url": redirect.String()})
	if err := p.openBrowser(authURL); err != nil {
		return nil, &ProviderError{Code: CodePopupBlocked, Err: err}
	}

	timer := time.NewTimer(p.callbackTimeout)
	defer timer.Stop()

	var res callbackResult
	select {
	case res = <-results:
	case <-ctx.Done():
		return nil, &ProviderError{Code: CodePopupClosedByUser, Err: ctx.Err()}
	case <-timer.C:
		return nil, &ProviderError{Code: CodePopupClosedByUser, Err: errors.New("timed out waiting for the browser")}
	}

	return p.complete(ctx, conf, res, state, verifier)
}

// BeginRedirect starts a redirect sign-in: it persists the PKCE verifier and
// state, and returns the URL the user must open. The provider redirects to the
// configured redirect URL, which the user hands back through SetCallbackURL.
func (p *LoopbackProvider) BeginRedirect(ctx context.Context) (string, error) {
	if p.pending == nil {
		return "", fmt.Errorf("%w: redirect sign-in needs a pending store", ErrProviderMisconfigured)
	}
	pending := domain.PendingSignIn{
		Provider:    p.Name(),
		State:       uuid.NewString(),
		Verifier:    oauth2.GenerateVerifier(),
		RedirectURL: p.idp.RedirectURL,
		CreatedAt:   time.Now().UTC(),
	}
	if err := p.pending.SavePending(ctx, pending); err != nil {
		return "", fmt.Errorf("save pending sign-in: %w", err)
	}
	conf := p.oauth2Config(pending.RedirectURL)
	return conf.AuthCodeURL(pending.State, oauth2.S256ChallengeOption(pending.Verifier)), nil
}

// SetCallbackURL records the URL the provider redirected the browser to. It is
// consumed by the next RedirectResult call.
func (p *LoopbackProvider) SetCallbackURL(callbackURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbackURL = strings.TrimSpace(callbackURL)
}

// RedirectResult completes a pending redirect sign-in. Without a recorded
// callback URL there is no result and it returns (nil, nil).
func (p *LoopbackProvider) RedirectResult(ctx context.Context) (*ProviderUser, error) {
	p.mu.Lock()
	raw := p.callbackURL
	p.callbackURL = ""
	p.mu.Unlock()

	if raw == "" || p.pending == nil {
		return nil, nil
	}

	pending, err := p.pending.LoadPending(ctx, p.Name())
	if err != nil {
		return nil, fmt.Errorf("load pending sign-in: %w", err)
	}
	if pending == nil {
		return nil, ErrNoPendingSignIn
	}
	// A pending sign-in is single use, whatever the outcome.
	defer func() {
		if delErr := p.pending.DeletePending(ctx, p.Name()); delErr != nil {
			p.logger.Warn(ctx, "failed to delete pending sign-in", map[string]interface{}{"error": delErr.Error()})
		}
	}()

	callback, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse callback URL: %w", err)
	}
	q := callback.Query()
	res := callbackResult{
		code:    q.Get("code"),
		state:   q.Get("state"),
		errCode: q.Get("error"),
		errDesc: q.Get("error_description"),
	}
	return p.complete(ctx, p.oauth2Config(pending.RedirectURL), res, pending.State, pending.Verifier)
}

func (p *LoopbackProvider) complete(ctx context.Context, conf *oauth2.Config, res callbackResult, state, verifier string) (*ProviderUser, error) {
	if res.errCode != "" {
		return nil, &ProviderError{Code: codeForOAuthError(res.errCode), Err: errors.New(res.errDesc)}
	}
	if res.state == "" || res.state != state {
		return nil, ErrInvalidAuthState
	}
	if res.code == "" {
		return nil, fmt.Errorf("%w: callback carried no authorization code", ErrExchangeCodeFailed)
	}

	token, err := conf.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeCodeFailed, err)
	}

	user, err := p.fetchUser(ctx, conf.Client(ctx, token))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchUserInfoFailed, err)
	}

	p.mu.Lock()
	p.token = token
	p.mu.Unlock()
	return user, nil
}

// SignOut forgets the provider token and, when configured, revokes it.
func (p *LoopbackProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	token := p.token
	p.token = nil
	p.mu.Unlock()

	if token == nil || p.revokeURL == "" {
		return nil
	}

	form := url.Values{"token": {token.AccessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke token: status %d", resp.StatusCode)
	}
	return nil
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

type callbackResult struct {
	code    string
	state   string
	errCode string
	errDesc string
}

const (
	callbackSuccessPage = `<html><body><h3>Sign-in complete.</h3><p>You can close this window and return to the terminal.</p></body></html>`
	callbackFailurePage = `<html><body><h3>Sign-in failed.</h3><p>Return to the terminal for details.</p></body></html>`
)

// newCallbackHandler serves the loopback redirect target. Only the first
// callback is delivered.
func newCallbackHandler(path string, results chan<- callbackResult) http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET(path, func(c echo.Context) error {
		res := callbackResult{
			code:    c.QueryParam("code"),
			state:   c.QueryParam("state"),
			errCode: c.QueryParam("error"),
			errDesc: c.QueryParam("error_description"),
		}
		select {
		case results <- res:
		default:
		}
		if res.errCode != "" {
			return c.HTML(http.StatusOK, callbackFailurePage)
		}
		return c.HTML(http.StatusOK, callbackSuccessPage)
	})
	return e
}

var _ Provider = (*LoopbackProvider)(nil)
