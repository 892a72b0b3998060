// Package client talks to the application server's authentication endpoints.
//
// Every mutating call is attempted once on the primary transport. When that
// attempt fails before any HTTP response arrives, exactly one more attempt is
// made on a direct fallback transport with cache-busting headers. There is no
// retry loop and no backoff.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pilab-dev/estate-auth/domain"
	serrors "github.com/pilab-dev/estate-auth/errors"
	"github.com/pilab-dev/estate-auth/internal/metrics"
	"github.com/pilab-dev/estate-auth/log"
)

// Server endpoints.
const (
	PathCurrentUser   = "/api/user"
	PathLogin         = "/api/login"
	PathRegister      = "/api/register"
	PathLogout        = "/api/logout"
	PathFederatedAuth = "/api/firebase-auth"
)

const maxErrorBody = 64 << 10

// Config configures an AuthClient.
type Config struct {
	// BaseURL of the application server, e.g. https://estates.example.com.
	BaseURL string

	// Jar carries the session cookie on both transports. A nil jar disables
	// credential persistence between calls.
	Jar http.CookieJar

	// Timeout per HTTP attempt; zero means no client-side timeout.
	Timeout time.Duration

	// PrimaryTransport is wrapped by the instrumentation chain. Defaults to
	// http.DefaultTransport.
	PrimaryTransport http.RoundTripper

	// FallbackTransport is used as-is. Defaults to a clone of
	// http.DefaultTransport without keep-alives.
	FallbackTransport http.RoundTripper

	Logger  log.Logger
	Metrics *metrics.Metrics
}

// AuthClient is the remote authentication API client.
type AuthClient struct {
	baseURL  *url.URL
	primary  *http.Client
	fallback *http.Client
	logger   log.Logger
	metrics  *metrics.Metrics
}

// New creates an AuthClient.
func New(cfg Config) (*AuthClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("invalid configuration: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: must be absolute", cfg.BaseURL)
	}

	fallbackTransport := cfg.FallbackTransport
	if fallbackTransport == nil {
		fallbackTransport = newFallbackTransport()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	return &AuthClient{
		baseURL: base,
		primary: &http.Client{
			Transport: newPrimaryTransport(cfg.PrimaryTransport),
			Jar:       cfg.Jar,
			Timeout:   cfg.Timeout,
		},
		fallback: &http.Client{
			Transport: fallbackTransport,
			Jar:       cfg.Jar,
			Timeout:   cfg.Timeout,
		},
		logger:  logger.With(map[string]interface{}{"component": "auth_client"}),
		metrics: cfg.Metrics,
	}, nil
}

// BaseURL returns the server URL the client talks to.
func (c *AuthClient) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// CurrentUser reads the caller's session. An anonymous caller yields
// errors.ErrNotAuthenticated. Only the primary transport is used.
func (c *AuthClient) CurrentUser(ctx context.Context) (*domain.Identity, error) {
	resp, err := c.send(ctx, http.MethodGet, PathCurrentUser, nil, false)
	if err != nil {
		return nil, fmt.Errorf("fetch current user: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, serrors.ErrNotAuthenticated
	}
	return decodeIdentity(resp, "fetch current user")
}

// Login authenticates with username and password.
func (c *AuthClient) Login(ctx context.Context, creds domain.Credentials) (*domain.Identity, error) {
	return c.identityCall(ctx, PathLogin, creds, "login")
}

// Register creates an account and signs it in.
func (c *AuthClient) Register(ctx context.Context, reg domain.Registration) (*domain.Identity, error) {
	return c.identityCall(ctx, PathRegister, reg, "register")
}

// ReconcileFederated exchanges a provider assertion for the application identity.
func (c *AuthClient) ReconcileFederated(ctx context.Context, assertion domain.FederatedAssertion) (*domain.Identity, error) {
	return c.identityCall(ctx, PathFederatedAuth, assertion, "federated auth")
}

// Logout ends the server-side session.
func (c *AuthClient) Logout(ctx context.Context) error {
	resp, err := c.send(ctx, http.MethodPost, PathLogout, nil, true)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("logout: %w", decodeError(resp))
	}
	return nil
}

func (c *AuthClient) identityCall(ctx context.Context, path string, payload any, op string) (*domain.Identity, error) {
	resp, err := c.send(ctx, http.MethodPost, path, payload, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer closeBody(resp)

	return decodeIdentity(resp, op)
}

// send issues the request on the primary transport and, when allowed, once on
// the fallback transport after a transport-level failure.
func (c *AuthClient) send(ctx context.Context, method, path string, payload any, withFallback bool) (*http.Response, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	requestID := uuid.NewString()
	op := method + " " + path

	req, err := c.newRequest(ctx, method, path, body, requestID)
	if err != nil {
		return nil, err
	}
	resp, primaryErr := c.primary.Do(req)
	if primaryErr == nil {
		return resp, nil
	}

	// A cancelled caller is not a transport failure worth a second attempt.
	if !withFallback || ctx.Err() != nil {
		return nil, &serrors.TransportError{Op: op, Primary: primaryErr}
	}

	c.logger.Warn(ctx, "primary request failed, retrying once on fallback transport", map[string]interface{}{
		"operation":  op,
		"request_id": requestID,
		"error":      primaryErr.Error(),
	})

	req, err = c.newRequest(ctx, method, path, body, requestID)
	if err != nil {
		return nil, err
	}
	setCacheBusting(req.Header)

	resp, fallbackErr := c.fallback.Do(req)
	c.metrics.ObserveFallback(fallbackErr == nil)
	if fallbackErr != nil {
		return nil, &serrors.TransportError{Op: op, Primary: primaryErr, Fallback: fallbackErr}
	}
	return resp, nil
}

func (c *AuthClient) newRequest(ctx context.Context, method, path string, body []byte, requestID string) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(headerAccept, contentTypeJSON)
	req.Header.Set(headerRequestID, requestID)
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	return req, nil
}

func decodeIdentity(resp *http.Response, op string) (*domain.Identity, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s: %w", op, decodeError(resp))
	}
	var identity domain.Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, serrors.ErrMalformedResponse, err)
	}
	return &identity, nil
}

// decodeError turns a non-OK response into an APIError: the JSON "message"
// (or "error") field first, then the plain-text body, then the status line.
func decodeError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	text := strings.TrimSpace(string(data))
	if err != nil || text == "" {
		return serrors.NewAPIError(resp.StatusCode, "")
	}

	var structured map[string]any
	if json.Unmarshal(data, &structured) == nil {
		for _, key := range []string{"message", "error"} {
			if msg, ok := structured[key].(string); ok && msg != "" {
				return serrors.NewAPIError(resp.StatusCode, msg)
			}
		}
		return serrors.NewAPIError(resp.StatusCode, "")
	}

	return serrors.NewAPIError(resp.StatusCode, text)
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
