package federation

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidAuthState      = errors.New("invalid auth state parameter")
	ErrExchangeCodeFailed    = errors.New("failed to exchange authorization code for token")
	ErrFetchUserInfoFailed   = errors.New("failed to fetch user info from provider")
	ErrProviderMisconfigured = errors.New("provider is misconfigured")
	ErrNoPendingSignIn       = errors.New("no pending sign-in for this provider")
)

// Provider error codes. Codes are opaque strings; only these three get curated
// user-facing text.
const (
	CodePopupBlocked       = "auth/popup-blocked"
	CodePopupClosedByUser  = "auth/popup-closed-by-user"
	CodeUnauthorizedDomain = "auth/unauthorized-domain"
	CodeInternalError      = "auth/internal-error"
)

// ProviderError is a failure of the interactive or redirect sign-in flow.
type ProviderError struct {
	Code string
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Message returns the user-facing text for the error's code.
func (e *ProviderError) Message() string {
	return MessageForCode(e.Code)
}

// MessageForCode maps a provider error code to display text. Unknown codes get
// a generic message that carries the raw code.
func MessageForCode(code string) string {
	switch code {
	case CodePopupBlocked:
		return "The sign-in window could not be opened. Allow pop-ups or open the sign-in link manually, then try again."
	case CodePopupClosedByUser:
		return "The sign-in window was closed before sign-in completed."
	case CodeUnauthorizedDomain:
		return "This application is not authorized for sign-in with this provider. Please contact support."
	default:
		return fmt.Sprintf("Sign-in failed (%s). Please try again.", code)
	}
}

// codeForOAuthError maps an OAuth2 "error" callback parameter to a provider code.
func codeForOAuthError(oauthErr string) string {
	switch oauthErr {
	case "access_denied":
		return CodePopupClosedByUser
	case "redirect_uri_mismatch", "unauthorized_client":
		return CodeUnauthorizedDomain
	default:
		return "auth/" + oauthErr
	}
}

// AsProviderError normalises any sign-in failure into a ProviderError.
func AsProviderError(err error) *ProviderError {
	if err == nil {
		return nil
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Code: CodePopupClosedByUser, Err: err}
	}
	return &ProviderError{Code: CodeInternalError, Err: err}
}
