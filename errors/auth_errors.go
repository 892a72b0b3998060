package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotAuthenticated is the expected answer of the session endpoint for an
	// anonymous caller. It is not a failure.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrRateLimited is returned when a submission arrives inside the cooldown window.
	ErrRateLimited = errors.New("too many attempts, please wait a moment and try again")

	// ErrInvalidAssertion is returned when a federated identity lacks the provider
	// user id or email. No request is sent in that case.
	ErrInvalidAssertion = errors.New("invalid federated identity")

	// ErrOperationInFlight is returned when another authenticating operation has
	// not finished yet.
	ErrOperationInFlight = errors.New("another sign-in operation is already in progress")

	// ErrMalformedResponse is returned when a successful response body cannot be decoded.
	ErrMalformedResponse = errors.New("malformed server response")
)

// APIError is a non-OK answer from the application server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError creates an APIError. An empty message is synthesized from the status.
func NewAPIError(statusCode int, message string) *APIError {
	if message == "" {
		message = StatusMessage(statusCode)
	}
	return &APIError{StatusCode: statusCode, Message: message}
}

// StatusMessage renders a status code the way the server error fallback does,
// e.g. "503 Service Unavailable".
func StatusMessage(statusCode int) string {
	text := http.StatusText(statusCode)
	if text == "" {
		return fmt.Sprintf("%d", statusCode)
	}
	return fmt.Sprintf("%d %s", statusCode, text)
}

// TransportError reports that both the primary and the fallback request failed
// before any HTTP response was received.
type TransportError struct {
	Op       string
	Primary  error
	Fallback error
}

func (e *TransportError) Error() string {
	if e.Fallback == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Primary)
	}
	return fmt.Sprintf("%s: %v (fallback: %v)", e.Op, e.Primary, e.Fallback)
}

// Unwrap exposes both causes to errors.Is and errors.As.
func (e *TransportError) Unwrap() []error {
	errs := []error{e.Primary}
	if e.Fallback != nil {
		errs = append(errs, e.Fallback)
	}
	return errs
}

// UserMessage returns the text to show a user for err. Server messages are
// surfaced verbatim.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return "Could not reach the server. Check your connection and try again."
	}
	return err.Error()
}
