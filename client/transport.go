package client

import (
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	headerRequestID = "X-Request-ID"
	headerAccept    = "Accept"
	contentTypeJSON = "application/json"
)

// headerTransport stamps default headers on every request passing through the
// primary path.
type headerTransport struct {
	base http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(headerRequestID) == "" || req.Header.Get(headerAccept) == "" {
		req = req.Clone(req.Context())
		if req.Header.Get(headerRequestID) == "" {
			req.Header.Set(headerRequestID, uuid.NewString())
		}
		if req.Header.Get(headerAccept) == "" {
			req.Header.Set(headerAccept, contentTypeJSON)
		}
	}
	return t.base.RoundTrip(req)
}

// newPrimaryTransport builds the instrumented interceptor chain used for every
// first attempt.
func newPrimaryTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return otelhttp.NewTransport(&headerTransport{base: base})
}

// newFallbackTransport builds a direct transport that bypasses the interceptor
// chain and does not reuse pooled connections.
func newFallbackTransport() http.RoundTripper {
	if dt, ok := http.DefaultTransport.(*http.Transport); ok {
		t := dt.Clone()
		t.DisableKeepAlives = true
		return t
	}
	return &http.Transport{DisableKeepAlives: true, Proxy: http.ProxyFromEnvironment}
}

// setCacheBusting marks a fallback request as uncacheable by any intermediary.
func setCacheBusting(h http.Header) {
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}
