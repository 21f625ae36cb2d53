package provider

import (
	"net/http"
	"time"
)

// bearerTransport stamps a static bearer token on every request.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Per RoundTripper contract the request must not be mutated.
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(clone)
}

// basicTransport stamps HTTP basic credentials on every request.
type basicTransport struct {
	username string
	secret   string
	base     http.RoundTripper
}

func (t *basicTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.SetBasicAuth(t.username, t.secret)
	return t.base.RoundTrip(clone)
}

// NewBearerClient builds an HTTP client that authenticates every
// request with the given bearer token. Used for vendors that take a
// long-lived API token or a pre-fetched OAuth access token.
func NewBearerClient(token string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &bearerTransport{token: token, base: http.DefaultTransport},
	}
}

// NewBasicClient builds an HTTP client that authenticates every request
// with basic credentials (Jira Cloud's email + API token scheme).
func NewBasicClient(username, secret string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &basicTransport{username: username, secret: secret, base: http.DefaultTransport},
	}
}
