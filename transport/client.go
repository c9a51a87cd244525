// Package transport provides the mutual-TLS HTTP client used for every call
// to the authorization server and the bank's resource endpoints. The
// underlying transport is built once per process; rebuilding it per call
// would redo the TLS handshake configuration each time.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openbanking-demos/tpp-backend/keys"
)

// Header names and media types shared by all Open Banking calls.
const (
	HeaderContentType   = "Content-Type"
	HeaderAccept        = "Accept"
	HeaderAuthorization = "Authorization"
	HeaderFAPIID        = "x-fapi-financial-id"

	MediaJSON     = "application/json"
	MediaJSONUTF8 = "application/json; charset=UTF-8"
	MediaForm     = "application/x-www-form-urlencoded"

	BearerPrefix = "Bearer "
)

const (
	defaultTimeout              = 30 * time.Second
	defaultTLSHandshakeTimeout  = 10 * time.Second
	defaultResponseHeaderWindow = 10 * time.Second
)

// ErrRedirectExpected is returned when the authorize endpoint answers with
// anything other than a 3xx carrying a Location header.
var ErrRedirectExpected = errors.New("expected a redirect response")

// Response is the outcome of a single HTTP call. Non-2xx responses are not
// errors at this layer: the body is returned so callers can inspect the
// error payload, and the status code is surfaced alongside it.
type Response struct {
	StatusCode int
	Body       []byte
}

// Success reports whether the status code is in the 2xx range.
func (r Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client wraps an HTTPS transport bound to the TPP's client certificate and
// trust roots. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	noRedirect *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the mutual-TLS client, primarily for tests that
// talk to an httptest server.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New builds a Client from the loaded key material.
func New(material *keys.Material, opts ...Option) *Client {
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{material.ClientCertificate},
		RootCAs:      material.TrustPool, // nil falls back to platform roots
		MinVersion:   tls.VersionTLS12,
	}

	httpTransport := &http.Transport{
		TLSClientConfig:       tlsConfig,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: defaultResponseHeaderWindow,
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: httpTransport,
			Timeout:   defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	// Same transport, redirects disabled. Used to harvest the authorize
	// endpoint's Location header without acting on it.
	c.noRedirect = &http.Client{
		Transport: c.httpClient.Transport,
		Timeout:   c.httpClient.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return c
}

// Post sends a POST with the given headers and body. The response body is
// returned for every status code.
func (c *Client) Post(ctx context.Context, url string, headers map[string]string, body string) (Response, error) {
	return c.do(ctx, http.MethodPost, url, headers, body)
}

// Get sends a GET with the given headers. The response body is returned for
// every status code.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	return c.do(ctx, http.MethodGet, url, headers, "")
}

// GetRedirectLocation issues a GET with redirect-following disabled and
// returns the Location header of the 3xx response. The backend plays the
// user-agent here: the redirect target is handed to the resource owner, not
// followed. A non-3xx answer or a missing Location header yields
// ErrRedirectExpected.
func (c *Client) GetRedirectLocation(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building request for %s: %w", url, err)
	}

	resp, err := c.noRedirect.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling %s: %w", url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // body is irrelevant, drain for connection reuse

	if resp.StatusCode < 300 || resp.StatusCode > 399 {
		return "", fmt.Errorf("%w: got HTTP %d from %s", ErrRedirectExpected, resp.StatusCode, url)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("%w: HTTP %d without a Location header", ErrRedirectExpected, resp.StatusCode)
	}
	return location, nil
}

func (c *Client) do(ctx context.Context, method, url string, headers map[string]string, body string) (Response, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return Response{}, fmt.Errorf("building %s request for %s: %w", method, url, err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("calling %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("reading response from %s: %w", url, err)
	}

	return Response{StatusCode: resp.StatusCode, Body: responseBody}, nil
}
