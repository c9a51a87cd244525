// Package exchange trades grants at the authorization server's token
// endpoint: client credentials for the consent handshake, authorization codes
// arriving on the callback, and refresh tokens for expired sessions. Every
// call authenticates with a freshly signed client assertion.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/openbanking-demos/tpp-backend/token"
	"github.com/openbanking-demos/tpp-backend/transport"
)

// ClientAssertionType is the fixed assertion type of the JWT-bearer client
// authentication method.
const ClientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

var (
	// ErrTokenExchange is the base error for any failed token-endpoint call.
	ErrTokenExchange = errors.New("token exchange failed")

	// ErrMissingAccessToken is returned when the endpoint answered 200 but
	// the body carried no access_token.
	ErrMissingAccessToken = errors.New("token response missing access_token")
)

// EndpointError reports a non-200 answer from the token endpoint. The error
// body is preserved so callers can surface the server's reason.
type EndpointError struct {
	StatusCode int
	Body       string
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("token endpoint returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Unwrap lets errors.Is match EndpointError against ErrTokenExchange.
func (e *EndpointError) Unwrap() error {
	return ErrTokenExchange
}

// TokenSet is the token endpoint's response. Only AccessToken is
// authorization-relevant to this backend; the remaining fields are kept for
// the session store and telemetry.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Config holds the static token-endpoint parameters.
type Config struct {
	TokenURL      string
	ClientID      string
	RedirectURI   string
	ExchangeScope string // scope sent with the authorization-code grant
}

// Exchanger performs token-endpoint calls over the mutual-TLS client.
type Exchanger struct {
	client     *transport.Client
	assertions *token.AssertionBuilder
	cfg        Config
}

// New creates an Exchanger.
func New(client *transport.Client, assertions *token.AssertionBuilder, cfg Config) (*Exchanger, error) {
	if client == nil {
		return nil, errors.New("transport client is required")
	}
	if assertions == nil {
		return nil, errors.New("assertion builder is required")
	}
	if cfg.TokenURL == "" || cfg.ClientID == "" {
		return nil, errors.New("token url and client id are required")
	}
	return &Exchanger{client: client, assertions: assertions, cfg: cfg}, nil
}

// ClientCredentials obtains a machine token scoped for consent creation.
func (e *Exchanger) ClientCredentials(ctx context.Context, scope string) (*TokenSet, error) {
	form := url.Values{
		"grant_type": {"client_credentials"},
		"scope":      {scope},
	}
	return e.request(ctx, form)
}

// Exchange trades the authorization code from the callback for a token set.
func (e *Exchanger) Exchange(ctx context.Context, code string) (*TokenSet, error) {
	form := url.Values{
		"grant_type": {"authorization_code"},
		"code":       {code},
		"scope":      {e.cfg.ExchangeScope},
	}
	return e.request(ctx, form)
}

// Refresh trades a refresh token for a new token set. A fresh client
// assertion is signed for this call too; assertions are single-use.
func (e *Exchanger) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	return e.request(ctx, form)
}

func (e *Exchanger) request(ctx context.Context, form url.Values) (*TokenSet, error) {
	assertion, err := e.assertions.ClientAssertion(token.NewJTI())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenExchange, err)
	}

	form.Set("client_assertion_type", ClientAssertionType)
	form.Set("client_id", e.cfg.ClientID)
	form.Set("client_assertion", assertion)
	form.Set("redirect_uri", e.cfg.RedirectURI)

	headers := map[string]string{
		transport.HeaderContentType: transport.MediaForm,
		transport.HeaderAccept:      transport.MediaJSON,
		"Cache-Control":             "no-cache",
	}

	resp, err := e.client.Post(ctx, e.cfg.TokenURL, headers, form.Encode())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenExchange, err)
	}
	if !resp.Success() {
		return nil, &EndpointError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	var tokens TokenSet
	if err := json.Unmarshal(resp.Body, &tokens); err != nil {
		return nil, fmt.Errorf("%w: decoding token response: %w", ErrTokenExchange, err)
	}
	if tokens.AccessToken == "" {
		return nil, ErrMissingAccessToken
	}
	return &tokens, nil
}
