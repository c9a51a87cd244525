package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// acrValues are the authentication context classes the request object marks
// as essential: strong customer authentication and customer authentication.
var acrValues = []string{
	"urn:openbanking:psd2:sca",
	"urn:openbanking:psd2:ca",
}

// AssertionConfig carries the static values every assertion shares. The
// per-call values (jti, state, nonce, consent id) are always supplied fresh.
type AssertionConfig struct {
	ClientID     string
	TokenURL     string // audience of both artifact kinds
	RedirectURI  string
	ResponseType string // "code id_token" for the hybrid flow
	Scope        string // scope embedded in request objects
	Validity     time.Duration
}

// AssertionBuilder produces the two signed artifacts the consent flow needs.
// It never caches a signed object: replaying a request object must be
// rejected by a conformant server, so each call signs fresh claims.
type AssertionBuilder struct {
	signer *Signer
	cfg    AssertionConfig
}

// NewAssertionBuilder wires a signer to the static assertion configuration.
func NewAssertionBuilder(signer *Signer, cfg AssertionConfig) (*AssertionBuilder, error) {
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if cfg.ClientID == "" || cfg.TokenURL == "" {
		return nil, fmt.Errorf("client id and token url are required")
	}
	if cfg.Validity <= 0 {
		cfg.Validity = 5 * time.Minute
	}
	return &AssertionBuilder{signer: signer, cfg: cfg}, nil
}

// ClientAssertion builds the JWT presented to the token endpoint instead of a
// client secret. The jti doubles as a replay nonce on the server side, so it
// must be unique per call.
func (b *AssertionBuilder) ClientAssertion(jti string) (string, error) {
	issuedAt := NowTimeFunc().Unix()
	claims := jwt.MapClaims{
		"iss": b.cfg.ClientID,
		"sub": b.cfg.ClientID,
		"exp": issuedAt + int64(b.cfg.Validity.Seconds()),
		"iat": issuedAt,
		"jti": jti,
		"aud": b.cfg.TokenURL,
	}

	signed, err := b.signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to build client assertion: %w", err)
	}
	return signed, nil
}

// RequestObject builds the signed authorization request that ties the
// login/consent session to the consent resource identified by consentID.
// state and nonce must be fresh per authorization round trip.
func (b *AssertionBuilder) RequestObject(consentID, jti, state, nonce string) (string, error) {
	notBefore := NowTimeFunc().Unix()

	intentID := map[string]any{
		"value":     consentID,
		"essential": true,
	}
	idTokenClaims := map[string]any{
		"acr": map[string]any{
			"values":    acrValues,
			"essential": true,
		},
		"openbanking_intent_id": intentID,
		"auth_time":             map[string]any{"essential": true},
	}
	userInfoClaims := map[string]any{
		"openbanking_intent_id": intentID,
	}

	claims := jwt.MapClaims{
		"iss":           b.cfg.ClientID,
		"response_type": b.cfg.ResponseType,
		"redirect_uri":  b.cfg.RedirectURI,
		"state":         state,
		"nonce":         nonce,
		"client_id":     b.cfg.ClientID,
		"aud":           b.cfg.TokenURL,
		"nbf":           notBefore,
		"exp":           notBefore + int64(b.cfg.Validity.Seconds()),
		"scope":         b.cfg.Scope,
		"jti":           jti,
		"claims": map[string]any{
			"id_token": idTokenClaims,
			"userinfo": userInfoClaims,
		},
	}

	signed, err := b.signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to build request object: %w", err)
	}
	return signed, nil
}
