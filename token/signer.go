// Package token builds the signed JWT artifacts of the FAPI profile: client
// assertions for token-endpoint authentication and request objects that bind
// an authorization request to a previously created consent.
package token

import (
	"crypto/rsa"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Signer produces JWS-compact tokens signed with RSASSA-PSS. The key is
// loaded once at startup and never leaves this struct.
type Signer struct {
	key       *rsa.PrivateKey
	keyID     string
	tokenType string
	method    jwt.SigningMethod
}

// NewSigner creates a signer for the given algorithm (PS256 in every
// supported deployment; alg/kid/typ come from configuration so the client is
// redeployable across environments).
func NewSigner(key *rsa.PrivateKey, alg, keyID, tokenType string) (*Signer, error) {
	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return nil, fmt.Errorf("unknown signing algorithm %q", alg)
	}
	if _, ok := method.(*jwt.SigningMethodRSAPSS); !ok {
		return nil, fmt.Errorf("signing algorithm %q is not an RSASSA-PSS method", alg)
	}
	if key == nil {
		return nil, fmt.Errorf("signing key is required")
	}
	return &Signer{
		key:       key,
		keyID:     keyID,
		tokenType: tokenType,
		method:    method,
	}, nil
}

// Sign creates a compact JWT from the claims. The signature is randomized
// (PSS salt), so two calls over identical claims yield different tokens; both
// verify against the public key.
func (s *Signer) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(s.method, claims)
	token.Header["kid"] = s.keyID
	token.Header["typ"] = s.tokenType

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerificationKey returns the public half of the signing key. Used by tests
// and callers that verify locally issued tokens.
func (s *Signer) VerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSAPSS); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return &s.key.PublicKey, nil
}
