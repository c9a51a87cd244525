package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenParse is returned when a bearer token cannot be introspected.
// Callers must treat such tokens as expired, never as valid.
var ErrTokenParse = errors.New("failed to parse token")

// IsExpired reports whether the access token's exp claim is in the past.
// Any defect (wrong segment count, undecodable payload, missing or
// non-numeric exp) counts as expired. The signature is deliberately not
// verified here: the token was issued by the authorization server and is
// only introspected locally to decide whether a refresh is due.
func IsExpired(rawToken string, now time.Time) bool {
	if strings.Count(rawToken, ".") != 2 {
		return true
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return true
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return now.Unix() > exp.Unix()
}

// ScopeClaim extracts the space-separated scope claim from the token payload
// without verifying the signature.
func ScopeClaim(rawToken string) (string, error) {
	if strings.Count(rawToken, ".") != 2 {
		return "", ErrTokenParse
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return "", errors.Join(ErrTokenParse, err)
	}

	scope, _ := claims["scope"].(string)
	return scope, nil
}

// HasScope reports whether the space-separated scope list contains the
// required scope, case-insensitively.
func HasScope(scopes, required string) bool {
	for _, scope := range strings.Fields(scopes) {
		if strings.EqualFold(scope, required) {
			return true
		}
	}
	return false
}
