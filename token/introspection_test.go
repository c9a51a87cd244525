package token_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/openbanking-demos/tpp-backend/token"
)

// unsignedToken builds a three-segment token with the given claims and a junk
// signature. Introspection never verifies signatures, so junk is fine.
func unsignedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	signed, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	return signed + "sig"
}

func TestIsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("exp in the past", func(t *testing.T) {
		tok := unsignedToken(t, jwt.MapClaims{"exp": now.Unix() - 1})
		require.True(t, token.IsExpired(tok, now))
	})

	t.Run("exp in the future", func(t *testing.T) {
		tok := unsignedToken(t, jwt.MapClaims{"exp": now.Unix() + 3600})
		require.False(t, token.IsExpired(tok, now))
	})

	t.Run("missing exp fails closed", func(t *testing.T) {
		tok := unsignedToken(t, jwt.MapClaims{"scope": "accounts"})
		require.True(t, token.IsExpired(tok, now))
	})

	t.Run("wrong segment count fails closed", func(t *testing.T) {
		require.True(t, token.IsExpired("opaque-token", now))
		require.True(t, token.IsExpired("two.parts", now))
		require.True(t, token.IsExpired("", now))
	})

	t.Run("undecodable payload fails closed", func(t *testing.T) {
		junk := base64.RawURLEncoding.EncodeToString([]byte("not json"))
		require.True(t, token.IsExpired("eyJhbGciOiJub25lIn0."+junk+".sig", now))
	})

	t.Run("non-numeric exp fails closed", func(t *testing.T) {
		tok := unsignedToken(t, jwt.MapClaims{"exp": "tomorrow"})
		require.True(t, token.IsExpired(tok, now))
	})
}

func TestScopeClaim(t *testing.T) {
	t.Run("extracts the scope claim", func(t *testing.T) {
		tok := unsignedToken(t, jwt.MapClaims{"scope": "openid basic accounts"})
		scope, err := token.ScopeClaim(tok)
		require.NoError(t, err)
		require.Equal(t, "openid basic accounts", scope)
	})

	t.Run("missing scope yields empty string", func(t *testing.T) {
		tok := unsignedToken(t, jwt.MapClaims{"sub": "user-1"})
		scope, err := token.ScopeClaim(tok)
		require.NoError(t, err)
		require.Empty(t, scope)
	})

	t.Run("unparseable token", func(t *testing.T) {
		_, err := token.ScopeClaim("not-a-jwt")
		require.ErrorIs(t, err, token.ErrTokenParse)
	})
}

func TestHasScope(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		require.True(t, token.HasScope("openid basic", "basic"))
	})

	t.Run("absent", func(t *testing.T) {
		require.False(t, token.HasScope("openid", "basic"))
	})

	t.Run("empty scope list", func(t *testing.T) {
		require.False(t, token.HasScope("", "basic"))
	})

	t.Run("case insensitive", func(t *testing.T) {
		require.True(t, token.HasScope("openid BASIC", "basic"))
	})

	t.Run("no substring matches", func(t *testing.T) {
		require.False(t, token.HasScope("basicplus openid", "basic"))
	})
}
