package token_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/openbanking-demos/tpp-backend/token"
)

const (
	testClientID    = "PSDGB-OB-TPP001"
	testTokenURL    = "https://bank.example.com/oauth2/token"
	testRedirectURI = "https://tpp.example.com/oauth2callback"
)

func newTestBuilder(t *testing.T) *token.AssertionBuilder {
	t.Helper()

	signer, err := token.NewSigner(newTestKey(t), "PS256", "kid-1", "JWT")
	require.NoError(t, err)

	builder, err := token.NewAssertionBuilder(signer, token.AssertionConfig{
		ClientID:     testClientID,
		TokenURL:     testTokenURL,
		RedirectURI:  testRedirectURI,
		ResponseType: "code id_token",
		Scope:        "accounts openid",
		Validity:     5 * time.Minute,
	})
	require.NoError(t, err)
	return builder
}

func decodeClaims(t *testing.T, signed string) jwt.MapClaims {
	t.Helper()
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(signed, claims)
	require.NoError(t, err)
	return claims
}

func TestNewAssertionBuilder(t *testing.T) {
	signer, err := token.NewSigner(newTestKey(t), "PS256", "kid-1", "JWT")
	require.NoError(t, err)

	t.Run("missing client id rejected", func(t *testing.T) {
		_, err := token.NewAssertionBuilder(signer, token.AssertionConfig{TokenURL: testTokenURL})
		require.Error(t, err)
	})

	t.Run("nil signer rejected", func(t *testing.T) {
		_, err := token.NewAssertionBuilder(nil, token.AssertionConfig{ClientID: testClientID, TokenURL: testTokenURL})
		require.Error(t, err)
	})
}

func TestAssertionBuilder_ClientAssertion(t *testing.T) {
	builder := newTestBuilder(t)

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token.NowTimeFunc = func() time.Time { return fixed }
	defer func() { token.NowTimeFunc = time.Now }()

	t.Run("claim values", func(t *testing.T) {
		signed, err := builder.ClientAssertion("123456789")
		require.NoError(t, err)

		claims := decodeClaims(t, signed)
		require.Equal(t, testClientID, claims["iss"])
		require.Equal(t, testClientID, claims["sub"])
		require.Equal(t, testTokenURL, claims["aud"])
		require.Equal(t, "123456789", claims["jti"])
		require.Equal(t, float64(fixed.Unix()), claims["iat"])
		require.Equal(t, float64(fixed.Unix()+300), claims["exp"])
	})

	t.Run("two assertions differ", func(t *testing.T) {
		first, err := builder.ClientAssertion(token.NewJTI())
		require.NoError(t, err)
		second, err := builder.ClientAssertion(token.NewJTI())
		require.NoError(t, err)
		require.NotEqual(t, first, second)
	})
}

func TestAssertionBuilder_RequestObject(t *testing.T) {
	builder := newTestBuilder(t)

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token.NowTimeFunc = func() time.Time { return fixed }
	defer func() { token.NowTimeFunc = time.Now }()

	signed, err := builder.RequestObject("consent-abc", "987654321", "state-1", "nonce-1")
	require.NoError(t, err)
	claims := decodeClaims(t, signed)

	t.Run("top-level authorization parameters", func(t *testing.T) {
		require.Equal(t, testClientID, claims["iss"])
		require.Equal(t, testClientID, claims["client_id"])
		require.Equal(t, "code id_token", claims["response_type"])
		require.Equal(t, testRedirectURI, claims["redirect_uri"])
		require.Equal(t, "state-1", claims["state"])
		require.Equal(t, "nonce-1", claims["nonce"])
		require.Equal(t, "accounts openid", claims["scope"])
		require.Equal(t, "987654321", claims["jti"])
		require.Equal(t, testTokenURL, claims["aud"])
		require.Equal(t, float64(fixed.Unix()), claims["nbf"])
		require.Equal(t, float64(fixed.Unix()+300), claims["exp"])
	})

	t.Run("intent id bound in id_token and userinfo", func(t *testing.T) {
		nested, ok := claims["claims"].(map[string]any)
		require.True(t, ok)

		idToken, ok := nested["id_token"].(map[string]any)
		require.True(t, ok)
		intent, ok := idToken["openbanking_intent_id"].(map[string]any)
		require.True(t, ok)
		require.Equal(t, "consent-abc", intent["value"])
		require.Equal(t, true, intent["essential"])

		acr, ok := idToken["acr"].(map[string]any)
		require.True(t, ok)
		require.Equal(t, true, acr["essential"])
		require.ElementsMatch(t,
			[]any{"urn:openbanking:psd2:sca", "urn:openbanking:psd2:ca"},
			acr["values"])

		userInfo, ok := nested["userinfo"].(map[string]any)
		require.True(t, ok)
		userIntent, ok := userInfo["openbanking_intent_id"].(map[string]any)
		require.True(t, ok)
		require.Equal(t, "consent-abc", userIntent["value"])
	})
}
