package server_test

import (
	"context"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/openbanking-demos/tpp-backend/bank"
	"github.com/openbanking-demos/tpp-backend/consent"
	"github.com/openbanking-demos/tpp-backend/exchange"
	"github.com/openbanking-demos/tpp-backend/internal/config"
	"github.com/openbanking-demos/tpp-backend/server"
	"github.com/openbanking-demos/tpp-backend/server/websession"
)

const sessionCookie = "TPP_SESSION"

type fakeConsents struct {
	accountsURL string
	paymentsURL string
	initiateErr error
	pending     map[string]*consent.Session
	lastPayment *consent.PaymentDetails
}

func (f *fakeConsents) InitiateAccounts(context.Context) (string, error) {
	if f.initiateErr != nil {
		return "", f.initiateErr
	}
	return f.accountsURL, nil
}

func (f *fakeConsents) InitiatePayment(_ context.Context, payment consent.PaymentDetails) (string, error) {
	if f.initiateErr != nil {
		return "", f.initiateErr
	}
	f.lastPayment = &payment
	return f.paymentsURL, nil
}

func (f *fakeConsents) Peek(state string) (*consent.Session, error) {
	session, ok := f.pending[state]
	if !ok {
		return nil, consent.ErrSessionNotFound
	}
	return session, nil
}

func (f *fakeConsents) Resolve(state string) (*consent.Session, error) {
	session, ok := f.pending[state]
	if !ok {
		return nil, consent.ErrSessionNotFound
	}
	delete(f.pending, state)
	return session, nil
}

type fakeExchanger struct {
	tokens *exchange.TokenSet
	err    error
	codes  []string
}

func (f *fakeExchanger) Exchange(_ context.Context, code string) (*exchange.TokenSet, error) {
	f.codes = append(f.codes, code)
	if f.err != nil {
		return nil, f.err
	}
	return f.tokens, nil
}

type fakeRefresher struct {
	tokens *exchange.TokenSet
	err    error
	calls  int
}

func (f *fakeRefresher) Refresh(context.Context, string) (*exchange.TokenSet, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.tokens, nil
}

type fakeVerifier struct {
	err    error
	tokens []string
	nonces []string
}

func (f *fakeVerifier) Verify(_ context.Context, rawIDToken, expectedNonce string) error {
	f.tokens = append(f.tokens, rawIDToken)
	f.nonces = append(f.nonces, expectedNonce)
	return f.err
}

type fakeEnricher struct {
	banks       []bank.Bank
	enrichCalls []string
	payment     *consent.PaymentDetails
	enrichErr   error
	paymentErr  error
}

func (f *fakeEnricher) EnrichAccounts(_ context.Context, accessToken string) error {
	f.enrichCalls = append(f.enrichCalls, accessToken)
	return f.enrichErr
}

func (f *fakeEnricher) ApplyPayment(details *consent.PaymentDetails) error {
	f.payment = details
	return f.paymentErr
}

func (f *fakeEnricher) Banks() []bank.Bank {
	return f.banks
}

type serverFixture struct {
	consents  *fakeConsents
	exchanger *fakeExchanger
	refresher *fakeRefresher
	enricher  *fakeEnricher
	verifier  *fakeVerifier
	sessions  *websession.InMemoryRepo
	srv       *server.Server
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	cfg := &config.Config{
		Env: "PROD",
		OAuth: config.OAuth{
			ClientID:      "PSDGB-OB-TPP001",
			AuthorizeURL:  "https://bank.example.com/oauth2/authorize",
			RedirectURI:   "https://tpp.example.com/oauth2callback",
			LoginScope:    "openid basic",
			RequiredScope: "basic",
		},
		Frontend: config.Frontend{
			HomeURL:       "https://frontend.example.com/",
			AllowedOrigin: "https://frontend.example.com",
		},
	}

	f := &serverFixture{
		consents: &fakeConsents{
			accountsURL: "https://bank.example.com/login?flow=accounts",
			paymentsURL: "https://bank.example.com/login?flow=payments",
			pending:     map[string]*consent.Session{},
		},
		exchanger: &fakeExchanger{tokens: &exchange.TokenSet{AccessToken: "at-1", RefreshToken: "rt-1"}},
		refresher: &fakeRefresher{},
		enricher:  &fakeEnricher{},
		verifier:  &fakeVerifier{},
		sessions:  websession.NewInMemoryRepo(),
	}

	srv, err := server.New(cfg, server.Deps{
		Consents:  f.consents,
		Exchanger: f.exchanger,
		Refresher: f.refresher,
		Sessions:  f.sessions,
		Bank:      f.enricher,
		Verifier:  f.verifier,
	})
	require.NoError(t, err)
	f.srv = srv
	return f
}

// bearerToken builds an unsigned three-segment token with the given claims.
// The gate introspects without verifying, so no real signature is needed.
func bearerToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	signed, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	return signed + "sig"
}

// seedSession stores a websession and returns its cookie value.
func (f *serverFixture) seedSession(t *testing.T, accessToken, refreshToken string) string {
	t.Helper()
	id := "session-" + accessToken
	err := f.sessions.Upsert(id, websession.Session{
		ID:           id,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
	require.NoError(t, err)
	return id
}

func TestServer_New(t *testing.T) {
	t.Run("missing dependency rejected", func(t *testing.T) {
		_, err := server.New(&config.Config{}, server.Deps{})
		require.Error(t, err)
	})
}

var errBoom = errors.New("boom")
