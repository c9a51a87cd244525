package consent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/openbanking-demos/tpp-backend/exchange"
	"github.com/openbanking-demos/tpp-backend/token"
	"github.com/openbanking-demos/tpp-backend/transport"
)

// ErrConsentInit is returned when the consent could not be created: the
// client-credentials grant failed, the consent endpoint rejected the body, or
// the response carried no Data.ConsentId.
var ErrConsentInit = errors.New("consent initiation failed")

// Config holds the static endpoints and identifiers of the consent flow.
type Config struct {
	AuthorizeURL    string
	ClientID        string
	RedirectURI     string
	ResponseType    string // "code id_token" (hybrid flow)
	Prompt          string // typically "login"
	FAPIFinancialID string

	AccountsConsentURL string // <aisp base>/account-access-consents
	PaymentsConsentURL string // <pisp base>/payment-consents
	AccountsScope      string // "accounts openid"
	PaymentsScope      string // "payments openid"

	// TimeOffset anchors consent window dates, e.g. "+05:30".
	TimeOffset string
}

// Engine orchestrates the three-step consent protocol. Each initiation walks
// token → consent → authorize; any failed step aborts the flow immediately,
// there are no retries.
type Engine struct {
	exchanger *exchange.Exchanger
	client    *transport.Client
	builder   *token.AssertionBuilder
	sessions  Repo
	cfg       Config
	zone      *time.Location
	nowTime   func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(e *Engine) {
		e.nowTime = nowFunc
	}
}

// NewEngine wires the consent flow dependencies.
func NewEngine(exchanger *exchange.Exchanger, client *transport.Client, builder *token.AssertionBuilder, sessions Repo, cfg Config, opts ...Option) (*Engine, error) {
	if exchanger == nil || client == nil || builder == nil || sessions == nil {
		return nil, errors.New("exchanger, client, assertion builder and session repo are required")
	}

	zone, err := ParseTimeOffset(cfg.TimeOffset)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		exchanger: exchanger,
		client:    client,
		builder:   builder,
		sessions:  sessions,
		cfg:       cfg,
		zone:      zone,
		nowTime:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// InitiateAccounts runs the consent handshake for account access and returns
// the authorize URL the resource owner must visit.
func (e *Engine) InitiateAccounts(ctx context.Context) (string, error) {
	body, err := AccountConsentBody(e.nowTime(), e.zone)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrConsentInit, err)
	}
	return e.initiate(ctx, &Session{Kind: KindAccounts, Scope: e.cfg.AccountsScope}, e.cfg.AccountsConsentURL, body)
}

// InitiatePayment runs the consent handshake for a single payment and returns
// the authorize URL the resource owner must visit.
func (e *Engine) InitiatePayment(ctx context.Context, payment PaymentDetails) (string, error) {
	body, err := PaymentConsentBody(payment)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrConsentInit, err)
	}
	session := &Session{Kind: KindPayments, Scope: e.cfg.PaymentsScope, Payment: &payment}
	return e.initiate(ctx, session, e.cfg.PaymentsConsentURL, body)
}

// Peek returns the in-flight session matching the callback's state parameter
// without consuming it.
func (e *Engine) Peek(state string) (*Session, error) {
	return e.sessions.Get(state)
}

// Resolve consumes the in-flight session matching the callback's state
// parameter. Each session resolves exactly once, even when callbacks race.
func (e *Engine) Resolve(state string) (*Session, error) {
	return e.sessions.Take(state)
}

func (e *Engine) initiate(ctx context.Context, session *Session, consentURL, body string) (string, error) {
	// Step 1: client-credentials token for the consent API.
	tokens, err := e.exchanger.ClientCredentials(ctx, session.Scope)
	if err != nil {
		return "", fmt.Errorf("%w: obtaining client credentials token: %w", ErrConsentInit, err)
	}

	// Step 2: create the consent resource.
	consentID, err := e.createConsent(ctx, consentURL, body, tokens.AccessToken)
	if err != nil {
		return "", err
	}
	log.Info().Str("consent_id", consentID).Str("kind", string(session.Kind)).Msg("consent created")

	// Step 3: bind the consent into a signed request object and capture the
	// authorize redirect. state/nonce/jti are fresh: a consent id must never
	// ride on reused authorization parameters.
	session.ConsentID = consentID
	session.State = uuid.NewString()
	session.Nonce = uuid.NewString()
	session.CreatedAt = e.nowTime()

	requestObject, err := e.builder.RequestObject(consentID, token.NewJTI(), session.State, session.Nonce)
	if err != nil {
		return "", fmt.Errorf("%w: building request object: %w", ErrConsentInit, err)
	}

	location, err := e.client.GetRedirectLocation(ctx, e.authorizeURL(requestObject, session))
	if err != nil {
		return "", err
	}

	if err := e.sessions.Upsert(session.State, session); err != nil {
		return "", fmt.Errorf("%w: storing consent session: %w", ErrConsentInit, err)
	}
	return location, nil
}

func (e *Engine) createConsent(ctx context.Context, consentURL, body, accessToken string) (string, error) {
	headers := map[string]string{
		transport.HeaderAuthorization: transport.BearerPrefix + accessToken,
		transport.HeaderFAPIID:        e.cfg.FAPIFinancialID,
		transport.HeaderContentType:   transport.MediaJSON,
		transport.HeaderAccept:        transport.MediaJSON,
	}

	resp, err := e.client.Post(ctx, consentURL, headers, body)
	if err != nil {
		return "", fmt.Errorf("%w: calling consent endpoint: %w", ErrConsentInit, err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("%w: consent endpoint returned HTTP %d: %s", ErrConsentInit, resp.StatusCode, resp.Body)
	}

	var parsed struct {
		Data struct {
			ConsentID string `json:"ConsentId"`
		} `json:"Data"`
	}
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", fmt.Errorf("%w: decoding consent response: %w", ErrConsentInit, err)
	}
	if parsed.Data.ConsentID == "" {
		return "", fmt.Errorf("%w: response carried no Data.ConsentId", ErrConsentInit)
	}
	return parsed.Data.ConsentID, nil
}

// authorizeURL assembles the hybrid-flow authorization request around the
// signed request object.
func (e *Engine) authorizeURL(requestObject string, session *Session) string {
	conf := &oauth2.Config{
		ClientID:    e.cfg.ClientID,
		RedirectURL: e.cfg.RedirectURI,
		Scopes:      strings.Fields(session.Scope),
		Endpoint:    oauth2.Endpoint{AuthURL: e.cfg.AuthorizeURL},
	}
	return conf.AuthCodeURL(session.State,
		oauth2.SetAuthURLParam("response_type", e.cfg.ResponseType),
		oauth2.SetAuthURLParam("request", requestObject),
		oauth2.SetAuthURLParam("prompt", e.cfg.Prompt),
		oauth2.SetAuthURLParam("nonce", session.Nonce),
	)
}
