// Package server wires the REST surface of the TPP backend: the consent
// initiation endpoints, the authorization callback, and the session-gated
// data routes.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/openbanking-demos/tpp-backend/bank"
	"github.com/openbanking-demos/tpp-backend/consent"
	"github.com/openbanking-demos/tpp-backend/exchange"
	"github.com/openbanking-demos/tpp-backend/internal/config"
	"github.com/openbanking-demos/tpp-backend/server/websession"
)

// ConsentInitiator runs the consent handshake and resolves in-flight sessions
// when the callback arrives.
type ConsentInitiator interface {
	InitiateAccounts(ctx context.Context) (string, error)
	InitiatePayment(ctx context.Context, payment consent.PaymentDetails) (string, error)
	Peek(state string) (*consent.Session, error)
	Resolve(state string) (*consent.Session, error)
}

// CodeExchanger trades an authorization code for tokens.
type CodeExchanger interface {
	Exchange(ctx context.Context, code string) (*exchange.TokenSet, error)
}

// TokenRefresher trades a refresh token for a new token set.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*exchange.TokenSet, error)
}

// Enricher reacts to completed authorizations and serves the local bank data.
type Enricher interface {
	EnrichAccounts(ctx context.Context, accessToken string) error
	ApplyPayment(details *consent.PaymentDetails) error
	Banks() []bank.Bank
}

// Deps bundles the collaborators the server dispatches into. Verifier is
// optional; when nil, id_tokens are verified against the configured issuer's
// discovery document.
type Deps struct {
	Consents  ConsentInitiator
	Exchanger CodeExchanger
	Refresher TokenRefresher
	Sessions  websession.Repo
	Bank      Enricher
	Verifier  IDTokenVerifier
}

// Server is the HTTP front of the TPP backend.
type Server struct {
	env      string
	mux      *http.ServeMux
	routes   []string
	config   *config.Config
	consents ConsentInitiator
	exchange CodeExchanger
	refresh  TokenRefresher
	sessions websession.Repo
	bank     Enricher
	verifier IDTokenVerifier
}

// New creates the server and registers its routes.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Consents == nil || deps.Exchanger == nil || deps.Refresher == nil || deps.Sessions == nil || deps.Bank == nil {
		return nil, fmt.Errorf("[Server New] all dependencies are required")
	}

	verifier := deps.Verifier
	if verifier == nil {
		verifier = NewOIDCVerifier(cfg.OAuth.Issuer, cfg.OAuth.ClientID)
	}

	s := &Server{
		env:      cfg.Env,
		mux:      http.NewServeMux(),
		config:   cfg,
		consents: deps.Consents,
		exchange: deps.Exchanger,
		refresh:  deps.Refresher,
		sessions: deps.Sessions,
		bank:     deps.Bank,
		verifier: verifier,
	}

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// RegisterRouteFunc registers a handler and remembers the pattern for the
// startup route log.
func (s *Server) RegisterRouteFunc(pattern string, handler http.HandlerFunc) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) initRoutes() {
	gate := s.SessionGate(s.config.OAuth.RequiredScope)

	// Public: login bounce and the authorization callback.
	s.RegisterRouteFunc("GET "+RouteLogin, ChainMiddleware(s.LoginHandler(), s.baseMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteCallback, ChainMiddleware(s.CallbackHandler(), s.baseMiddleware()...))

	// Protected data and consent-initiation routes.
	s.RegisterRouteFunc("GET "+RouteInitData, ChainMiddleware(s.InitDataHandler(), s.baseMiddleware(gate)...))
	s.RegisterRouteFunc("POST "+RouteAddAccount, ChainMiddleware(s.AddAccountHandler(), s.baseMiddleware(gate)...))
	s.RegisterRouteFunc("POST "+RoutePayments, ChainMiddleware(s.PaymentHandler(), s.baseMiddleware(gate)...))
}

func (s *Server) baseMiddleware(mw ...func(http.HandlerFunc) http.HandlerFunc) []func(http.HandlerFunc) http.HandlerFunc {
	base := []func(http.HandlerFunc) http.HandlerFunc{
		s.RecoverMiddleware,
		s.LoggingMiddleware,
		s.CorsMiddleware,
	}
	return append(base, mw...)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		log.Info().Str("route", route).Msg("registered")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Err(err).Msg("failed to encode response")
	}
}
