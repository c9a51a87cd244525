package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/openbanking-demos/tpp-backend/token"
)

// nowTimeFunc returns the current time. It can be overridden in tests.
var nowTimeFunc = time.Now

// SessionGate guards protected routes. Per request it resolves the session
// cookie, refreshes an expired access token once, and enforces the required
// scope. Unparseable tokens count as expired: the gate fails closed.
func (s *Server) SessionGate(requiredScope string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessionCookieName)
			if err != nil {
				s.unauthorized(w, r)
				return
			}

			session, err := s.sessions.Get(cookie.Value)
			if err != nil || session.AccessToken == "" {
				s.unauthorized(w, r)
				return
			}

			if token.IsExpired(session.AccessToken, nowTimeFunc()) {
				if session.RefreshToken == "" {
					s.unauthorized(w, r)
					return
				}

				// Single refresh attempt per request, no retry loop.
				refreshed, err := s.refresh.Refresh(r.Context(), session.RefreshToken)
				if err != nil {
					log.Err(err).Msg("token refresh failed")
					s.unauthorized(w, r)
					return
				}

				session.AccessToken = refreshed.AccessToken
				if refreshed.RefreshToken != "" {
					session.RefreshToken = refreshed.RefreshToken
				}
				if err := s.sessions.Upsert(cookie.Value, session); err != nil {
					log.Err(err).Msg("failed to store refreshed session")
					s.unauthorized(w, r)
					return
				}
				log.Info().Msg("access token refreshed")
			}

			scopes, err := token.ScopeClaim(session.AccessToken)
			if err != nil || !token.HasScope(scopes, requiredScope) {
				w.WriteHeader(http.StatusForbidden)
				return
			}

			next(w, r)
		}
	}
}

// unauthorized answers 401. API callers (XHR or JSON-accepting) additionally
// get an X-Login-Url header pointing at the authorization server's login
// page; browser navigation gets a bare 401.
func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request) {
	if isAPIRequest(r) {
		w.Header().Set("X-Login-Url", s.loginURL())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "Unauthorized"}`)) //nolint:errcheck
		return
	}
	w.WriteHeader(http.StatusUnauthorized)
}

func isAPIRequest(r *http.Request) bool {
	if r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// loginURL builds the code-flow login URL advertised to unauthenticated API
// callers.
func (s *Server) loginURL() string {
	conf := &oauth2.Config{
		ClientID:    s.config.OAuth.ClientID,
		RedirectURL: s.config.OAuth.RedirectURI,
		Scopes:      strings.Fields(s.config.OAuth.LoginScope),
		Endpoint:    oauth2.Endpoint{AuthURL: s.config.OAuth.AuthorizeURL},
	}
	return conf.AuthCodeURL(uuid.NewString())
}
