package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openbanking-demos/tpp-backend/consent"
	"github.com/openbanking-demos/tpp-backend/server/websession"
)

// LoginHandler bounces the browser to the authorization server's login page.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, s.loginURL(), http.StatusFound)
	}
}

// CallbackHandler receives the authorization redirect: it exchanges the code
// for tokens, binds them to a fresh browser session, and, when the state
// matches an in-flight consent, fires the matching enrichment action.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if errParam := r.FormValue("error"); errParam != "" {
			log.Error().Str("error", errParam).Str("description", r.FormValue("error_description")).Msg("authorization failed")
			http.Error(w, "authorization failed: "+errParam, http.StatusBadRequest)
			return
		}

		code := r.FormValue("code")
		if code == "" {
			http.Error(w, "missing authorization code", http.StatusBadRequest)
			return
		}
		state := r.FormValue("state")

		tokens, err := s.exchange.Exchange(r.Context(), code)
		if err != nil {
			log.Err(err).Msg("token exchange failed")
			http.Error(w, "token exchange failed: "+err.Error(), http.StatusInternalServerError)
			return
		}

		// Verify before consuming the pending consent: a rejected id_token
		// must not burn the in-flight session.
		pending := s.peekConsent(state)

		if tokens.IDToken != "" {
			expectedNonce := ""
			if pending != nil {
				expectedNonce = pending.Nonce
			}
			if err := s.verifier.Verify(r.Context(), tokens.IDToken, expectedNonce); err != nil {
				log.Err(err).Msg("id token verification failed")
				http.Error(w, "id token verification failed", http.StatusUnauthorized)
				return
			}
		}

		sessionID := uuid.NewString()
		session := websession.Session{
			ID:           sessionID,
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
			IDToken:      tokens.IDToken,
			CreatedAt:    time.Now(),
		}
		if err := s.sessions.Upsert(sessionID, session); err != nil {
			http.Error(w, "failed to create session", http.StatusInternalServerError)
			return
		}
		s.setSessionCookie(w, sessionID)

		if pending != nil {
			// Take removes the session atomically; a racing callback for the
			// same state gets nothing and skips the action.
			resolved, err := s.consents.Resolve(state)
			if err == nil {
				if err := s.completeConsent(r, resolved, tokens.AccessToken); err != nil {
					log.Err(err).Str("kind", string(resolved.Kind)).Msg("post-authorization action failed")
					http.Error(w, "post-authorization action failed: "+err.Error(), http.StatusInternalServerError)
					return
				}
			}
		}

		http.Redirect(w, r, s.config.Frontend.HomeURL, http.StatusFound)
	}
}

// peekConsent looks up the in-flight consent session for state without
// consuming it. Login-only callbacks carry a state the consent engine never
// issued.
func (s *Server) peekConsent(state string) *consent.Session {
	if state == "" {
		return nil
	}
	pending, err := s.consents.Peek(state)
	if err != nil {
		if !errors.Is(err, consent.ErrSessionNotFound) {
			log.Err(err).Msg("failed to look up consent session")
		}
		return nil
	}
	return pending
}

func (s *Server) completeConsent(r *http.Request, pending *consent.Session, accessToken string) error {
	switch pending.Kind {
	case consent.KindAccounts:
		return s.bank.EnrichAccounts(r.Context(), accessToken)
	case consent.KindPayments:
		return s.bank.ApplyPayment(pending.Payment)
	default:
		return nil
	}
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sessionID string) {
	// SameSite=None + Secure: the frontend runs on a different origin and
	// the cookie must survive the redirect bounce.
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

// InitDataHandler serves the enriched bank data to the frontend.
func (s *Server) InitDataHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"banks": s.bank.Banks()})
	}
}

// AddAccountHandler starts the account-access consent handshake and returns
// the authorize URL the frontend must navigate the user to.
func (s *Server) AddAccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		redirectURL, err := s.consents.InitiateAccounts(r.Context())
		if err != nil {
			log.Err(err).Msg("account consent initiation failed")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"redirectUrl": redirectURL})
	}
}

// paymentRequest is the frontend's payment submission.
type paymentRequest struct {
	DebtorName      string `json:"debtorName"`
	DebtorAccountID string `json:"debtorAccountId"`
	CreditorName    string `json:"creditorName"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Reference       string `json:"reference"`
}

// PaymentHandler starts the payment consent handshake and returns the
// authorize URL the frontend must navigate the user to.
func (s *Server) PaymentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req paymentRequest
		if err := decodeJSONBody(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment request"})
			return
		}
		if req.DebtorName == "" || req.DebtorAccountID == "" || req.Amount == "" || req.Currency == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "debtor, amount and currency are required"})
			return
		}

		details := consent.PaymentDetails{
			DebtorName:      req.DebtorName,
			DebtorAccountID: req.DebtorAccountID,
			CreditorName:    req.CreditorName,
			Amount:          req.Amount,
			Currency:        req.Currency,
			Reference:       req.Reference,
		}

		redirectURL, err := s.consents.InitiatePayment(r.Context(), details)
		if err != nil {
			log.Err(err).Msg("payment consent initiation failed")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"redirectUrl": redirectURL})
	}
}
