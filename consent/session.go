// Package consent drives the FAPI consent handshake: obtain a client
// credentials token, create the consent resource, then capture the hybrid
// flow authorize redirect the resource owner must follow.
package consent

import "time"

// Kind distinguishes the two consent flavours the demo supports.
type Kind string

const (
	// KindAccounts is an account-information (AISP) consent.
	KindAccounts Kind = "accounts"
	// KindPayments is a payment-initiation (PISP) consent.
	KindPayments Kind = "payments"
)

// Session correlates one in-flight authorization round trip, keyed by the
// OAuth state parameter. It is created when a consent is initiated, consumed
// when the callback arrives, then discarded. Deliberately not persisted: a
// process restart loses in-flight consents.
type Session struct {
	ConsentID string
	Kind      Kind
	Scope     string
	State     string
	Nonce     string
	Payment   *PaymentDetails // set only for KindPayments
	CreatedAt time.Time
}

// Repo stores in-flight consent sessions keyed by state. Take removes and
// returns a session in one step so racing callbacks cannot both claim it.
type Repo interface {
	Upsert(state string, session *Session) error
	Get(state string) (*Session, error)
	Take(state string) (*Session, error)
	Delete(state string) error
}
