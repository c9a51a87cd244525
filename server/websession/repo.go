// Package websession is the server-side session store backing the browser
// session cookie. The session is the sole holder of the user's tokens; no
// other component retains them past a single request.
package websession

import "time"

// Session holds the token attributes bound to one browser session.
type Session struct {
	ID           string
	AccessToken  string
	RefreshToken string
	IDToken      string
	CreatedAt    time.Time
}

// Repo stores sessions keyed by the cookie's session identifier.
type Repo interface {
	Upsert(id string, session Session) error
	Get(id string) (Session, error)
	Delete(id string) error
}
