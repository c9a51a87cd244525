package server

// Route paths. The callback path must match the redirect_uri registered at
// the authorization server.
const (
	RouteLogin      = "/login"
	RouteCallback   = "/oauth2callback"
	RouteInitData   = "/init/data"
	RouteAddAccount = "/init/addAccount"
	RoutePayments   = "/init/payments"
)

const sessionCookieName = "TPP_SESSION"
