// Package route gates session-only locations on the presence of a token.
package route

// Home is where unauthenticated visitors are sent.
const Home = "/"

// TokenReader reads the current bearer token. *session.Store satisfies it.
type TokenReader interface {
	Token() string
}

// Decision is the outcome of Protect. When Allow is false the caller should
// move to Redirect and keep From for after login.
type Decision struct {
	Allow    bool
	Redirect string
	From     string
}

// Protect allows location when a token is present and otherwise redirects
// home, remembering location. It never refreshes the session.
func Protect(tokens TokenReader, location string) Decision {
	if tokens != nil && tokens.Token() != "" {
		return Decision{Allow: true}
	}
	return Decision{Redirect: Home, From: location}
}
