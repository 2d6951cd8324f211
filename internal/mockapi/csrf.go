package mockapi

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/jmcleod/navauth/internal/uuid"
)

const (
	csrfCookieName = defaultCSRFParam
	csrfHeaderName = defaultCSRFHeader
)

// CSRFMiddleware enforces double-submit cookie CSRF protection. Safe methods
// are exempt, and so are requests that carry no CSRF cookie: those come from
// clients that never asked for a ticket.
func (a *API) CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(csrfCookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get(csrfHeaderName)
		if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
			a.audit.logFailure(AuditCSRFRejected, r, "csrf token mismatch")
			writeError(w, http.StatusForbidden, "Invalid CSRF token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// CSRF handles GET /api/auth/csrf. It issues a fresh token, sets it as a
// readable cookie, and tells the client which header to send it under.
func (a *API) CSRF(w http.ResponseWriter, r *http.Request) {
	token := writeCSRFCookie(w, r)
	writeJSON(w, http.StatusOK, CSRFResponse{
		Token:         token,
		HeaderName:    csrfHeaderName,
		ParameterName: csrfCookieName,
	})
}

// writeCSRFCookie sets the CSRF double-submit cookie. It is not HttpOnly so
// that clients can read it back.
func writeCSRFCookie(w http.ResponseWriter, r *http.Request) string {
	token := uuid.New()
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(csrfCookieTTL / time.Second),
	})
	return token
}

// clearCSRFCookie removes the CSRF cookie on logout.
func clearCSRFCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: false,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}
