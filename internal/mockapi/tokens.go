package mockapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jmcleod/navauth/internal/uuid"
)

const (
	scopeAccess      = "access"
	scopeProvisional = "otp_pending"
	tokenIssuer      = "navauth-mock"
)

var errInvalidToken = errors.New("invalid token")

// accessClaims are carried by both full and provisional access tokens.
type accessClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

func (a *API) issueJWT(email, scope string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := accessClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountKey(email),
			Issuer:    tokenIssuer,
			ID:        uuid.New(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// parseJWT verifies signature, issuer, expiry and scope, and returns the
// subject.
func (a *API) parseJWT(token, scope string) (string, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errInvalidToken, err)
	}
	if claims.Scope != scope {
		return "", fmt.Errorf("%w: scope %q", errInvalidToken, claims.Scope)
	}
	return claims.Subject, nil
}

// issueSession creates an access token and a refresh token for email.
func (a *API) issueSession(email string) (access, refresh string, err error) {
	access, err = a.issueJWT(email, scopeAccess, a.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh = uuid.New()
	a.refresh.Set(refresh, accountKey(email), refreshTokenTTL)
	return access, refresh, nil
}

// rotateRefresh consumes refresh and returns the account it belonged to.
func (a *API) rotateRefresh(refresh string) (string, bool) {
	item := a.refresh.Get(refresh)
	if item == nil {
		return "", false
	}
	a.refresh.Delete(refresh)
	return item.Value(), true
}

// revokeSessions drops every refresh token issued to email.
func (a *API) revokeSessions(email string) {
	key := accountKey(email)
	for token, item := range a.refresh.Items() {
		if item.Value() == key {
			a.refresh.Delete(token)
		}
	}
}

func (a *API) issueResetToken(email string) string {
	token := uuid.New()
	a.resets.Set(token, accountKey(email), resetTokenTTL)
	return token
}

func (a *API) consumeResetToken(token, email string) bool {
	item := a.resets.Get(token)
	if item == nil || item.Value() != accountKey(email) {
		return false
	}
	a.resets.Delete(token)
	return true
}
