package refresh

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// NeedsRefresh reports whether token is a JWT whose exp claim falls within
// skew of now. The signature is not verified; opaque tokens and tokens
// without exp never need a refresh by this rule.
func NeedsRefresh(token string, skew time.Duration) bool {
	return needsRefreshAt(token, skew, time.Now())
}

func needsRefreshAt(token string, skew time.Duration, now time.Time) bool {
	exp, ok := Expiry(token)
	if !ok {
		return false
	}
	return exp.Sub(now) < skew
}

// Expiry returns the exp claim of a JWT without verifying its signature.
// It reports false for opaque tokens and tokens without exp.
func Expiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
