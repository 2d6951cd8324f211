package mockapi

import (
	"crypto/subtle"

	"github.com/jmcleod/navauth/internal/util"
)

const otpLen = 6

// otpPurpose is the flow a code was issued for.
type otpPurpose string

const (
	purposeLogin  otpPurpose = "login"
	purposeSignup otpPurpose = "signup"
	purposeForgot otpPurpose = "forgot"
)

type otpEntry struct {
	Code    string
	Purpose otpPurpose
}

// issueOTP stores a new code for email, replacing any pending one.
func (a *API) issueOTP(email string, purpose otpPurpose) (string, error) {
	code, err := util.RandomDigits(otpLen)
	if err != nil {
		return "", err
	}
	a.otps.Set(accountKey(email), otpEntry{Code: code, Purpose: purpose}, a.otpTTL)
	return code, nil
}

// pendingOTP returns the unexpired code for email, if any.
func (a *API) pendingOTP(email string) (otpEntry, bool) {
	item := a.otps.Get(accountKey(email))
	if item == nil {
		return otpEntry{}, false
	}
	return item.Value(), true
}

// consumeOTP checks code against the pending entry and removes it on match.
func (a *API) consumeOTP(email, code string) (otpEntry, bool) {
	entry, ok := a.pendingOTP(email)
	if !ok {
		return otpEntry{}, false
	}
	if subtle.ConstantTimeCompare([]byte(entry.Code), []byte(code)) != 1 {
		return otpEntry{}, false
	}
	a.otps.Delete(accountKey(email))
	return entry, true
}
