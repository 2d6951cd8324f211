package authflow

import (
	"github.com/jmcleod/navauth/probe"
)

// Response envelopes differ by endpoint, so codes and tokens are located by
// ordered probing rather than by a fixed schema.
var (
	otpPaths     = append(probe.Keys("data", "otp", "code", "verificationCode"), probe.Path{})
	tokenPaths   = probe.Keys("data", "authToken", "token", "accessToken")
	accessPaths  = probe.Keys("data", "accessToken")
	refreshPaths = probe.Keys("data", "refreshToken")
	messagePaths = probe.Keys("data", "message")
)

// ExtractOTP finds a one-time code echoed in a response body.
func ExtractOTP(body []byte) probe.Result {
	return probe.FirstRaw(body, otpPaths...)
}

// ExtractToken finds a bearer token in a response body.
func ExtractToken(body []byte) probe.Result {
	return probe.FirstRaw(body, tokenPaths...)
}

func extractMessage(body []byte) string {
	return probe.FirstRaw(body, messagePaths...).Value
}
