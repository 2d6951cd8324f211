package mockapi

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/jmcleod/navauth/internal/util"
)

const minPasswordLen = 8

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Register handles POST /api/auth/register. The account is created
// unverified and a signup code is issued.
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[RegisterRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	email := util.NormalizeInput(req.Email)
	switch {
	case !emailPattern.MatchString(email):
		writeError(w, http.StatusBadRequest, "A valid email is required")
		return
	case len(req.Password) < minPasswordLen:
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	case req.Password != req.ConfirmPassword:
		writeError(w, http.StatusBadRequest, "Passwords do not match")
		return
	case !req.AcceptTerms:
		writeError(w, http.StatusBadRequest, "You must accept the terms and conditions")
		return
	}

	salt, verifier, err := a.newVerifier(req.Password)
	if err != nil {
		writeInternalError(w, "failed to register account", err)
		return
	}
	err = a.accounts.create(accountRecord{
		Email:     email,
		FirstName: util.NormalizeInput(req.FirstName),
		LastName:  util.NormalizeInput(req.LastName),
		Phone:     util.NormalizeInput(req.Phone),
		Salt:      salt,
		Verifier:  verifier,
		CreatedAt: time.Now().UTC(),
	})
	if errors.Is(err, errAccountExists) {
		writeError(w, http.StatusConflict, "An account with this email already exists")
		return
	}
	if err != nil {
		writeInternalError(w, "failed to register account", err)
		return
	}

	code, err := a.issueOTP(email, purposeSignup)
	if err != nil {
		writeInternalError(w, "failed to issue verification code", err)
		return
	}
	a.audit.logEvent(AuditRegister, r, email)
	a.audit.logEvent(AuditOTPIssued, r, email, slog.String("purpose", string(purposeSignup)))

	resp := RegisterResponse{
		Success: true,
		Message: "Account created. Check your email for the verification code",
		Data:    RegisterData{Email: email},
	}
	if a.echoOTP {
		resp.Data.OTP = code
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Login handles POST /api/auth/login. Valid credentials start a code
// challenge and return a short-lived provisional token.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[LoginRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	key := accountKey(req.Email)
	if blocked, retryAfter := a.rateLimiter.check(key); blocked {
		a.audit.logEvent(AuditLoginRateLimited, r, req.Email)
		writeRateLimited(w, retryAfter)
		return
	}

	rec, err := a.accounts.get(req.Email)
	if err != nil || !a.checkPassword(rec, req.Password) {
		a.rateLimiter.recordFailure(key)
		a.audit.logFailure(AuditLoginFailure, r, "invalid credentials", slog.String("account", key))
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	a.rateLimiter.recordSuccess(key)

	code, err := a.issueOTP(rec.Email, purposeLogin)
	if err != nil {
		writeInternalError(w, "failed to issue verification code", err)
		return
	}
	provisional, err := a.issueJWT(rec.Email, scopeProvisional, provisionalTTL)
	if err != nil {
		writeInternalError(w, "failed to issue token", err)
		return
	}
	a.audit.logEvent(AuditLoginChallenge, r, rec.Email)
	a.audit.logEvent(AuditOTPIssued, r, rec.Email, slog.String("purpose", string(purposeLogin)))

	resp := LoginResponse{
		Message: "Verification code sent to your email",
		Token:   provisional,
	}
	if a.echoOTP {
		resp.OTP = code
	}
	writeJSON(w, http.StatusOK, resp)
}

// ForgetPassword handles POST /api/auth/forget-password. In echo mode the
// whole body is the code as a bare JSON string.
func (a *API) ForgetPassword(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[EmailRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	rec, err := a.accounts.get(req.Email)
	if err != nil {
		a.audit.logFailure(AuditPasswordResetFail, r, "unknown account", slog.String("account", accountKey(req.Email)))
		writeError(w, http.StatusNotFound, "No account found with this email")
		return
	}
	code, err := a.issueOTP(rec.Email, purposeForgot)
	if err != nil {
		writeInternalError(w, "failed to issue verification code", err)
		return
	}
	a.audit.logEvent(AuditOTPIssued, r, rec.Email, slog.String("purpose", string(purposeForgot)))

	if a.echoOTP {
		writeJSON(w, http.StatusOK, code)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Verification code sent to your email"})
}

// VerifyOTP handles POST /api/auth/verify-otp. A login or signup code
// establishes a session; a forgot-password code returns a reset token.
func (a *API) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[VerifyOTPRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	// A provisional token, when sent, must belong to the same account.
	// Other bearer tokens (a stale session) are ignored.
	if tok := bearerToken(r); tok != "" {
		if subject, err := a.parseJWT(tok, scopeProvisional); err == nil && subject != accountKey(req.Email) {
			a.audit.logFailure(AuditOTPFailure, r, "provisional token for another account", slog.String("account", accountKey(req.Email)))
			writeError(w, http.StatusUnauthorized, "Invalid verification session")
			return
		}
	}

	entry, ok := a.consumeOTP(req.Email, strings.TrimSpace(req.OTP))
	if !ok {
		a.audit.logFailure(AuditOTPFailure, r, "invalid or expired code", slog.String("account", accountKey(req.Email)))
		writeError(w, http.StatusBadRequest, "Invalid or expired OTP")
		return
	}
	a.audit.logEvent(AuditOTPVerified, r, req.Email, slog.String("purpose", string(entry.Purpose)))

	if entry.Purpose == purposeForgot {
		writeJSON(w, http.StatusOK, VerifyResetResponse{
			Success: true,
			Message: "Code verified. Choose a new password",
			Token:   a.issueResetToken(req.Email),
		})
		return
	}

	if err := a.accounts.update(req.Email, func(rec *accountRecord) { rec.Verified = true }); err != nil {
		writeError(w, http.StatusNotFound, "No account found with this email")
		return
	}
	rec, _ := a.accounts.get(req.Email)
	access, refresh, err := a.issueSession(rec.Email)
	if err != nil {
		writeInternalError(w, "failed to issue session", err)
		return
	}
	writeSessionCookies(w, r, access, refresh, a.accessTTL)
	writeJSON(w, http.StatusOK, VerifySessionResponse{
		Success: true,
		Message: "Signed in successfully",
		Data: VerifySessionData{
			Token:        access,
			AccessToken:  access,
			RefreshToken: refresh,
			User:         profileOf(rec),
		},
	})
}

// ResendOTP handles POST /api/auth/resend-otp. It only reissues a code
// for an account that already has one pending.
func (a *API) ResendOTP(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[EmailRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	pending, ok := a.pendingOTP(req.Email)
	if !ok {
		writeError(w, http.StatusBadRequest, "No verification in progress for this email")
		return
	}
	code, err := a.issueOTP(req.Email, pending.Purpose)
	if err != nil {
		writeInternalError(w, "failed to issue verification code", err)
		return
	}
	a.audit.logEvent(AuditOTPIssued, r, req.Email, slog.String("purpose", string(pending.Purpose)), slog.Bool("resend", true))

	resp := ResendResponse{Message: "A new verification code has been sent"}
	if a.echoOTP {
		resp.Data.VerificationCode = code
	}
	writeJSON(w, http.StatusOK, resp)
}

// ResetPassword handles POST /api/auth/reset-password. The bearer token must
// be the reset token issued for the same account. Every session of the
// account is revoked.
func (a *API) ResetPassword(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ResetPasswordRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	switch {
	case len(req.NewPassword) < minPasswordLen:
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	case req.NewPassword != req.ConfirmPassword:
		writeError(w, http.StatusBadRequest, "Passwords do not match")
		return
	}
	if !a.consumeResetToken(bearerToken(r), req.Email) {
		a.audit.logFailure(AuditPasswordResetFail, r, "invalid reset token", slog.String("account", accountKey(req.Email)))
		writeError(w, http.StatusUnauthorized, "Reset session expired. Start again")
		return
	}

	salt, verifier, err := a.newVerifier(req.NewPassword)
	if err != nil {
		writeInternalError(w, "failed to reset password", err)
		return
	}
	if err := a.accounts.update(req.Email, func(rec *accountRecord) {
		rec.Salt = salt
		rec.Verifier = verifier
	}); err != nil {
		writeError(w, http.StatusNotFound, "No account found with this email")
		return
	}
	a.revokeSessions(req.Email)
	a.rateLimiter.recordSuccess(accountKey(req.Email))
	clearSessionCookies(w, r)
	a.audit.logEvent(AuditPasswordReset, r, req.Email)

	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Password reset successfully. Please log in again"})
}

// RefreshToken handles POST /api/auth/refresh-token. The refresh cookie is
// rotated and the new access token is returned as the whole of data.
func (a *API) RefreshToken(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(refreshCookieName)
	if err != nil || c.Value == "" {
		a.audit.logFailure(AuditRefreshFailure, r, "missing refresh cookie")
		writeError(w, http.StatusUnauthorized, "Refresh token required")
		return
	}
	email, ok := a.rotateRefresh(c.Value)
	if !ok {
		a.audit.logFailure(AuditRefreshFailure, r, "unknown refresh token")
		clearSessionCookies(w, r)
		writeError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}
	access, refresh, err := a.issueSession(email)
	if err != nil {
		writeInternalError(w, "failed to issue session", err)
		return
	}
	writeSessionCookies(w, r, access, refresh, a.accessTTL)
	a.audit.logEvent(AuditSessionRefreshed, r, email)
	writeJSON(w, http.StatusOK, RefreshResponse{StatusCode: http.StatusOK, Data: access})
}

// Logout handles POST /api/auth/logout. It always succeeds.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	var email string
	if c, err := r.Cookie(refreshCookieName); err == nil && c.Value != "" {
		email, _ = a.rotateRefresh(c.Value)
	}
	if email == "" {
		if subject, err := a.parseJWT(bearerToken(r), scopeAccess); err == nil {
			email = subject
		}
	}
	if email != "" {
		a.revokeSessions(email)
		a.audit.logEvent(AuditLogout, r, email)
	}
	clearSessionCookies(w, r)
	clearCSRFCookie(w, r)
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Logged out"})
}

// Me handles GET /api/auth/me.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	rec, err := a.accounts.get(accountFromContext(r.Context()))
	if err != nil {
		writeError(w, http.StatusNotFound, "No account found")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool        `json:"success"`
		Data    UserProfile `json:"data"`
	}{Success: true, Data: profileOf(rec)})
}

func profileOf(rec accountRecord) UserProfile {
	return UserProfile{
		Email:     rec.Email,
		FirstName: rec.FirstName,
		LastName:  rec.LastName,
		Phone:     rec.Phone,
	}
}
