package authflow

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jmcleod/navauth/cookies"
	"github.com/jmcleod/navauth/gateway"
	"github.com/jmcleod/navauth/internal/util"
	"github.com/jmcleod/navauth/probe"
)

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Phone           string `json:"phone"`
	AcceptTerms     bool   `json:"acceptTerms"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type resetRequest struct {
	Email           string `json:"email"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Submit validates the current form and, when valid, sends it. Validation
// and transport failures are reported through FieldErrors and the notifier;
// the only errors returned are ErrBusy and ErrClosed.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if !c.state.Open {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.inflight != 0 {
		c.mu.Unlock()
		return ErrBusy
	}
	mode := c.state.Mode
	if mode == ModeSuccess {
		c.mu.Unlock()
		return nil
	}
	fields := c.state.clone().Fields

	if errs := Validate(mode, fields); len(errs) > 0 {
		changed := c.applyErrorsLocked(errs)
		snap := c.state.clone()
		c.mu.Unlock()
		if changed {
			c.emit(snap)
		}
		if msg, ok := errs[FieldGeneral]; ok {
			c.notifier.Error(msg)
		}
		if msg, ok := errs[FieldOTP]; ok {
			c.notifier.Error(msg)
		}
		return nil
	}

	c.seq++
	id := c.seq
	c.inflight = id
	gen := c.gen
	c.applyErrorsLocked(FieldErrors{})
	c.state.Submitting = true
	snap := c.state.clone()
	c.mu.Unlock()
	c.emit(snap)

	defer c.finish(id, gen)

	switch mode {
	case ModeLogin:
		c.submitLogin(ctx, gen, fields)
	case ModeSignup:
		c.submitSignup(ctx, gen, fields)
	case ModeForgot:
		c.submitForgot(ctx, gen, fields)
	case ModeOTP:
		c.submitVerify(ctx, gen, fields)
	case ModeReset:
		c.submitReset(ctx, gen, fields)
	}
	return nil
}

// Resend asks for a new code. It is only available in the otp step once the
// countdown has reached zero.
func (c *Controller) Resend(ctx context.Context) error {
	c.mu.Lock()
	if !c.state.Open {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.Mode != ModeOTP {
		c.mu.Unlock()
		return ErrInvalidMode
	}
	if c.state.OTPCountdown > 0 {
		c.mu.Unlock()
		return ErrCountdownActive
	}
	if c.inflight != 0 {
		c.mu.Unlock()
		return ErrBusy
	}
	c.seq++
	id := c.seq
	c.inflight = id
	gen := c.gen
	email := c.email
	c.state.Submitting = true
	snap := c.state.clone()
	c.mu.Unlock()
	c.emit(snap)

	defer c.finish(id, gen)

	raw, err := gateway.Post[json.RawMessage](ctx, c.client, PathResendOTP, emailRequest{Email: email}, c.bearer()...)
	if err != nil {
		c.fail(gen, err)
		return nil
	}
	code := ExtractOTP(raw)
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return nil
	}
	if code.Found {
		c.state.InlineOTP = code.Value
	}
	c.startCountdownLocked()
	snap = c.state.clone()
	c.mu.Unlock()
	c.emit(snap)
	c.notifier.Success(messageOr(raw, "A new verification code has been sent"))
	return nil
}

// finish clears the in-flight marker and the submitting flag. It runs on
// every exit path of a submission.
func (c *Controller) finish(id, gen uint64) {
	c.mu.Lock()
	if c.inflight == id {
		c.inflight = 0
	}
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.state.Submitting = false
	snap := c.state.clone()
	c.mu.Unlock()
	c.emit(snap)
}

func (c *Controller) submitLogin(ctx context.Context, gen uint64, f Fields) {
	req := loginRequest{
		Email:      util.NormalizeInput(f[FieldEmail]),
		Password:   f[FieldPassword],
		RememberMe: f.Bool(FieldRememberMe),
	}
	raw, err := gateway.Post[json.RawMessage](ctx, c.client, PathLogin, req)
	if err != nil {
		c.fail(gen, err)
		return
	}
	c.enterOTP(gen, OriginLogin, req.Email, req.RememberMe, raw)
	c.refreshCSRF(ctx)
}

func (c *Controller) submitSignup(ctx context.Context, gen uint64, f Fields) {
	req := registerRequest{
		Email:           util.NormalizeInput(f[FieldEmail]),
		Password:        f[FieldPassword],
		ConfirmPassword: f[FieldConfirmPassword],
		FirstName:       util.NormalizeInput(f[FieldFirstName]),
		LastName:        util.NormalizeInput(f[FieldLastName]),
		Phone:           util.NormalizeInput(f[FieldPhone]),
		AcceptTerms:     f.Bool(FieldAcceptTerms),
	}
	raw, err := gateway.Post[json.RawMessage](ctx, c.client, PathRegister, req)
	if err != nil {
		c.fail(gen, err)
		return
	}
	c.enterOTP(gen, OriginSignup, req.Email, true, raw)
	c.refreshCSRF(ctx)
}

func (c *Controller) submitForgot(ctx context.Context, gen uint64, f Fields) {
	req := emailRequest{Email: util.NormalizeInput(f[FieldEmail])}
	raw, err := gateway.Post[json.RawMessage](ctx, c.client, PathForgetPassword, req)
	if err != nil {
		c.fail(gen, err)
		return
	}
	c.enterOTP(gen, OriginForgot, req.Email, false, raw)
}

// enterOTP moves to the otp step after a code was sent.
func (c *Controller) enterOTP(gen uint64, origin Origin, email string, remember bool, raw []byte) {
	token := ExtractToken(raw)
	code := ExtractOTP(raw)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.email = email
	c.rememberMe = remember
	c.provisional = ""
	if token.Found {
		c.provisional = token.Value
	}
	c.enterModeLocked(ModeOTP)
	c.state.OTPOrigin = origin
	if code.Found {
		c.state.InlineOTP = code.Value
	}
	c.startCountdownLocked()
	snap := c.state.clone()
	c.mu.Unlock()

	c.logger.Debug("code challenge started", slog.String("origin", string(origin)), slog.Bool("provisional_token", token.Found))
	c.emit(snap)
	c.notifier.Success(messageOr(raw, "Verification code sent to your email"))
}

func (c *Controller) submitVerify(ctx context.Context, gen uint64, f Fields) {
	c.mu.Lock()
	req := verifyRequest{Email: c.email, OTP: OTPDigits(f[FieldOTP])}
	origin := c.state.OTPOrigin
	remember := c.rememberMe
	provisional := c.provisional
	c.mu.Unlock()

	raw, err := gateway.Post[json.RawMessage](ctx, c.client, PathVerifyOTP, req, c.bearer()...)
	if err != nil {
		c.fail(gen, err)
		return
	}
	if !c.current(gen) {
		return
	}

	token := ExtractToken(raw).Value
	if token == "" {
		token = provisional
	}

	switch origin {
	case OriginForgot:
		c.store.SetLoggedIn(false)
		c.mu.Lock()
		if c.gen == gen {
			c.resetToken = token
			c.enterModeLocked(ModeReset)
			c.state.LoggedIn = false
		}
		snap := c.state.clone()
		c.mu.Unlock()
		c.emit(snap)
		c.notifier.Success(messageOr(raw, "Code verified. Choose a new password"))
	default:
		c.writeSessionCookies(raw)
		if token != "" {
			c.store.SetToken(token, origin == OriginSignup || remember)
		}
		c.store.SetLoggedIn(true)
		c.mu.Lock()
		if c.gen == gen {
			c.enterModeLocked(ModeSuccess)
			c.state.LoggedIn = true
			c.provisional = ""
			if origin == OriginLogin {
				c.successTimer = time.AfterFunc(c.timing.SuccessDelay, c.Close)
			}
		}
		snap := c.state.clone()
		c.mu.Unlock()
		c.emit(snap)
		c.notifier.Success(messageOr(raw, "Signed in successfully"))
		c.navigator.Navigate("/")
		c.logger.Info("session established", slog.String("origin", string(origin)))
	}
	c.refreshCSRF(ctx)
}

func (c *Controller) submitReset(ctx context.Context, gen uint64, f Fields) {
	c.mu.Lock()
	req := resetRequest{
		Email:           c.email,
		NewPassword:     f[FieldNewPassword],
		ConfirmPassword: f[FieldConfirmNewPassword],
	}
	token := c.resetToken
	c.mu.Unlock()

	var opts []gateway.RequestOption
	if token != "" {
		opts = append(opts, gateway.WithBearer(token))
	}
	raw, err := gateway.Post[json.RawMessage](ctx, c.client, PathResetPassword, req, opts...)
	if err != nil {
		c.fail(gen, err)
		return
	}

	// A reset invalidates every existing session, this one included.
	c.store.Clear()
	if c.cookies != nil {
		c.cookies.Delete(cookies.AccessToken, cookies.RefreshToken)
	}
	c.store.SetLoggedIn(false)

	c.mu.Lock()
	if c.gen == gen {
		c.enterModeLocked(ModeSuccess)
		c.state.LoggedIn = false
		c.resetToken = ""
	}
	snap := c.state.clone()
	c.mu.Unlock()
	c.emit(snap)
	c.notifier.Success(messageOr(raw, "Password reset successfully. Please log in again"))
	c.refreshCSRF(ctx)
}

// fail surfaces a transport error as a field error and a toast, unless the
// flow has moved on since the request started.
func (c *Controller) fail(gen uint64, err error) {
	msg := err.Error()
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		msg = gwErr.Message
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.logger.Debug("discarding result of superseded request", slog.String("error", msg))
		return
	}
	field := FieldGeneral
	if c.state.Mode == ModeOTP {
		field = FieldOTP
	}
	changed := c.applyErrorsLocked(FieldErrors{field: msg})
	snap := c.state.clone()
	c.mu.Unlock()

	c.logger.Debug("submission failed", slog.String("error", msg))
	if changed {
		c.emit(snap)
	}
	c.notifier.Error(msg)
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

// bearer sends the provisional token captured at the start of the challenge,
// when there is one.
func (c *Controller) bearer() []gateway.RequestOption {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.provisional == "" {
		return nil
	}
	return []gateway.RequestOption{gateway.WithBearer(c.provisional)}
}

// writeSessionCookies mirrors tokens returned in the body as client-side
// cookies, for backends whose own cookies are not visible to the client.
func (c *Controller) writeSessionCookies(raw []byte) {
	if c.cookies == nil {
		return
	}
	doc, err := probe.Decode(raw)
	if err != nil {
		return
	}
	if r := probe.First(doc, accessPaths...); r.Found {
		c.cookies.Set(cookies.AccessToken, r.Value, AccessCookieTTL)
	}
	if r := probe.First(doc, refreshPaths...); r.Found {
		c.cookies.Set(cookies.RefreshToken, r.Value, RefreshCookieTTL)
	}
}

func (c *Controller) refreshCSRF(ctx context.Context) {
	if c.csrf != nil {
		c.csrf.Fetch(ctx)
	}
}

func messageOr(raw []byte, fallback string) string {
	if msg := extractMessage(raw); msg != "" {
		return msg
	}
	return fallback
}
