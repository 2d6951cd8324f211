package authflow

import (
	"errors"
	"maps"
	"time"
)

// Mode is a step of the credential flow.
type Mode string

const (
	ModeLogin   Mode = "login"
	ModeSignup  Mode = "signup"
	ModeForgot  Mode = "forgot"
	ModeOTP     Mode = "otp"
	ModeReset   Mode = "reset"
	ModeSuccess Mode = "success"
)

// Origin records which flow started the current one-time-code challenge.
// The zero value means no flow has.
type Origin string

const (
	OriginNone   Origin = ""
	OriginLogin  Origin = "login"
	OriginSignup Origin = "signup"
	OriginForgot Origin = "forgot"
)

// Form field names.
const (
	FieldEmail              = "email"
	FieldPassword           = "password"
	FieldConfirmPassword    = "confirmPassword"
	FieldFirstName          = "firstName"
	FieldLastName           = "lastName"
	FieldPhone              = "phone"
	FieldAcceptTerms        = "acceptTerms"
	FieldRememberMe         = "rememberMe"
	FieldOTP                = "otp"
	FieldNewPassword        = "newPassword"
	FieldConfirmNewPassword = "confirmNewPassword"

	// FieldGeneral holds errors that belong to no single input.
	FieldGeneral = "general"
)

// Backend endpoints driven by the controller.
const (
	PathLogin          = "/api/auth/login"
	PathRegister       = "/api/auth/register"
	PathForgetPassword = "/api/auth/forget-password"
	PathVerifyOTP      = "/api/auth/verify-otp"
	PathResendOTP      = "/api/auth/resend-otp"
	PathResetPassword  = "/api/auth/reset-password"
)

// Lifetimes of the fallback session cookies written after verification.
const (
	AccessCookieTTL  = time.Hour
	RefreshCookieTTL = 30 * 24 * time.Hour
)

var (
	// ErrBusy is returned when a submission is already in flight.
	ErrBusy = errors.New("authflow: submission in progress")
	// ErrClosed is returned when the flow is not open.
	ErrClosed = errors.New("authflow: flow is closed")
	// ErrInvalidMode is returned for a mode that cannot be entered directly.
	ErrInvalidMode = errors.New("authflow: invalid mode")
	// ErrCountdownActive is returned by Resend while the countdown runs.
	ErrCountdownActive = errors.New("authflow: resend not available yet")
)

// Fields maps input names to their raw values. Checkbox inputs hold
// "true" or "false".
type Fields map[string]string

// Bool reports whether the named checkbox is checked.
func (f Fields) Bool(name string) bool {
	return f[name] == "true"
}

// FieldErrors maps input names (or FieldGeneral) to messages.
type FieldErrors map[string]string

// Equal reports whether both hold the same messages.
func (e FieldErrors) Equal(other FieldErrors) bool {
	return maps.Equal(e, other)
}

// State is a snapshot of the flow.
type State struct {
	Open         bool
	Mode         Mode
	Fields       Fields
	FieldErrors  FieldErrors
	Submitting   bool
	OTPOrigin    Origin
	OTPCountdown int
	// InlineOTP is a code echoed by the backend, for display only.
	InlineOTP string
	LoggedIn  bool
}

func (s State) clone() State {
	s.Fields = maps.Clone(s.Fields)
	s.FieldErrors = maps.Clone(s.FieldErrors)
	if s.Fields == nil {
		s.Fields = Fields{}
	}
	if s.FieldErrors == nil {
		s.FieldErrors = FieldErrors{}
	}
	return s
}

// Notifier shows transient messages to the user.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Navigator moves the user to another location.
type Navigator interface {
	Navigate(path string)
}

type nopNotifier struct{}

func (nopNotifier) Success(string) {}
func (nopNotifier) Error(string)   {}

type nopNavigator struct{}

func (nopNavigator) Navigate(string) {}

// Timing holds the flow's delays.
type Timing struct {
	// CountdownSeconds is the resend lockout after a code is sent.
	CountdownSeconds int
	// Tick is the countdown period.
	Tick time.Duration
	// CloseDelay is how long after Close the form is reset.
	CloseDelay time.Duration
	// SuccessDelay is how long the login success step stays before closing.
	SuccessDelay time.Duration
}

// DefaultTiming is used when no Timing option is given.
var DefaultTiming = Timing{
	CountdownSeconds: 30,
	Tick:             time.Second,
	CloseDelay:       300 * time.Millisecond,
	SuccessDelay:     1500 * time.Millisecond,
}
