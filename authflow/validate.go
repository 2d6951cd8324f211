package authflow

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/jmcleod/navauth/internal/util"
)

// Validation messages.
const (
	MsgEmailRequired    = "Email is required"
	MsgEmailInvalid     = "Please enter a valid email address"
	MsgPasswordRequired = "Password is required"
	MsgPasswordWeak     = "Password must be at least 8 characters and include an uppercase letter, a lowercase letter and a number"
	MsgPasswordMismatch = "Passwords do not match"
	MsgFirstName        = "First name is required"
	MsgLastName         = "Last name is required"
	MsgPhoneRequired    = "Phone number is required"
	MsgPhoneInvalid     = "Please enter a valid phone number"
	MsgTerms            = "You must accept the terms and conditions"
	MsgOTP              = "Please enter the 6-digit code"
)

const minPasswordLen = 8

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9\s\-().]{6,19}$`)
)

// Validate checks fields for mode and returns the errors found. An empty
// result means the form may be submitted.
func Validate(mode Mode, fields Fields) FieldErrors {
	errs := FieldErrors{}
	switch mode {
	case ModeLogin:
		validateEmail(errs, fields)
		if fields[FieldPassword] == "" {
			errs[FieldPassword] = MsgPasswordRequired
		}
	case ModeSignup:
		validateEmail(errs, fields)
		validateStrength(errs, FieldPassword, fields[FieldPassword])
		if fields[FieldPassword] != fields[FieldConfirmPassword] {
			errs[FieldConfirmPassword] = MsgPasswordMismatch
		}
		if util.NormalizeInput(fields[FieldFirstName]) == "" {
			errs[FieldFirstName] = MsgFirstName
		}
		if util.NormalizeInput(fields[FieldLastName]) == "" {
			errs[FieldLastName] = MsgLastName
		}
		phone := strings.TrimSpace(fields[FieldPhone])
		switch {
		case phone == "":
			errs[FieldPhone] = MsgPhoneRequired
		case !phonePattern.MatchString(phone):
			errs[FieldPhone] = MsgPhoneInvalid
		}
		if !fields.Bool(FieldAcceptTerms) {
			errs[FieldGeneral] = MsgTerms
		}
	case ModeForgot:
		validateEmail(errs, fields)
	case ModeOTP:
		if len(OTPDigits(fields[FieldOTP])) != 6 {
			errs[FieldOTP] = MsgOTP
		}
	case ModeReset:
		validateStrength(errs, FieldNewPassword, fields[FieldNewPassword])
		if fields[FieldNewPassword] != fields[FieldConfirmNewPassword] {
			errs[FieldConfirmNewPassword] = MsgPasswordMismatch
		}
	}
	return errs
}

// OTPDigits strips everything but ASCII digits from s.
func OTPDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StrongPassword reports whether p has at least 8 characters including an
// upper-case letter, a lower-case letter and a digit.
func StrongPassword(p string) bool {
	if len([]rune(p)) < minPasswordLen {
		return false
	}
	var upper, lower, digit bool
	for _, r := range p {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

func validateEmail(errs FieldErrors, fields Fields) {
	email := util.NormalizeInput(fields[FieldEmail])
	switch {
	case email == "":
		errs[FieldEmail] = MsgEmailRequired
	case !emailPattern.MatchString(email):
		errs[FieldEmail] = MsgEmailInvalid
	}
}

func validateStrength(errs FieldErrors, field, p string) {
	switch {
	case p == "":
		errs[field] = MsgPasswordRequired
	case !StrongPassword(p):
		errs[field] = MsgPasswordWeak
	}
}
