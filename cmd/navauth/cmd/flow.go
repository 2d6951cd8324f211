package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/jmcleod/navauth/authflow"
)

// resendAnswer, typed at the code prompt, asks for a new code.
const resendAnswer = "r"

// terminalNotifier prints the flow's toasts.
type terminalNotifier struct {
	out io.Writer
}

func (n terminalNotifier) Success(msg string) {
	fmt.Fprintf(n.out, "\x1b[32m✔ %s\x1b[0m\n", msg)
}

func (n terminalNotifier) Error(msg string) {
	fmt.Fprintf(n.out, "\x1b[31m✘ %s\x1b[0m\n", msg)
}

// runFlow drives an open controller to the success step by prompting for
// whatever the current step needs.
func runFlow(ctx context.Context, flow *authflow.Controller, p prompter, out io.Writer) error {
	for {
		st := flow.State()
		if st.Mode == authflow.ModeSuccess {
			return nil
		}
		if !st.Open {
			return authflow.ErrClosed
		}
		var err error
		switch st.Mode {
		case authflow.ModeLogin:
			err = askLogin(flow, p)
		case authflow.ModeSignup:
			err = askSignup(flow, p)
		case authflow.ModeForgot:
			err = askFields(flow, p, authflow.FieldEmail)
		case authflow.ModeReset:
			err = askFields(flow, p, authflow.FieldNewPassword, authflow.FieldConfirmNewPassword)
		case authflow.ModeOTP:
			var resend bool
			resend, err = askCode(flow, p, out)
			if err == nil && resend {
				if rerr := flow.Resend(ctx); errors.Is(rerr, authflow.ErrCountdownActive) {
					fmt.Fprintf(out, "You can request a new code in %ds\n", flow.State().OTPCountdown)
				} else if rerr != nil {
					return rerr
				}
				continue
			}
		}
		if err != nil {
			return err
		}
		if err := flow.Submit(ctx); err != nil {
			return err
		}
		printFieldErrors(out, flow.State().FieldErrors)
	}
}

var fieldPrompts = map[string]string{
	authflow.FieldEmail:              "Email",
	authflow.FieldPassword:           "Password",
	authflow.FieldConfirmPassword:    "Confirm password",
	authflow.FieldFirstName:          "First name",
	authflow.FieldLastName:           "Last name",
	authflow.FieldPhone:              "Phone",
	authflow.FieldNewPassword:        "New password",
	authflow.FieldConfirmNewPassword: "Confirm new password",
}

var secretFields = []string{
	authflow.FieldPassword,
	authflow.FieldConfirmPassword,
	authflow.FieldNewPassword,
	authflow.FieldConfirmNewPassword,
}

// askFields prompts for each named field. Fields that are already filled and
// have no error are kept.
func askFields(flow *authflow.Controller, p prompter, names ...string) error {
	st := flow.State()
	for _, name := range names {
		_, failed := st.FieldErrors[name]
		if st.Fields[name] != "" && !failed && !slices.Contains(secretFields, name) {
			continue
		}
		var (
			v   string
			err error
		)
		if slices.Contains(secretFields, name) {
			v, err = p.Password(fieldPrompts[name])
		} else {
			v, err = p.Input(fieldPrompts[name], "")
		}
		if err != nil {
			return err
		}
		flow.SetField(name, v)
	}
	return nil
}

func askLogin(flow *authflow.Controller, p prompter) error {
	if err := askFields(flow, p, authflow.FieldEmail, authflow.FieldPassword); err != nil {
		return err
	}
	remember, err := p.Confirm("Remember me on this device?", flow.State().Fields.Bool(authflow.FieldRememberMe))
	if err != nil {
		return err
	}
	flow.SetCheck(authflow.FieldRememberMe, remember)
	return nil
}

func askSignup(flow *authflow.Controller, p prompter) error {
	err := askFields(flow, p,
		authflow.FieldFirstName,
		authflow.FieldLastName,
		authflow.FieldEmail,
		authflow.FieldPhone,
		authflow.FieldPassword,
		authflow.FieldConfirmPassword,
	)
	if err != nil {
		return err
	}
	accept, err := p.Confirm("Do you accept the terms and conditions?", false)
	if err != nil {
		return err
	}
	flow.SetCheck(authflow.FieldAcceptTerms, accept)
	return nil
}

// askCode prompts for the one-time code and reports whether the user asked
// for a new one instead.
func askCode(flow *authflow.Controller, p prompter, out io.Writer) (bool, error) {
	st := flow.State()
	if st.InlineOTP != "" {
		fmt.Fprintf(out, "Development code: %s\n", st.InlineOTP)
	}
	help := fmt.Sprintf("Type %q to request a new code once the countdown ends.", resendAnswer)
	v, err := p.Input("Verification code", help)
	if err != nil {
		return false, err
	}
	if strings.EqualFold(strings.TrimSpace(v), resendAnswer) {
		return true, nil
	}
	flow.SetField(authflow.FieldOTP, v)
	return false, nil
}

// printFieldErrors prints per-input errors. General and code errors are
// already shown by the notifier.
func printFieldErrors(out io.Writer, errs authflow.FieldErrors) {
	names := make([]string, 0, len(errs))
	for name := range errs {
		if name == authflow.FieldGeneral || name == authflow.FieldOTP {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		label := fieldPrompts[name]
		if label == "" {
			label = name
		}
		fmt.Fprintf(out, "  %s: %s\n", label, errs[name])
	}
}
