package cmd

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/navauth/authflow"
	"github.com/jmcleod/navauth/client"
	"github.com/jmcleod/navauth/internal/mockapi"
	"github.com/jmcleod/navauth/internal/util"
)

func TestMain(m *testing.M) {
	logger = slog.New(slog.DiscardHandler)
	os.Exit(m.Run())
}

// scripted answers prompts in order. An answer may be a func() string for
// values only known mid-flow, such as an echoed code.
type scripted struct {
	answers []any
	asked   []string
}

var errScriptExhausted = errors.New("script exhausted")

func (s *scripted) next(message string) (any, error) {
	s.asked = append(s.asked, message)
	if len(s.answers) == 0 {
		return nil, errScriptExhausted
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	if fn, ok := a.(func() string); ok {
		return fn(), nil
	}
	return a, nil
}

func (s *scripted) Input(message, _ string) (string, error) {
	a, err := s.next(message)
	if err != nil {
		return "", err
	}
	return a.(string), nil
}

func (s *scripted) Password(message string) (string, error) {
	return s.Input(message, "")
}

func (s *scripted) Confirm(message string, _ bool) (bool, error) {
	a, err := s.next(message)
	if err != nil {
		return false, err
	}
	return a.(bool), nil
}

func newFlow(t *testing.T) (*authflow.Controller, *client.Client, *bytes.Buffer) {
	t.Helper()
	a := mockapi.New(
		mockapi.WithKDFParams(util.FastArgon2idParams()),
		mockapi.WithLogger(logger),
	)
	srv := httptest.NewServer(a.Router())
	t.Cleanup(func() {
		srv.Close()
		a.Close()
	})

	cl, err := client.New(srv.URL)
	require.NoError(t, err)
	<-cl.Boot(t.Context())

	out := &bytes.Buffer{}
	flow := authflow.New(cl.Gateway, cl.Store,
		authflow.WithCSRF(cl.CSRF),
		authflow.WithCookies(cl.Jar),
		authflow.WithNotifier(terminalNotifier{out: out}),
		authflow.WithNavigator(commandNavigator{}),
		authflow.WithTiming(authflow.Timing{
			CountdownSeconds: 30,
			Tick:             time.Second,
			CloseDelay:       time.Millisecond,
			SuccessDelay:     time.Hour,
		}),
	)
	t.Cleanup(func() {
		flow.Shutdown()
		cl.Close()
	})
	return flow, cl, out
}

func inlineCode(flow *authflow.Controller) func() string {
	return func() string { return flow.State().InlineOTP }
}

func signupScript(flow *authflow.Controller) []any {
	return []any{
		"Ada", "Lovelace", "ada@example.com", "+1 555 010 9999",
		"Sup3rSecret", "Sup3rSecret",
		true,
		inlineCode(flow),
	}
}

func TestRunFlowSignup(t *testing.T) {
	flow, cl, out := newFlow(t)
	require.NoError(t, flow.Open(authflow.ModeSignup))

	p := &scripted{answers: signupScript(flow)}
	require.NoError(t, runFlow(t.Context(), flow, p, out))

	assert.Equal(t, authflow.ModeSuccess, flow.State().Mode)
	assert.True(t, cl.Store.LoggedIn())
	assert.NotEmpty(t, cl.Store.Token())
	assert.Contains(t, out.String(), "Development code: ")
	assert.Empty(t, p.answers)
}

func TestRunFlowRepromptsAfterValidationErrors(t *testing.T) {
	flow, _, out := newFlow(t)
	require.NoError(t, flow.Open(authflow.ModeSignup))

	p := &scripted{answers: []any{
		"Ada", "Lovelace", "ada@example.com", "+1 555 010 9999",
		"Sup3rSecret", "Different1",
		true,
		// Only the passwords and the terms are asked again.
		"Sup3rSecret", "Sup3rSecret",
		true,
		inlineCode(flow),
	}}
	require.NoError(t, runFlow(t.Context(), flow, p, out))
	assert.Equal(t, authflow.ModeSuccess, flow.State().Mode)
	assert.Contains(t, out.String(), "Confirm password: "+authflow.MsgPasswordMismatch)
}

func TestRunFlowLoginAfterWrongPassword(t *testing.T) {
	flow, cl, out := newFlow(t)
	require.NoError(t, flow.Open(authflow.ModeSignup))
	require.NoError(t, runFlow(t.Context(), flow, &scripted{answers: signupScript(flow)}, out))
	require.NoError(t, cl.Logout(t.Context()))

	flow.Close()
	require.NoError(t, flow.Open(authflow.ModeLogin))
	out.Reset()
	p := &scripted{answers: []any{
		"ada@example.com", "Wrong1234", false,
		"Sup3rSecret", true,
		inlineCode(flow),
	}}
	require.NoError(t, runFlow(t.Context(), flow, p, out))

	assert.Contains(t, out.String(), "Invalid credentials")
	assert.True(t, cl.Store.LoggedIn())
	assert.True(t, cl.Store.Session().Persisted, "remember me was accepted on the second attempt")
}

func TestRunFlowResendDuringCountdown(t *testing.T) {
	flow, _, out := newFlow(t)
	require.NoError(t, flow.Open(authflow.ModeSignup))

	script := signupScript(flow)
	code := script[len(script)-1]
	script = append(script[:len(script)-1], "r", code)
	require.NoError(t, runFlow(t.Context(), flow, &scripted{answers: script}, out))
	assert.Contains(t, out.String(), "You can request a new code in")
}

func TestRunFlowStopsWhenPromptFails(t *testing.T) {
	flow, _, out := newFlow(t)
	require.NoError(t, flow.Open(authflow.ModeForgot))

	err := runFlow(t.Context(), flow, &scripted{}, out)
	require.ErrorIs(t, err, errScriptExhausted)
}

func TestRunFlowClosed(t *testing.T) {
	flow, _, out := newFlow(t)
	err := runFlow(t.Context(), flow, &scripted{}, out)
	require.ErrorIs(t, err, authflow.ErrClosed)
}

func TestPrintFieldErrors(t *testing.T) {
	var out bytes.Buffer
	printFieldErrors(&out, authflow.FieldErrors{
		authflow.FieldPhone:   authflow.MsgPhoneInvalid,
		authflow.FieldEmail:   authflow.MsgEmailInvalid,
		authflow.FieldGeneral: authflow.MsgTerms,
		authflow.FieldOTP:     authflow.MsgOTP,
	})
	assert.Equal(t,
		"  Email: "+authflow.MsgEmailInvalid+"\n  Phone: "+authflow.MsgPhoneInvalid+"\n",
		out.String())
}
