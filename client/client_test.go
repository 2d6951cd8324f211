package client_test

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/navauth/authflow"
	"github.com/jmcleod/navauth/client"
	"github.com/jmcleod/navauth/cookies"
	"github.com/jmcleod/navauth/gateway"
	"github.com/jmcleod/navauth/internal/mockapi"
	"github.com/jmcleod/navauth/internal/util"
	"github.com/jmcleod/navauth/route"
	"github.com/jmcleod/navauth/storage"
	bboltstorage "github.com/jmcleod/navauth/storage/bbolt"
	"github.com/jmcleod/navauth/storage/memory"
)

const (
	testEmail    = "ada@example.com"
	testPassword = "Sup3rSecret"
)

var fastTiming = authflow.Timing{
	CountdownSeconds: 30,
	Tick:             time.Second,
	CloseDelay:       time.Millisecond,
	SuccessDelay:     time.Hour,
}

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	a := mockapi.New(
		mockapi.WithKDFParams(util.FastArgon2idParams()),
		mockapi.WithLogger(slog.New(slog.DiscardHandler)),
	)
	srv := httptest.NewServer(a.Router())
	t.Cleanup(func() {
		srv.Close()
		a.Close()
	})
	return srv
}

type navigations struct{ paths []string }

func (n *navigations) Navigate(path string) { n.paths = append(n.paths, path) }

type toasts struct{ errors []string }

func (n *toasts) Success(string) {}

func (n *toasts) Error(msg string) { n.errors = append(n.errors, msg) }

func (n *toasts) last() (string, bool) {
	if len(n.errors) == 0 {
		return "", false
	}
	return n.errors[len(n.errors)-1], true
}

type harness struct {
	*client.Client
	flow  *authflow.Controller
	nav   *navigations
	toast *toasts
}

func newHarness(t *testing.T, baseURL string, repo storage.Repository, wk []byte) *harness {
	t.Helper()
	c, err := client.New(baseURL, client.WithRepository(repo, wk))
	require.NoError(t, err)
	h := &harness{Client: c, nav: &navigations{}, toast: &toasts{}}
	h.flow = authflow.New(c.Gateway, c.Store,
		authflow.WithCSRF(c.CSRF),
		authflow.WithCookies(c.Jar),
		authflow.WithNotifier(h.toast),
		authflow.WithNavigator(h.nav),
		authflow.WithTiming(fastTiming),
	)
	t.Cleanup(func() {
		h.flow.Shutdown()
		c.Close()
	})
	<-c.Boot(t.Context())
	return h
}

// open starts a fresh flow in mode, closing any previous one.
func (h *harness) open(t *testing.T, mode authflow.Mode) {
	t.Helper()
	h.flow.Close()
	require.NoError(t, h.flow.Open(mode))
}

func (h *harness) signup(t *testing.T) {
	t.Helper()
	h.open(t, authflow.ModeSignup)
	h.flow.SetField(authflow.FieldEmail, testEmail)
	h.flow.SetField(authflow.FieldPassword, testPassword)
	h.flow.SetField(authflow.FieldConfirmPassword, testPassword)
	h.flow.SetField(authflow.FieldFirstName, "Ada")
	h.flow.SetField(authflow.FieldLastName, "Lovelace")
	h.flow.SetField(authflow.FieldPhone, "+44 20 7946 0000")
	h.flow.SetCheck(authflow.FieldAcceptTerms, true)
	require.NoError(t, h.flow.Submit(t.Context()))
	h.verify(t)
}

func (h *harness) login(t *testing.T, remember bool) {
	t.Helper()
	h.open(t, authflow.ModeLogin)
	h.flow.SetField(authflow.FieldEmail, testEmail)
	h.flow.SetField(authflow.FieldPassword, testPassword)
	h.flow.SetCheck(authflow.FieldRememberMe, remember)
	require.NoError(t, h.flow.Submit(t.Context()))
	h.verify(t)
}

// verify submits the code the backend echoed into the otp step.
func (h *harness) verify(t *testing.T) {
	t.Helper()
	st := h.flow.State()
	require.Equal(t, authflow.ModeOTP, st.Mode, "errors: %v", st.FieldErrors)
	require.Len(t, st.InlineOTP, 6)
	h.flow.SetField(authflow.FieldOTP, st.InlineOTP)
	require.NoError(t, h.flow.Submit(t.Context()))
}

func memoryStorage(t *testing.T) (storage.Repository, []byte) {
	t.Helper()
	wk, err := util.NewAESKey()
	require.NoError(t, err)
	return memory.NewRepository(), wk
}

func TestBootFetchesCSRFTicket(t *testing.T) {
	srv := setupServer(t)
	repo, wk := memoryStorage(t)
	h := newHarness(t, srv.URL, repo, wk)

	ticket := h.CSRF.Ticket()
	require.True(t, ticket.Complete())
	assert.Equal(t, "X-CSRF-Token", ticket.HeaderName)
	v, ok := h.Jar.Get("_csrf")
	require.True(t, ok)
	assert.Equal(t, ticket.Token, v)
	assert.False(t, h.Auth.LoggedIn())
}

func TestSignupEstablishesDurableSession(t *testing.T) {
	srv := setupServer(t)
	repo, wk := memoryStorage(t)
	h := newHarness(t, srv.URL, repo, wk)

	h.signup(t)

	st := h.flow.State()
	assert.Equal(t, authflow.ModeSuccess, st.Mode)
	assert.True(t, st.LoggedIn)
	assert.Equal(t, []string{"/"}, h.nav.paths)
	assert.True(t, h.Store.Session().Persisted)
	assert.True(t, h.Store.HasSessionCookies())
	assert.True(t, h.Store.LoggedIn())
	assert.True(t, h.Auth.LoggedIn())
	assert.True(t, route.Protect(h.Store, "/profile").Allow)

	profile, err := h.Me(t.Context())
	require.NoError(t, err)
	assert.Equal(t, testEmail, profile.Email)
	assert.Equal(t, "Lovelace", profile.LastName)
}

func TestSessionSurvivesRestartAndRefreshes(t *testing.T) {
	srv := setupServer(t)
	path := filepath.Join(t.TempDir(), "navauth.db")
	wk, err := util.NewAESKey()
	require.NoError(t, err)

	repo, err := bboltstorage.NewRepositoryFromFile(path, nil)
	require.NoError(t, err)
	first := newHarness(t, srv.URL, repo, wk)
	first.signup(t)
	token := first.Store.Token()
	first.flow.Shutdown()
	first.Close()
	require.NoError(t, repo.Close())

	repo, err = bboltstorage.NewRepositoryFromFile(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	c, err := client.New(srv.URL, client.WithRepository(repo, wk))
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, token, c.Store.Token(), "durable token is restored before any request")
	assert.True(t, c.Store.HasSessionCookies())
	assert.True(t, c.Auth.LoggedIn())

	res := <-c.Boot(t.Context())
	require.True(t, res.OK)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, res.Token, c.Store.Token())

	_, err = c.Me(t.Context())
	require.NoError(t, err)
}

func TestLoginWithoutRememberMeIsSessionScoped(t *testing.T) {
	srv := setupServer(t)
	repo, wk := memoryStorage(t)
	h := newHarness(t, srv.URL, repo, wk)
	h.signup(t)
	require.NoError(t, h.Logout(t.Context()))

	h.login(t, false)
	assert.Equal(t, authflow.ModeSuccess, h.flow.State().Mode)
	assert.False(t, h.Store.Session().Persisted)
	assert.True(t, h.Store.LoggedIn())

	// The server-set cookies still carry an access token after a restart.
	c, err := client.New(srv.URL, client.WithRepository(repo, wk))
	require.NoError(t, err)
	defer c.Close()
	cookie, ok := c.Jar.Get(cookies.AccessToken)
	require.True(t, ok)
	assert.Equal(t, cookie, c.Store.Token())
}

func TestLoginWrongPasswordSurfacesBackendMessage(t *testing.T) {
	srv := setupServer(t)
	repo, wk := memoryStorage(t)
	h := newHarness(t, srv.URL, repo, wk)
	h.signup(t)
	require.NoError(t, h.Logout(t.Context()))

	h.open(t, authflow.ModeLogin)
	h.flow.SetField(authflow.FieldEmail, testEmail)
	h.flow.SetField(authflow.FieldPassword, "Wrong1234")
	require.NoError(t, h.flow.Submit(t.Context()))

	st := h.flow.State()
	assert.Equal(t, authflow.ModeLogin, st.Mode)
	assert.Equal(t, "Invalid credentials", st.FieldErrors[authflow.FieldGeneral])
	msg, ok := h.toast.last()
	require.True(t, ok)
	assert.Equal(t, "Invalid credentials", msg)
	assert.False(t, st.Submitting)
}

func TestWrongCodeStaysOnOTPStep(t *testing.T) {
	srv := setupServer(t)
	repo, wk := memoryStorage(t)
	h := newHarness(t, srv.URL, repo, wk)
	h.signup(t)
	require.NoError(t, h.Logout(t.Context()))

	h.open(t, authflow.ModeLogin)
	h.flow.SetField(authflow.FieldEmail, testEmail)
	h.flow.SetField(authflow.FieldPassword, testPassword)
	require.NoError(t, h.flow.Submit(t.Context()))
	code := h.flow.State().InlineOTP

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	h.flow.SetField(authflow.FieldOTP, wrong)
	require.NoError(t, h.flow.Submit(t.Context()))

	st := h.flow.State()
	assert.Equal(t, authflow.ModeOTP, st.Mode)
	assert.Equal(t, "Invalid or expired OTP", st.FieldErrors[authflow.FieldOTP])
	assert.False(t, h.Store.LoggedIn())
}

func TestForgotPasswordResetsAndClearsSession(t *testing.T) {
	srv := setupServer(t)
	repo, wk := memoryStorage(t)
	h := newHarness(t, srv.URL, repo, wk)
	h.signup(t)

	h.open(t, authflow.ModeForgot)
	h.flow.SetField(authflow.FieldEmail, testEmail)
	require.NoError(t, h.flow.Submit(t.Context()))
	require.Equal(t, authflow.OriginForgot, h.flow.State().OTPOrigin)
	h.verify(t)

	st := h.flow.State()
	require.Equal(t, authflow.ModeReset, st.Mode, "errors: %v", st.FieldErrors)
	assert.False(t, h.Store.LoggedIn())

	newPassword := "An0therSecret"
	h.flow.SetField(authflow.FieldNewPassword, newPassword)
	h.flow.SetField(authflow.FieldConfirmNewPassword, newPassword)
	require.NoError(t, h.flow.Submit(t.Context()))

	st = h.flow.State()
	require.Equal(t, authflow.ModeSuccess, st.Mode, "errors: %v", st.FieldErrors)
	assert.False(t, st.LoggedIn)
	assert.Empty(t, h.Store.Token())
	assert.False(t, h.Store.HasSessionCookies())
	assert.False(t, h.Auth.LoggedIn())
	assert.False(t, route.Protect(h.Store, "/profile").Allow)

	// The old refresh cookie was revoked along with every other session.
	assert.False(t, h.Refresh.Refresh(t.Context()).OK)
}

func TestLogoutClearsEverything(t *testing.T) {
	srv := setupServer(t)
	repo, wk := memoryStorage(t)
	h := newHarness(t, srv.URL, repo, wk)
	h.signup(t)

	require.NoError(t, h.Logout(t.Context()))
	assert.Empty(t, h.Store.Token())
	assert.False(t, h.Store.HasSessionCookies())
	assert.False(t, h.Store.LoggedIn())
	assert.False(t, h.Auth.LoggedIn())
	assert.False(t, h.CSRF.Ticket().Complete())

	_, err := h.Me(t.Context())
	var gwErr *gateway.Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusUnauthorized, gwErr.Status)
}

func TestStaleCSRFTicketIsRejected(t *testing.T) {
	srv := setupServer(t)
	repo, wk := memoryStorage(t)
	h := newHarness(t, srv.URL, repo, wk)

	// The cookie stays in the jar but the ticket is gone.
	h.CSRF.Reset()
	_, err := h.Gateway.Do(t.Context(), http.MethodPost, "/api/auth/forget-password", map[string]string{"email": testEmail})
	var gwErr *gateway.Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusForbidden, gwErr.Status)
	assert.Equal(t, "Invalid CSRF token", gwErr.Message)

	h.CSRF.Fetch(t.Context())
	_, err = h.Gateway.Do(t.Context(), http.MethodPost, "/api/auth/forget-password", map[string]string{"email": testEmail})
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusNotFound, gwErr.Status)
}

func TestRefreshWithoutSessionFailsSilently(t *testing.T) {
	srv := setupServer(t)
	repo, wk := memoryStorage(t)
	h := newHarness(t, srv.URL, repo, wk)

	assert.False(t, h.Refresh.Refresh(t.Context()).OK)
	assert.False(t, h.Auth.Sync(t.Context()))
	assert.Empty(t, h.Store.Token())
}
