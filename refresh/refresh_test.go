package refresh_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/navauth/cookies"
	"github.com/jmcleod/navauth/gateway"
	"github.com/jmcleod/navauth/refresh"
	"github.com/jmcleod/navauth/session"
)

func newCoordinator(t *testing.T, h http.HandlerFunc) (*refresh.Coordinator, *session.Store) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	client, err := gateway.New(srv.URL)
	require.NoError(t, err)
	store := session.New()
	return refresh.New(client, store), store
}

func TestRefreshResponses(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   refresh.Result
	}{
		{"token in data", 200, `{"data":"tok-a"}`, refresh.Result{OK: true, Token: "tok-a"}},
		{"token", 200, `{"token":"tok-b"}`, refresh.Result{OK: true, Token: "tok-b"}},
		{"access token", 200, `{"accessToken":"tok-c"}`, refresh.Result{OK: true, Token: "tok-c"}},
		{"nested", 200, `{"data":{"accessToken":"tok-d"}}`, refresh.Result{OK: true, Token: "tok-d"}},
		{"success flag", 200, `{"success":true}`, refresh.Result{OK: true}},
		{"status code", 200, `{"statusCode":200,"message":"ok"}`, refresh.Result{OK: true}},
		{"no signal", 200, `{"message":"hmm"}`, refresh.Result{}},
		{"success false", 200, `{"success":false}`, refresh.Result{}},
		{"unauthorized", 401, `{"message":"expired"}`, refresh.Result{}},
		{"not json", 200, `<html/>`, refresh.Result{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			coord, store := newCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, refresh.Endpoint, r.URL.Path)
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})
			got := coord.Refresh(context.Background())
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.want.Token, store.Token())
			assert.False(t, store.Session().Persisted)
		})
	}
}

func TestRefreshNetworkErrorIsSilent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	client, err := gateway.New(srv.URL)
	require.NoError(t, err)
	srv.Close()

	coord := refresh.New(client, session.New())
	assert.Equal(t, refresh.Result{}, coord.Refresh(context.Background()))
}

func TestBoot(t *testing.T) {
	coord, store := newCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"boot"}`))
	})
	select {
	case res := <-coord.Boot(context.Background()):
		assert.True(t, res.OK)
	case <-time.After(5 * time.Second):
		t.Fatal("boot refresh did not finish")
	}
	assert.Equal(t, "boot", store.Token())
}

func TestAuthStateSync(t *testing.T) {
	var calls atomic.Int32
	var ok atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if ok.Load() {
			w.Write([]byte(`{"success":true}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	jar, err := cookies.New(srv.URL)
	require.NoError(t, err)
	client, err := gateway.New(srv.URL, gateway.WithCookieJar(jar))
	require.NoError(t, err)
	store := session.New(session.WithCookies(jar))
	var flips []bool
	state := refresh.NewAuthState(store, refresh.New(client, store), refresh.OnChange(func(v bool) {
		flips = append(flips, v)
	}))
	defer state.Close()

	ctx := context.Background()
	assert.False(t, state.LoggedIn())
	assert.False(t, state.Sync(ctx))
	assert.Zero(t, calls.Load(), "agreement needs no refresh")

	jar.Set(cookies.AccessToken, "a", time.Hour)
	jar.Set(cookies.RefreshToken, "r", time.Hour)
	ok.Store(true)
	assert.True(t, state.Sync(ctx))
	assert.EqualValues(t, 1, calls.Load())

	jar.Delete(cookies.AccessToken, cookies.RefreshToken)
	ok.Store(false)
	assert.False(t, state.Sync(ctx))
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, []bool{true, false}, flips)
}

func TestAuthStateFollowsStoreEvents(t *testing.T) {
	store := session.New()
	state := refresh.NewAuthState(store, nil)
	defer state.Close()

	store.SetLoggedIn(true)
	assert.True(t, state.LoggedIn())
	store.SetLoggedIn(false)
	assert.False(t, state.LoggedIn())

	state.Close()
	store.SetLoggedIn(true)
	assert.False(t, state.LoggedIn())
}
