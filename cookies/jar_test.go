package cookies_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/navauth/cookies"
	"github.com/jmcleod/navauth/internal/util"
	"github.com/jmcleod/navauth/storage"
	"github.com/jmcleod/navauth/storage/memory"
)

func newSealed(t *testing.T, repo storage.Repository, wk []byte) *storage.Sealed {
	t.Helper()
	sealed, err := storage.NewSealed(repo, "cookies", wk)
	require.NoError(t, err)
	return sealed
}

func TestJarSetGetDelete(t *testing.T) {
	jar, err := cookies.New("http://api.example.com")
	require.NoError(t, err)

	assert.False(t, jar.Has(cookies.AccessToken))

	jar.Set(cookies.AccessToken, "acc", time.Hour)
	v, ok := jar.Get(cookies.AccessToken)
	require.True(t, ok)
	assert.Equal(t, "acc", v)

	jar.Delete(cookies.AccessToken)
	assert.False(t, jar.Has(cookies.AccessToken))
}

func TestJarRejectsRelativeURL(t *testing.T) {
	_, err := cookies.New("/api")
	require.Error(t, err)
}

func TestJarReceivesServerCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{
			Name:     cookies.RefreshToken,
			Value:    "ref",
			Path:     "/",
			HttpOnly: true,
			MaxAge:   3600,
		})
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	jar, err := cookies.New(srv.URL)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	resp, err := client.Get(srv.URL + "/api/auth/refresh-token")
	require.NoError(t, err)
	resp.Body.Close()

	v, ok := jar.Get(cookies.RefreshToken)
	require.True(t, ok)
	assert.Equal(t, "ref", v)
}

func TestJarPersistsAcrossRestart(t *testing.T) {
	repo := memory.NewRepository()
	wk, err := util.NewAESKey()
	require.NoError(t, err)

	first, err := cookies.New("http://api.example.com", cookies.WithStorage(newSealed(t, repo, wk)))
	require.NoError(t, err)
	first.Set(cookies.AccessToken, "acc", time.Hour)
	first.Set(cookies.RefreshToken, "ref", 30*24*time.Hour)
	first.Set("sessionOnly", "x", 0)

	second, err := cookies.New("http://api.example.com", cookies.WithStorage(newSealed(t, repo, wk)))
	require.NoError(t, err)

	v, ok := second.Get(cookies.AccessToken)
	require.True(t, ok)
	assert.Equal(t, "acc", v)
	assert.True(t, second.Has(cookies.RefreshToken))
	assert.False(t, second.Has("sessionOnly"), "session cookies do not survive a restart")
}

func TestJarDeletePersists(t *testing.T) {
	repo := memory.NewRepository()
	wk, err := util.NewAESKey()
	require.NoError(t, err)

	first, err := cookies.New("http://api.example.com", cookies.WithStorage(newSealed(t, repo, wk)))
	require.NoError(t, err)
	first.Set(cookies.AccessToken, "acc", time.Hour)
	first.Delete(cookies.AccessToken)

	second, err := cookies.New("http://api.example.com", cookies.WithStorage(newSealed(t, repo, wk)))
	require.NoError(t, err)
	assert.False(t, second.Has(cookies.AccessToken))
}

func TestJarDropsExpiredStoredCookies(t *testing.T) {
	repo := memory.NewRepository()
	wk, err := util.NewAESKey()
	require.NoError(t, err)

	first, err := cookies.New("http://api.example.com", cookies.WithStorage(newSealed(t, repo, wk)))
	require.NoError(t, err)
	first.Set(cookies.AccessToken, "acc", time.Hour)

	// Restart two hours later.
	later := func() time.Time { return time.Now().Add(2 * time.Hour) }
	second, err := cookies.New("http://api.example.com",
		cookies.WithStorage(newSealed(t, repo, wk)),
		cookies.WithClock(later),
	)
	require.NoError(t, err)
	assert.False(t, second.Has(cookies.AccessToken))

	ids, err := newSealed(t, repo, wk).List("COOKIE")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestJarIgnoresOtherHostsForPersistence(t *testing.T) {
	repo := memory.NewRepository()
	wk, err := util.NewAESKey()
	require.NoError(t, err)
	sealed := newSealed(t, repo, wk)

	jar, err := cookies.New("http://api.example.com", cookies.WithStorage(sealed))
	require.NoError(t, err)
	other, _ := url.Parse("http://tiles.example.org/")
	jar.SetCookies(other, []*http.Cookie{{Name: "tile", Value: "1", MaxAge: 60}})

	ids, err := sealed.List("COOKIE")
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.False(t, jar.Has("tile"))
}
