// Package cookies keeps the client's cookies for the auth backend: the ones
// the server sets (refresh cookie, CSRF cookie) and the ones the client
// writes itself as a fallback for server-set httpOnly cookies.
//
// A Jar is an http.CookieJar, so the gateway's http.Client sends and
// receives through it, and it is readable by name the way document.cookie is.
// Persistent cookies (those with an expiry) for the backend host are mirrored
// into sealed storage so they survive a process restart.
package cookies

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/jmcleod/navauth/storage"
)

const cookieRecordType = "COOKIE"

// Well-known cookie names.
const (
	AccessToken  = "accessToken"
	RefreshToken = "refreshToken"
)

// Jar is a goroutine-safe cookie jar bound to one backend base URL.
type Jar struct {
	mu     sync.Mutex
	base   *url.URL
	jar    *cookiejar.Jar
	saved  map[string]storedCookie
	sealed *storage.Sealed
	logger *slog.Logger
	now    func() time.Time
}

var _ http.CookieJar = (*Jar)(nil)

type storedCookie struct {
	Value    string    `json:"value"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires"`
	HttpOnly bool      `json:"http_only"`
	Secure   bool      `json:"secure"`
}

// Option configures a Jar.
type Option func(*Jar)

// WithStorage mirrors persistent cookies into sealed storage and restores the
// unexpired ones when the jar is created.
func WithStorage(sealed *storage.Sealed) Option {
	return func(j *Jar) {
		j.sealed = sealed
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Jar) {
		j.logger = logger.With("component", "cookies")
	}
}

// WithClock overrides the time source used when restoring stored cookies.
func WithClock(now func() time.Time) Option {
	return func(j *Jar) {
		j.now = now
	}
}

// New creates a Jar for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Jar, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	j := &Jar{
		base:   &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"},
		jar:    inner,
		saved:  make(map[string]storedCookie),
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	if err := j.restore(); err != nil {
		return nil, err
	}
	return j, nil
}

// SetCookies implements http.CookieJar.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jar.SetCookies(u, cookies)
	if !strings.EqualFold(u.Hostname(), j.base.Hostname()) {
		return
	}
	changed := false
	for _, c := range cookies {
		changed = j.mirrorLocked(c) || changed
	}
	if changed {
		j.persistLocked()
	}
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

// Set writes a client-side cookie for the backend host. A non-positive maxAge
// creates a session cookie that is never persisted.
func (j *Jar) Set(name, value string, maxAge time.Duration) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Secure:   j.base.Scheme == "https",
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		c.MaxAge = int(maxAge / time.Second)
	}
	j.SetCookies(j.base, []*http.Cookie{c})
}

// Get returns the value of the named cookie for the backend host.
func (j *Jar) Get(name string) (string, bool) {
	for _, c := range j.Cookies(j.base) {
		if c.Name == name && c.Value != "" {
			return c.Value, true
		}
	}
	return "", false
}

// Has reports whether the named cookie is present with a non-empty value.
func (j *Jar) Has(name string) bool {
	_, ok := j.Get(name)
	return ok
}

// Delete expires the named cookies.
func (j *Jar) Delete(names ...string) {
	expired := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		expired = append(expired, &http.Cookie{Name: name, Path: "/", MaxAge: -1})
	}
	j.SetCookies(j.base, expired)
}

// mirrorLocked records c in the persistent mirror and reports whether the
// mirror changed.
func (j *Jar) mirrorLocked(c *http.Cookie) bool {
	var expires time.Time
	switch {
	case c.MaxAge < 0:
		expires = time.Unix(0, 0)
	case c.MaxAge > 0:
		expires = j.now().Add(time.Duration(c.MaxAge) * time.Second)
	case !c.Expires.IsZero():
		expires = c.Expires
	}
	if expires.IsZero() || !expires.After(j.now()) || c.Value == "" {
		_, had := j.saved[c.Name]
		delete(j.saved, c.Name)
		return had
	}
	path := c.Path
	if path == "" {
		path = "/"
	}
	j.saved[c.Name] = storedCookie{
		Value:    c.Value,
		Path:     path,
		Expires:  expires,
		HttpOnly: c.HttpOnly,
		Secure:   c.Secure,
	}
	return true
}

func (j *Jar) persistLocked() {
	if j.sealed == nil {
		return
	}
	values := make(map[string]any, len(j.saved))
	for name, sc := range j.saved {
		values[name] = sc
	}
	if err := j.sealed.ReplaceAll(cookieRecordType, values); err != nil {
		j.logger.Warn("failed to persist cookies", slog.String("error", err.Error()))
	}
}

func (j *Jar) restore() error {
	if j.sealed == nil {
		return nil
	}
	names, err := j.sealed.List(cookieRecordType)
	if err != nil {
		return fmt.Errorf("listing stored cookies: %w", err)
	}
	now := j.now()
	var restored []*http.Cookie
	for _, name := range names {
		var sc storedCookie
		if err := j.sealed.GetJSON(cookieRecordType, name, &sc); err != nil {
			// Unreadable record (for example after a wrapping key change): drop it.
			j.logger.Debug("dropping unreadable cookie", slog.String("name", name), slog.String("error", err.Error()))
			_ = j.sealed.Delete(cookieRecordType, name)
			continue
		}
		if !sc.Expires.After(now) {
			_ = j.sealed.Delete(cookieRecordType, name)
			continue
		}
		j.saved[name] = sc
		restored = append(restored, &http.Cookie{
			Name:     name,
			Value:    sc.Value,
			Path:     sc.Path,
			Expires:  sc.Expires,
			HttpOnly: sc.HttpOnly,
			Secure:   sc.Secure,
		})
	}
	if len(restored) > 0 {
		j.jar.SetCookies(j.base, restored)
	}
	return nil
}
