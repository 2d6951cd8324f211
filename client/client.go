// Package client assembles the session components into a single client for
// one backend: the cookie jar, the token store, the CSRF context, the
// gateway and the refresh machinery all share one storage repository.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmcleod/navauth/cookies"
	"github.com/jmcleod/navauth/csrf"
	"github.com/jmcleod/navauth/gateway"
	"github.com/jmcleod/navauth/internal/util"
	"github.com/jmcleod/navauth/probe"
	"github.com/jmcleod/navauth/refresh"
	"github.com/jmcleod/navauth/session"
	"github.com/jmcleod/navauth/storage"
	"github.com/jmcleod/navauth/storage/memory"
)

// Backend endpoints used outside the credential flow.
const (
	PathLogout = "/api/auth/logout"
	PathMe     = "/api/auth/me"
)

const (
	cookieNamespace  = "cookies"
	sessionNamespace = "session"
)

// Profile is the signed-in account as reported by the backend.
type Profile struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

// Client is a wired set of session components.
type Client struct {
	Jar     *cookies.Jar
	Store   *session.Store
	CSRF    *csrf.Context
	Gateway *gateway.Client
	Refresh *refresh.Coordinator
	Auth    *refresh.AuthState

	sealed []*storage.Sealed
	logger *slog.Logger
}

type options struct {
	repo        storage.Repository
	wrappingKey []byte
	httpClient  *http.Client
	timeout     time.Duration
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*options)

// WithRepository stores the durable token and persistent cookies in repo,
// sealed under wrappingKey. Without it state lives only as long as the
// process.
func WithRepository(repo storage.Repository, wrappingKey []byte) Option {
	return func(o *options) {
		o.repo = repo
		o.wrappingKey = wrappingKey
	}
}

// WithHTTPClient sets the underlying HTTP client. Its Jar is replaced.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithLogger sets the structured logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New wires a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	o := options{
		timeout: gateway.DefaultTimeout,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.repo == nil {
		key, err := util.NewAESKey()
		if err != nil {
			return nil, err
		}
		o.repo = memory.NewRepository()
		o.wrappingKey = key
	}

	cookieSealed, err := storage.NewSealed(o.repo, cookieNamespace, o.wrappingKey)
	if err != nil {
		return nil, fmt.Errorf("opening cookie storage: %w", err)
	}
	sessionSealed, err := storage.NewSealed(o.repo, sessionNamespace, o.wrappingKey)
	if err != nil {
		cookieSealed.Close()
		return nil, fmt.Errorf("opening session storage: %w", err)
	}

	jar, err := cookies.New(baseURL, cookies.WithStorage(cookieSealed), cookies.WithLogger(o.logger))
	if err != nil {
		cookieSealed.Close()
		sessionSealed.Close()
		return nil, err
	}
	store := session.New(
		session.WithDurable(sessionSealed),
		session.WithCookies(jar),
		session.WithLogger(o.logger),
	)
	ticket := csrf.New(nil, csrf.WithCookies(jar), csrf.WithLogger(o.logger))

	gwOpts := []gateway.Option{
		gateway.WithCookieJar(jar),
		gateway.WithTokenSource(store),
		gateway.WithCSRF(ticket),
		gateway.WithTimeout(o.timeout),
		gateway.WithLogger(o.logger),
	}
	if o.httpClient != nil {
		gwOpts = append(gwOpts, gateway.WithHTTPClient(o.httpClient))
	}
	gw, err := gateway.New(baseURL, gwOpts...)
	if err != nil {
		cookieSealed.Close()
		sessionSealed.Close()
		return nil, err
	}
	ticket.SetClient(gw)

	coord := refresh.New(gw, store, refresh.WithLogger(o.logger))
	return &Client{
		Jar:     jar,
		Store:   store,
		CSRF:    ticket,
		Gateway: gw,
		Refresh: coord,
		Auth:    refresh.NewAuthState(store, coord, refresh.WithStateLogger(o.logger)),
		sealed:  []*storage.Sealed{cookieSealed, sessionSealed},
		logger:  o.logger.With("component", "client"),
	}, nil
}

// Boot fetches a CSRF ticket and starts the background refresh. The ticket
// is fetched first because a CSRF cookie restored from storage would
// otherwise make every mutating request fail.
func (c *Client) Boot(ctx context.Context) <-chan refresh.Result {
	c.CSRF.Fetch(ctx)
	return c.Refresh.Boot(ctx)
}

// Logout ends the session. The backend call is best effort: local state is
// cleared even when it fails, and its error is returned afterwards.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.Gateway.Do(ctx, http.MethodPost, PathLogout, nil)
	if err != nil {
		c.logger.Debug("logout request failed", slog.String("error", err.Error()))
	}
	c.Store.Clear()
	c.Jar.Delete(cookies.AccessToken, cookies.RefreshToken)
	c.Store.SetLoggedIn(false)
	c.CSRF.Reset()
	if err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}

// Me fetches the signed-in account's profile.
func (c *Client) Me(ctx context.Context) (Profile, error) {
	raw, err := gateway.Get[json.RawMessage](ctx, c.Gateway, PathMe)
	if err != nil {
		return Profile{}, err
	}
	doc, err := probe.Decode(raw)
	if err != nil {
		return Profile{}, fmt.Errorf("decoding profile: %w", err)
	}
	field := func(name string) string {
		return probe.First(doc, probe.Keys("data", name)...).Value
	}
	p := Profile{
		Email:     field("email"),
		FirstName: field("firstName"),
		LastName:  field("lastName"),
		Phone:     field("phone"),
	}
	if p.Email == "" {
		return Profile{}, errors.New("profile response carried no email")
	}
	return p, nil
}

// Close releases the store's enclave and wipes the storage keys. The
// repository passed to WithRepository stays open.
func (c *Client) Close() {
	c.Auth.Close()
	c.Store.Close()
	for _, s := range c.sealed {
		s.Close()
	}
}
