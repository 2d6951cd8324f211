// Package csrf acquires the anti-forgery ticket from the backend and hands
// the header half of it to the gateway.
package csrf

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jmcleod/navauth/gateway"
	"github.com/jmcleod/navauth/probe"
)

// Endpoint is the ticket-issuing endpoint.
const Endpoint = "/api/auth/csrf"

// CookieTTL is the lifetime of the fallback cookie written after a fetch.
const CookieTTL = time.Hour

// Ticket is an anti-forgery token together with the header and parameter
// names the backend expects it under.
type Ticket struct {
	Token      string `json:"token"`
	HeaderName string `json:"headerName"`
	ParamName  string `json:"parameterName"`
}

// Complete reports whether the ticket can be attached as a header.
func (t Ticket) Complete() bool {
	return t.Token != "" && t.HeaderName != ""
}

// CookieWriter writes client-side cookies. *cookies.Jar satisfies it.
type CookieWriter interface {
	Set(name, value string, maxAge time.Duration)
}

// Context holds the last fetched ticket. One Context exists per client
// process and is shared by reference.
type Context struct {
	mu      sync.RWMutex
	ticket  Ticket
	client  *gateway.Client
	cookies CookieWriter
	logger  *slog.Logger
}

var _ gateway.HeaderSource = (*Context)(nil)

// Option configures a Context.
type Option func(*Context)

// WithCookies enables the fallback cookie written under the ticket's
// parameter name.
func WithCookies(w CookieWriter) Option {
	return func(c *Context) {
		c.cookies = w
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) {
		c.logger = logger.With("component", "csrf")
	}
}

// New creates an empty Context. SetClient must be called before Fetch when
// client is nil, which lets the gateway and the Context reference each other.
func New(client *gateway.Client, opts ...Option) *Context {
	c := &Context{
		client: client,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetClient sets the gateway used by Fetch.
func (c *Context) SetClient(client *gateway.Client) {
	c.mu.Lock()
	c.client = client
	c.mu.Unlock()
}

// Fetch requests a fresh ticket. Any failure is logged and yields an empty
// ticket; the previously stored ticket is kept in that case.
func (c *Context) Fetch(ctx context.Context) Ticket {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil {
		c.logger.Debug("csrf fetch skipped: no client")
		return Ticket{}
	}

	raw, err := gateway.Get[json.RawMessage](ctx, client, Endpoint)
	if err != nil {
		c.logger.Debug("csrf fetch failed", slog.String("error", err.Error()))
		return Ticket{}
	}
	doc, err := probe.Decode(raw)
	if err != nil {
		c.logger.Debug("csrf response is not JSON", slog.String("error", err.Error()))
		return Ticket{}
	}
	t := Ticket{
		Token:      probe.First(doc, probe.Keys("data", "token", "csrfToken")...).Value,
		HeaderName: probe.First(doc, probe.Keys("data", "headerName")...).Value,
		ParamName:  probe.First(doc, probe.Keys("data", "parameterName")...).Value,
	}
	if t.Token == "" {
		c.logger.Debug("csrf response carried no token")
		return Ticket{}
	}

	c.mu.Lock()
	c.ticket = t
	c.mu.Unlock()

	if c.cookies != nil && t.ParamName != "" {
		c.cookies.Set(t.ParamName, t.Token, CookieTTL)
	}
	c.logger.Debug("csrf ticket fetched", slog.String("header", t.HeaderName))
	return t
}

// Ticket returns the last fetched ticket without a network call.
func (c *Context) Ticket() Ticket {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ticket
}

// Header implements gateway.HeaderSource.
func (c *Context) Header() (name, value string, ok bool) {
	t := c.Ticket()
	if !t.Complete() {
		return "", "", false
	}
	return t.HeaderName, t.Token, true
}

// Reset drops the stored ticket.
func (c *Context) Reset() {
	c.mu.Lock()
	c.ticket = Ticket{}
	c.mu.Unlock()
}
