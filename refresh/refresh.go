// Package refresh renews the session silently. Failures never propagate:
// a refresh that cannot complete reports OK=false and leaves the session as
// it was.
package refresh

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jmcleod/navauth/gateway"
	"github.com/jmcleod/navauth/probe"
)

// Endpoint is the session-renewal endpoint.
const Endpoint = "/api/auth/refresh-token"

// tokenPaths is the order in which a renewed token is looked for.
var tokenPaths = []probe.Path{{"data"}, {"token"}, {"accessToken"}, {"data", "token"}, {"data", "accessToken"}}

// TokenWriter receives renewed tokens. *session.Store satisfies it.
type TokenWriter interface {
	SetToken(token string, persist bool)
}

// Result is the outcome of a refresh. Token is empty when the backend
// confirmed the session without issuing a new token.
type Result struct {
	OK    bool
	Token string
}

// Coordinator performs refresh calls.
type Coordinator struct {
	client *gateway.Client
	tokens TokenWriter
	logger *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger.With("component", "refresh")
	}
}

// New creates a Coordinator writing renewed tokens to tokens.
func New(client *gateway.Client, tokens TokenWriter, opts ...Option) *Coordinator {
	c := &Coordinator{
		client: client,
		tokens: tokens,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh posts to the renewal endpoint with no body. A returned token is
// written to the store without persistence. A response without a token
// counts as success only when it says so via success=true or statusCode=200.
func (c *Coordinator) Refresh(ctx context.Context) Result {
	raw, err := gateway.Post[json.RawMessage](ctx, c.client, Endpoint, nil)
	if err != nil {
		c.logger.Debug("refresh failed", slog.String("error", err.Error()))
		return Result{}
	}
	doc, err := probe.Decode(raw)
	if err != nil {
		c.logger.Debug("refresh response is not JSON", slog.String("error", err.Error()))
		return Result{}
	}
	if tok := probe.First(doc, tokenPaths...); tok.Found {
		c.tokens.SetToken(tok.Value, false)
		c.logger.Debug("session refreshed with new token")
		return Result{OK: true, Token: tok.Value}
	}
	if signalsSuccess(doc) {
		c.logger.Debug("session confirmed without new token")
		return Result{OK: true}
	}
	return Result{}
}

// Boot runs a best-effort refresh in the background. The returned channel
// receives the single result and is then closed; callers may ignore it.
func (c *Coordinator) Boot(ctx context.Context) <-chan Result {
	done := make(chan Result, 1)
	go func() {
		defer close(done)
		done <- c.Refresh(ctx)
	}()
	return done
}

func signalsSuccess(doc any) bool {
	m, ok := doc.(map[string]any)
	if !ok {
		return false
	}
	if b, ok := m["success"].(bool); ok && b {
		return true
	}
	if n, ok := m["statusCode"].(json.Number); ok {
		if i, err := n.Int64(); err == nil && i == 200 {
			return true
		}
	}
	return false
}
