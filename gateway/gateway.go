// Package gateway is the single HTTP client every auth call goes through.
//
// Before dispatch it attaches the bearer token and the CSRF header; after the
// response it normalizes failures into *Error. It does not interpret payload
// shape: callers decode into the type they ask for.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmcleod/navauth/internal/uuid"
)

// DefaultTimeout bounds a single request when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// RequestIDHeader carries a per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

// TokenSource supplies the current bearer token. *session.Store satisfies it.
type TokenSource interface {
	Token() string
}

// HeaderSource supplies the anti-forgery header. ok is false when no complete
// ticket is available. *csrf.Context satisfies it.
type HeaderSource interface {
	Header() (name, value string, ok bool)
}

// Client sends JSON requests to one backend.
type Client struct {
	baseURL string
	http    *http.Client
	jar     http.CookieJar
	tokens  TokenSource
	csrf    HeaderSource
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. The client is copied,
// never modified.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithCookieJar sets the jar used for server-set and client-set cookies. It
// takes precedence over the jar of a client given with WithHTTPClient,
// whatever the option order.
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *Client) {
		c.jar = jar
	}
}

// WithTokenSource sets where the bearer token is read from before each call.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithCSRF sets where the anti-forgery header is read from before each call.
func WithCSRF(hs HeaderSource) Option {
	return func(c *Client) {
		c.csrf = hs
	}
}

// WithTimeout bounds each request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With("component", "gateway")
	}
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{},
		timeout: DefaultTimeout,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	hc := *c.http
	if c.jar != nil {
		hc.Jar = c.jar
	}
	c.http = &hc
	return c, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	bearer    string
	hasBearer bool
	headers   http.Header
	query     url.Values
}

// RequestOption adjusts a single request.
type RequestOption func(*request)

// WithBearer overrides the token source for one request. An empty token
// sends no Authorization header.
func WithBearer(token string) RequestOption {
	return func(r *request) {
		r.bearer = token
		r.hasBearer = true
	}
}

// WithHeader adds a header to one request.
func WithHeader(name, value string) RequestOption {
	return func(r *request) {
		r.headers.Add(name, value)
	}
}

// WithQuery adds a query parameter to one request.
func WithQuery(name, value string) RequestOption {
	return func(r *request) {
		r.query.Add(name, value)
	}
}

// Response is a successful (2xx) raw response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Do sends one request. body, when non-nil, is sent as JSON ([]byte is sent
// as is). Non-2xx responses and transport failures return *Error.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error) {
	rq := request{headers: make(http.Header), query: make(url.Values)}
	for _, opt := range opts {
		opt(&rq)
	}

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case []byte:
			reader = bytes.NewReader(b)
		default:
			data, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("encoding request body: %w", err)
			}
			reader = bytes.NewReader(data)
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(rq.query) > 0 {
		target += "?" + rq.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request %s %s: %w", method, path, err)
	}

	requestID := uuid.New()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req, rq)
	for name, values := range rq.headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(fmt.Errorf("reading response body: %w", err))
	}
	c.logger.Debug("request completed",
		slog.String("method", method),
		slog.String("path", path),
		slog.String("request_id", requestID),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, data)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (c *Client) authorize(req *http.Request, rq request) {
	token := rq.bearer
	if !rq.hasBearer && c.tokens != nil {
		token = c.tokens.Token()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.csrf != nil {
		if name, value, ok := c.csrf.Header(); ok {
			req.Header.Set(name, value)
		}
	}
}

// Get sends a GET and decodes the response into T.
func Get[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (T, error) {
	return call[T](ctx, c, http.MethodGet, path, nil, opts)
}

// Post sends a POST and decodes the response into T.
func Post[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	return call[T](ctx, c, http.MethodPost, path, body, opts)
}

// Put sends a PUT and decodes the response into T.
func Put[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	return call[T](ctx, c, http.MethodPut, path, body, opts)
}

// Patch sends a PATCH and decodes the response into T.
func Patch[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	return call[T](ctx, c, http.MethodPatch, path, body, opts)
}

// Delete sends a DELETE and decodes the response into T.
func Delete[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (T, error) {
	return call[T](ctx, c, http.MethodDelete, path, nil, opts)
}

func call[T any](ctx context.Context, c *Client, method, path string, body any, opts []RequestOption) (T, error) {
	var out T
	resp, err := c.Do(ctx, method, path, body, opts...)
	if err != nil {
		return out, err
	}
	if err := decode(resp.Body, &out); err != nil {
		return out, fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return out, nil
}

// decode fills out from body. Raw byte targets receive the body unchanged so
// that non-JSON payloads reach the caller; an empty body leaves out zero.
func decode(body []byte, out any) error {
	switch p := out.(type) {
	case *[]byte:
		*p = body
		return nil
	case *json.RawMessage:
		*p = body
		return nil
	case *string:
		*p = string(body)
		return nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}
