// Package mockapi is a development and test double for the auth backend.
//
// It serves the same endpoints the client drives, with the same
// inconsistent response envelopes, backed by in-memory state.
package mockapi

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-openapi/runtime/middleware"
	"github.com/jellydator/ttlcache/v3"

	"github.com/jmcleod/navauth/internal/util"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultOTPTTL     = 5 * time.Minute
	refreshTokenTTL   = 30 * 24 * time.Hour
	resetTokenTTL     = 10 * time.Minute
	provisionalTTL    = 10 * time.Minute
	csrfCookieTTL     = time.Hour
	maxAuthBodySize   = 64 << 10
	defaultDevSecret  = "devsecret"
	defaultCSRFHeader = "X-CSRF-Token"
	defaultCSRFParam  = "_csrf"
)

// API holds the mock backend's state.
type API struct {
	accounts    *accountStore
	otps        *ttlcache.Cache[string, otpEntry]
	refresh     *ttlcache.Cache[string, string]
	resets      *ttlcache.Cache[string, string]
	rateLimiter *loginRateLimiter
	audit       *auditLogger
	alertFn     AlertFunc

	jwtSecret []byte
	accessTTL time.Duration
	otpTTL    time.Duration
	echoOTP   bool
	kdf       util.Argon2idParams
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithAlertFunc sets the callback for failure-rate anomalies. If not set,
// anomalies are logged as warnings.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// WithJWTSecret sets the HS256 signing secret for access tokens.
func WithJWTSecret(secret string) Option {
	return func(a *API) {
		a.jwtSecret = []byte(secret)
	}
}

// WithAccessTTL sets the lifetime of issued access tokens.
func WithAccessTTL(d time.Duration) Option {
	return func(a *API) {
		a.accessTTL = d
	}
}

// WithOTPTTL sets how long a one-time code stays valid.
func WithOTPTTL(d time.Duration) Option {
	return func(a *API) {
		a.otpTTL = d
	}
}

// WithEchoOTP controls whether issued codes are returned in response
// bodies. There is no mail delivery, so this is how a developer sees them.
func WithEchoOTP(echo bool) Option {
	return func(a *API) {
		a.echoOTP = echo
	}
}

// WithKDFParams sets the argon2id parameters for password verifiers.
func WithKDFParams(p util.Argon2idParams) Option {
	return func(a *API) {
		a.kdf = p
	}
}

// New creates a new API instance. Close releases its background workers.
func New(opts ...Option) *API {
	a := &API{
		accounts:    newAccountStore(),
		rateLimiter: newLoginRateLimiter(),
		jwtSecret:   []byte(defaultDevSecret),
		accessTTL:   defaultAccessTTL,
		otpTTL:      defaultOTPTTL,
		echoOTP:     true,
		kdf:         util.DefaultArgon2idParams(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	if a.alertFn == nil {
		a.alertFn = a.audit.alert
	}
	a.audit.metrics = newMetricsCollector(a.alertFn)
	a.otps = ttlcache.New(
		ttlcache.WithTTL[string, otpEntry](a.otpTTL),
		ttlcache.WithDisableTouchOnHit[string, otpEntry](),
	)
	a.refresh = ttlcache.New(
		ttlcache.WithTTL[string, string](refreshTokenTTL),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	a.resets = ttlcache.New(
		ttlcache.WithTTL[string, string](resetTokenTTL),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go a.otps.Start()
	go a.refresh.Start()
	go a.resets.Start()
	return a
}

// Close stops the expiry workers.
func (a *API) Close() {
	a.otps.Stop()
	a.refresh.Stop()
	a.resets.Stop()
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(SecurityHeaders)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/openapi.yaml",
		Path:    "docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/openapi.yaml",
		Path:    "redoc",
	}, nil))

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(a.CSRFMiddleware)
		r.Get("/csrf", a.CSRF)
		r.Post("/register", a.Register)
		r.Post("/login", a.Login)
		r.Post("/forget-password", a.ForgetPassword)
		r.Post("/verify-otp", a.VerifyOTP)
		r.Post("/resend-otp", a.ResendOTP)
		r.Post("/reset-password", a.ResetPassword)
		r.Post("/refresh-token", a.RefreshToken)
		r.Post("/logout", a.Logout)
		r.With(a.AuthMiddleware).Get("/me", a.Me)
	})

	return r
}
