package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jmcleod/navauth/session"
)

// DefaultSkew is how close to expiry a token must be for Sync to renew it.
const DefaultSkew = time.Minute

// AuthState caches the logged-in state shown by chrome. It re-derives on
// every session event and reconciles against cookie presence in Sync.
type AuthState struct {
	mu       sync.Mutex
	loggedIn bool

	store       *session.Store
	coord       *Coordinator
	skew        time.Duration
	unsubscribe func()
	onChange    func(bool)
	logger      *slog.Logger
}

// StateOption configures an AuthState.
type StateOption func(*AuthState)

// WithSkew overrides DefaultSkew.
func WithSkew(d time.Duration) StateOption {
	return func(a *AuthState) {
		a.skew = d
	}
}

// OnChange registers fn to be called whenever the cached state flips.
func OnChange(fn func(loggedIn bool)) StateOption {
	return func(a *AuthState) {
		a.onChange = fn
	}
}

// WithStateLogger sets the structured logger.
func WithStateLogger(logger *slog.Logger) StateOption {
	return func(a *AuthState) {
		a.logger = logger.With("component", "auth_state")
	}
}

// NewAuthState derives the initial state from store and subscribes to it.
// Close releases the subscription.
func NewAuthState(store *session.Store, coord *Coordinator, opts ...StateOption) *AuthState {
	a := &AuthState{
		store:  store,
		coord:  coord,
		skew:   DefaultSkew,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.loggedIn = a.derive()
	a.unsubscribe = store.Subscribe(func(session.Event) {
		a.set(a.derive())
	})
	return a
}

// LoggedIn returns the cached state.
func (a *AuthState) LoggedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loggedIn
}

// Sync refreshes the session when cookie presence disagrees with the cached
// state or the current token is about to expire, then returns the new state.
func (a *AuthState) Sync(ctx context.Context) bool {
	cookies := a.store.HasSessionCookies()
	cached := a.LoggedIn()
	expiring := NeedsRefresh(a.store.Token(), a.skew)
	if cookies == cached && !expiring {
		return cached
	}

	a.logger.Debug("reconciling auth state",
		slog.Bool("cookies", cookies),
		slog.Bool("cached", cached),
		slog.Bool("expiring", expiring),
	)
	res := a.coord.Refresh(ctx)
	if res.OK {
		a.set(true)
		return true
	}
	a.set(cookies)
	return cookies
}

// Close stops following session events.
func (a *AuthState) Close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
}

func (a *AuthState) derive() bool {
	return a.store.HasSessionCookies() || a.store.LoggedIn()
}

func (a *AuthState) set(v bool) {
	a.mu.Lock()
	changed := a.loggedIn != v
	a.loggedIn = v
	a.mu.Unlock()
	if changed && a.onChange != nil {
		a.onChange(v)
	}
}
