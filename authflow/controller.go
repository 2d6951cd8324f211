// Package authflow is the state machine behind the account dialog: login,
// signup, password reset and one-time-code verification.
//
// A Controller owns the form state and sequences every submission through
// the gateway. Results that arrive after the flow was closed or reopened, or
// after the user followed a link or pressed back, are discarded. At most one
// submission is in flight at a time.
package authflow

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jmcleod/navauth/csrf"
	"github.com/jmcleod/navauth/gateway"
	"github.com/jmcleod/navauth/session"
)

// CookieStore writes and removes client-side cookies. *cookies.Jar
// satisfies it.
type CookieStore interface {
	Set(name, value string, maxAge time.Duration)
	Delete(names ...string)
}

// Controller drives the credential flow.
type Controller struct {
	mu      sync.Mutex
	state   State
	initial Mode

	// gen changes whenever the flow is opened or closed and whenever the
	// user leaves the current step; work started under an older generation
	// must not touch state.
	gen      uint64
	seq      uint64
	inflight uint64

	email       string
	rememberMe  bool
	provisional string
	resetToken  string

	countdown    *countdown
	closeTimer   *time.Timer
	successTimer *time.Timer
	shutdown     bool

	client    *gateway.Client
	store     *session.Store
	csrf      *csrf.Context
	cookies   CookieStore
	notifier  Notifier
	navigator Navigator
	timing    Timing
	logger    *slog.Logger

	subsMu sync.Mutex
	subs   map[uint64]func(State)
	nextID uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithCSRF re-fetches the anti-forgery ticket after every mutation that may
// rotate it.
func WithCSRF(c *csrf.Context) Option {
	return func(ctl *Controller) {
		ctl.csrf = c
	}
}

// WithCookies enables the fallback session cookies written after
// verification and removed after a password reset.
func WithCookies(c CookieStore) Option {
	return func(ctl *Controller) {
		ctl.cookies = c
	}
}

// WithNotifier sets where toasts go.
func WithNotifier(n Notifier) Option {
	return func(ctl *Controller) {
		ctl.notifier = n
	}
}

// WithNavigator sets where navigation requests go.
func WithNavigator(n Navigator) Option {
	return func(ctl *Controller) {
		ctl.navigator = n
	}
}

// WithTiming overrides DefaultTiming.
func WithTiming(t Timing) Option {
	return func(ctl *Controller) {
		ctl.timing = t
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(ctl *Controller) {
		ctl.logger = logger.With("component", "authflow")
	}
}

// New creates a closed Controller.
func New(client *gateway.Client, store *session.Store, opts ...Option) *Controller {
	c := &Controller{
		initial:   ModeLogin,
		client:    client,
		store:     store,
		notifier:  nopNotifier{},
		navigator: nopNavigator{},
		timing:    DefaultTiming,
		logger:    slog.New(slog.DiscardHandler),
		subs:      make(map[uint64]func(State)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state = c.defaultState(ModeLogin)
	return c
}

func (c *Controller) defaultState(mode Mode) State {
	return State{
		Mode:        mode,
		Fields:      Fields{},
		FieldErrors: FieldErrors{},
		LoggedIn:    c.store.LoggedIn(),
	}
}

// Open starts the flow in mode, which must be login, signup or forgot. An
// empty mode means login. Opening an already open flow does nothing.
func (c *Controller) Open(mode Mode) error {
	if mode == "" {
		mode = ModeLogin
	}
	if !entryMode(mode) {
		return ErrInvalidMode
	}
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.Open {
		c.mu.Unlock()
		return nil
	}
	c.stopTimersLocked()
	c.gen++
	c.inflight = 0
	c.initial = mode
	c.clearFlowLocked()
	c.state = c.defaultState(mode)
	c.state.Open = true
	snap := c.state.clone()
	c.mu.Unlock()

	c.logger.Debug("flow opened", slog.String("mode", string(mode)))
	c.emit(snap)
	return nil
}

// Close hides the flow immediately and resets it to the login defaults
// after the close delay. In-flight results are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	if !c.state.Open {
		c.mu.Unlock()
		return
	}
	c.stopTimersLocked()
	c.gen++
	c.inflight = 0
	gen := c.gen
	c.state.Open = false
	c.state.Submitting = false
	c.state.OTPCountdown = 0
	snap := c.state.clone()
	c.closeTimer = time.AfterFunc(c.timing.CloseDelay, func() {
		c.resetAfterClose(gen)
	})
	c.mu.Unlock()

	c.logger.Debug("flow closed")
	c.emit(snap)
}

func (c *Controller) resetAfterClose(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state.Open {
		c.mu.Unlock()
		return
	}
	c.initial = ModeLogin
	c.clearFlowLocked()
	c.state = c.defaultState(ModeLogin)
	snap := c.state.clone()
	c.mu.Unlock()
	c.emit(snap)
}

// Shutdown stops every timer and closes the flow for good.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	c.stopTimersLocked()
	c.shutdown = true
	c.gen++
	c.inflight = 0
	c.state.Open = false
	c.state.Submitting = false
	c.mu.Unlock()
}

// SwitchMode follows a link between login, signup and forgot. Fields and
// errors are reset; the code origin is kept.
func (c *Controller) SwitchMode(mode Mode) error {
	if !entryMode(mode) {
		return ErrInvalidMode
	}
	c.mu.Lock()
	if !c.state.Open {
		c.mu.Unlock()
		return ErrClosed
	}
	c.supersedeLocked()
	c.enterModeLocked(mode)
	snap := c.state.clone()
	c.mu.Unlock()
	c.emit(snap)
	return nil
}

// Back returns to the flow that started the code challenge, else the mode
// the flow was opened in. No request is made.
func (c *Controller) Back() {
	c.mu.Lock()
	if !c.state.Open {
		c.mu.Unlock()
		return
	}
	target := c.initial
	if c.state.OTPOrigin != OriginNone {
		target = Mode(c.state.OTPOrigin)
	}
	if target == "" {
		target = ModeLogin
	}
	c.supersedeLocked()
	c.enterModeLocked(target)
	snap := c.state.clone()
	c.mu.Unlock()
	c.emit(snap)
}

// SetField records an input value and clears that input's error.
func (c *Controller) SetField(name, value string) {
	c.mu.Lock()
	c.state.Fields[name] = value
	delete(c.state.FieldErrors, name)
	snap := c.state.clone()
	c.mu.Unlock()
	c.emit(snap)
}

// SetCheck records a checkbox value.
func (c *Controller) SetCheck(name string, checked bool) {
	v := "false"
	if checked {
		v = "true"
	}
	c.SetField(name, v)
}

// State returns a snapshot of the flow.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Subscribe registers fn for state snapshots. Callbacks run outside the
// controller's lock on the goroutine that made the change.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.subsMu.Lock()
	c.nextID++
	id := c.nextID
	c.subs[id] = fn
	c.subsMu.Unlock()
	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

func (c *Controller) emit(s State) {
	c.subsMu.Lock()
	fns := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subsMu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func entryMode(m Mode) bool {
	return m == ModeLogin || m == ModeSignup || m == ModeForgot
}

func (c *Controller) enterModeLocked(mode Mode) {
	c.stopCountdownLocked()
	c.state.Mode = mode
	c.state.Fields = Fields{}
	c.state.FieldErrors = FieldErrors{}
	c.state.InlineOTP = ""
}

// supersedeLocked abandons the submission in flight, if any, so that its
// result cannot land on the step the user moved to.
func (c *Controller) supersedeLocked() {
	c.gen++
	c.inflight = 0
	c.state.Submitting = false
}

// clearFlowLocked forgets everything a previous flow captured.
func (c *Controller) clearFlowLocked() {
	c.email = ""
	c.rememberMe = false
	c.provisional = ""
	c.resetToken = ""
}

func (c *Controller) stopCountdownLocked() {
	c.countdown.Stop()
	c.countdown = nil
	c.state.OTPCountdown = 0
}

func (c *Controller) startCountdownLocked() {
	c.stopCountdownLocked()
	c.state.OTPCountdown = c.timing.CountdownSeconds
	var cd *countdown
	cd = startCountdown(c.timing.CountdownSeconds, c.timing.Tick, func(remaining int) {
		c.mu.Lock()
		if c.countdown != cd {
			c.mu.Unlock()
			return
		}
		c.state.OTPCountdown = remaining
		snap := c.state.clone()
		c.mu.Unlock()
		c.emit(snap)
	})
	c.countdown = cd
}

func (c *Controller) stopTimersLocked() {
	c.stopCountdownLocked()
	if c.closeTimer != nil {
		c.closeTimer.Stop()
		c.closeTimer = nil
	}
	if c.successTimer != nil {
		c.successTimer.Stop()
		c.successTimer = nil
	}
}

// applyErrorsLocked replaces the displayed errors only when they differ and
// reports whether they did.
func (c *Controller) applyErrorsLocked(errs FieldErrors) bool {
	if c.state.FieldErrors.Equal(errs) {
		return false
	}
	c.state.FieldErrors = errs
	return true
}
