// Package session owns the client's bearer token.
//
// A Store reconciles three sources: the in-memory token (freshest within a
// process lifetime), the durable token written when the user asked to be
// remembered, and the token-bearing cookies the backend or the client set.
// Exactly one Store exists per client process; it is passed to the
// components that need it rather than held in a package variable.
package session

import (
	"log/slog"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/navauth/storage"
)

const (
	tokenRecordType = "TOKEN"
	tokenRecordID   = "authToken"
	flagRecordType  = "FLAG"
	flagLoggedIn    = "isLoggedIn"
)

// DefaultCookieNames is the order in which token-bearing cookies are probed
// when neither memory nor durable storage holds a token.
var DefaultCookieNames = []string{"accessToken", "authToken", "token"}

// Names of the cookie pair whose joint presence means the session can renew
// itself.
const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// CookieReader reads cookies by name. *cookies.Jar satisfies it.
type CookieReader interface {
	Get(name string) (string, bool)
}

// AuthSession is a snapshot of the session as seen by readers.
type AuthSession struct {
	BearerToken string
	Persisted   bool
}

// Event is delivered to subscribers on every token or logged-in mutation.
type Event struct {
	Token    string
	LoggedIn bool
}

// Store is the single source of truth for the bearer token.
type Store struct {
	mu       sync.RWMutex
	memory   *memguard.Enclave
	loggedIn bool

	durable     *storage.Sealed
	cookies     CookieReader
	cookieNames []string
	logger      *slog.Logger

	subsMu sync.Mutex
	subs   []subscriber
	nextID uint64
}

type subscriber struct {
	id uint64
	fn func(Event)
}

type tokenRecord struct {
	Token string `json:"token"`
}

// Option configures a Store.
type Option func(*Store)

// WithDurable enables the durable token layer.
func WithDurable(sealed *storage.Sealed) Option {
	return func(s *Store) {
		s.durable = sealed
	}
}

// WithCookies sets the cookie source consulted as the last fallback and by
// HasSessionCookies.
func WithCookies(c CookieReader) Option {
	return func(s *Store) {
		s.cookies = c
	}
}

// WithCookieNames overrides DefaultCookieNames.
func WithCookieNames(names ...string) Option {
	return func(s *Store) {
		s.cookieNames = append([]string(nil), names...)
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger.With("component", "session")
	}
}

// New creates a Store. The logged-in flag is restored from durable storage
// when that layer is enabled.
func New(opts ...Option) *Store {
	s := &Store{
		cookieNames: DefaultCookieNames,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.durable != nil {
		var flag bool
		if err := s.durable.GetJSON(flagRecordType, flagLoggedIn, &flag); err == nil {
			s.loggedIn = flag
		} else if !storage.IsNotFound(err) {
			s.logger.Warn("failed to read logged-in flag", slog.String("error", err.Error()))
		}
	}
	return s
}

// SetToken stores token in memory and, when persist is true, in durable
// storage. An empty token clears memory and durable storage. Subscribers are
// notified on every call, including when the value did not change.
func (s *Store) SetToken(token string, persist bool) {
	s.mu.Lock()
	s.destroyMemoryLocked()
	if token == "" {
		s.deleteDurableLocked()
	} else {
		s.memory = memguard.NewEnclave([]byte(token))
		if persist {
			s.writeDurableLocked(token)
		}
	}
	loggedIn := s.loggedIn
	s.mu.Unlock()

	s.logger.Debug("token updated", slog.Bool("present", token != ""), slog.Bool("persist", persist))
	s.notify(Event{Token: token, LoggedIn: loggedIn})
}

// Clear drops the token from memory and durable storage.
func (s *Store) Clear() {
	s.SetToken("", false)
}

// Token resolves the bearer token: memory first, then durable storage, then
// the first present cookie among the configured names. It returns "" when
// no source holds a token.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t := s.memoryLocked(); t != "" {
		return t
	}
	if t := s.durableLocked(); t != "" {
		return t
	}
	if s.cookies != nil {
		for _, name := range s.cookieNames {
			if v, ok := s.cookies.Get(name); ok && v != "" {
				return v
			}
		}
	}
	return ""
}

// Session returns the current token together with whether it is durable.
func (s *Store) Session() AuthSession {
	token := s.Token()
	s.mu.RLock()
	persisted := token != "" && s.durableLocked() == token
	s.mu.RUnlock()
	return AuthSession{BearerToken: token, Persisted: persisted}
}

// HasSessionCookies reports whether BOTH the access and refresh cookies are
// present. A lone access cookie cannot be renewed and counts as logged out.
func (s *Store) HasSessionCookies() bool {
	if s.cookies == nil {
		return false
	}
	_, access := s.cookies.Get(AccessCookie)
	_, refresh := s.cookies.Get(RefreshCookie)
	return access && refresh
}

// SetLoggedIn records the logged-in flag and notifies subscribers.
func (s *Store) SetLoggedIn(loggedIn bool) {
	s.mu.Lock()
	s.loggedIn = loggedIn
	if s.durable != nil {
		var err error
		if loggedIn {
			err = s.durable.PutJSON(flagRecordType, flagLoggedIn, true)
		} else {
			err = s.durable.Delete(flagRecordType, flagLoggedIn)
		}
		if err != nil {
			s.logger.Warn("failed to write logged-in flag", slog.String("error", err.Error()))
		}
	}
	s.mu.Unlock()

	s.notify(Event{Token: s.Token(), LoggedIn: loggedIn})
}

// LoggedIn returns the logged-in flag.
func (s *Store) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedIn
}

// Subscribe registers fn for session events. Callbacks run synchronously on
// the goroutine that made the mutation, after the store's lock is released.
// The returned function unregisters fn.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subsMu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Close destroys the in-memory token.
func (s *Store) Close() {
	s.mu.Lock()
	s.destroyMemoryLocked()
	s.mu.Unlock()
}

func (s *Store) notify(ev Event) {
	s.subsMu.Lock()
	subs := append([]subscriber(nil), s.subs...)
	s.subsMu.Unlock()
	for _, sub := range subs {
		sub.fn(ev)
	}
}

func (s *Store) memoryLocked() string {
	if s.memory == nil {
		return ""
	}
	buf, err := s.memory.Open()
	if err != nil {
		s.logger.Warn("failed to open token enclave", slog.String("error", err.Error()))
		return ""
	}
	defer buf.Destroy()
	return string(buf.Bytes())
}

// destroyMemoryLocked drops the enclave; its ciphertext is unreachable
// afterwards and the enclave key is shared process-wide by memguard.
func (s *Store) destroyMemoryLocked() {
	s.memory = nil
}

func (s *Store) durableLocked() string {
	if s.durable == nil {
		return ""
	}
	var rec tokenRecord
	if err := s.durable.GetJSON(tokenRecordType, tokenRecordID, &rec); err != nil {
		if !storage.IsNotFound(err) {
			s.logger.Warn("failed to read durable token", slog.String("error", err.Error()))
		}
		return ""
	}
	return rec.Token
}

func (s *Store) writeDurableLocked(token string) {
	if s.durable == nil {
		return
	}
	if err := s.durable.PutJSON(tokenRecordType, tokenRecordID, tokenRecord{Token: token}); err != nil {
		s.logger.Warn("failed to persist token", slog.String("error", err.Error()))
	}
}

func (s *Store) deleteDurableLocked() {
	if s.durable == nil {
		return
	}
	if err := s.durable.Delete(tokenRecordType, tokenRecordID); err != nil {
		s.logger.Warn("failed to clear durable token", slog.String("error", err.Error()))
	}
}
