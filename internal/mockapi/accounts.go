package mockapi

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmcleod/navauth/internal/util"
)

const saltLen = 16

var (
	errAccountExists   = errors.New("account already exists")
	errAccountNotFound = errors.New("account not found")
)

// accountRecord is a registered user. The password is kept only as an
// argon2id verifier.
type accountRecord struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
	Salt      []byte
	Verifier  []byte
	Verified  bool
	CreatedAt time.Time
}

type accountStore struct {
	mu   sync.RWMutex
	data map[string]accountRecord
}

func newAccountStore() *accountStore {
	return &accountStore{data: make(map[string]accountRecord)}
}

func accountKey(email string) string {
	return strings.ToLower(util.NormalizeInput(email))
}

func (s *accountStore) create(rec accountRecord) error {
	key := accountKey(rec.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return errAccountExists
	}
	s.data[key] = rec
	return nil
}

func (s *accountStore) get(email string) (accountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[accountKey(email)]
	if !ok {
		return accountRecord{}, errAccountNotFound
	}
	return rec, nil
}

func (s *accountStore) update(email string, fn func(*accountRecord)) error {
	key := accountKey(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[key]
	if !ok {
		return errAccountNotFound
	}
	fn(&rec)
	s.data[key] = rec
	return nil
}

// newVerifier derives a fresh salt and argon2id verifier for password.
func (a *API) newVerifier(password string) (salt, verifier []byte, err error) {
	salt, err = util.RandomBytes(saltLen)
	if err != nil {
		return nil, nil, fmt.Errorf("generating salt: %w", err)
	}
	verifier, err = util.DeriveArgon2idKey(password, salt, a.kdf)
	if err != nil {
		return nil, nil, fmt.Errorf("deriving verifier: %w", err)
	}
	return salt, verifier, nil
}

// checkPassword reports whether password matches the account's verifier.
func (a *API) checkPassword(rec accountRecord, password string) bool {
	ok, err := util.CompareArgon2idKey(password, rec.Salt, a.kdf, rec.Verifier)
	return err == nil && ok
}
