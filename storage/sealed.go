package storage

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jmcleod/navauth/internal/util"
)

const (
	keyNamespace  = "__keys"
	keyRecordType = "DATA_KEY"
	keyRecordID   = "current"
	keyWrapAAD    = "navauth:data_key:v1"
)

// Sealed stores JSON values as AES-256-GCM envelopes in a Repository.
//
// The data key is itself sealed with an externally provided wrapping key
// before being written, so the repository file alone does not reveal the
// bearer token or cookie values kept in it.
type Sealed struct {
	repo      Repository
	namespace string
	key       []byte
	closeOnce sync.Once
}

// NewSealed returns a Sealed facade over repo, scoped to namespace. The
// wrappingKey must be 32 bytes.
func NewSealed(repo Repository, namespace string, wrappingKey []byte) (*Sealed, error) {
	if len(wrappingKey) != util.AESKeySize {
		return nil, fmt.Errorf("wrapping key must be exactly %d bytes, got %d", util.AESKeySize, len(wrappingKey))
	}
	key, err := LoadOrCreateKey(repo, wrappingKey)
	if err != nil {
		return nil, err
	}
	return &Sealed{repo: repo, namespace: namespace, key: key}, nil
}

// Close wipes the data key. The repository is left open.
func (s *Sealed) Close() {
	s.closeOnce.Do(func() {
		util.WipeBytes(s.key)
	})
}

func (s *Sealed) aad(recordType, recordID string) []byte {
	return []byte(s.namespace + ":" + recordType + ":" + recordID)
}

// PutJSON marshals v and stores it sealed under recordType/recordID.
func (s *Sealed) PutJSON(recordType, recordID string, v any) error {
	env, err := s.seal(recordType, recordID, v)
	if err != nil {
		return err
	}
	if err := s.repo.Put(s.namespace, recordType, recordID, env); err != nil {
		return fmt.Errorf("writing %s/%s: %w", recordType, recordID, err)
	}
	return nil
}

// GetJSON opens the record and unmarshals it into v. Missing records return
// an error matching ErrNotFound.
func (s *Sealed) GetJSON(recordType, recordID string, v any) error {
	env, err := s.repo.Get(s.namespace, recordType, recordID)
	if err != nil {
		return err
	}
	data, err := OpenRecord(s.key, env, s.aad(recordType, recordID))
	if err != nil {
		return fmt.Errorf("opening %s/%s: %w", recordType, recordID, err)
	}
	defer util.WipeBytes(data)
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s/%s: %w", recordType, recordID, err)
	}
	return nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (s *Sealed) Delete(recordType, recordID string) error {
	if err := s.repo.Delete(s.namespace, recordType, recordID); err != nil && !IsNotFound(err) {
		return err
	}
	return nil
}

// List returns the IDs of every record of recordType.
func (s *Sealed) List(recordType string) ([]string, error) {
	return s.repo.List(s.namespace, recordType)
}

// ReplaceAll atomically replaces every record of recordType with values.
func (s *Sealed) ReplaceAll(recordType string, values map[string]any) error {
	existing, err := s.repo.List(s.namespace, recordType)
	if err != nil {
		return err
	}
	envs := make(map[string]*Envelope, len(values))
	for id, v := range values {
		env, err := s.seal(recordType, id, v)
		if err != nil {
			return err
		}
		envs[id] = env
	}
	return s.repo.Batch(s.namespace, func(tx BatchTx) error {
		for _, id := range existing {
			if _, keep := envs[id]; keep {
				continue
			}
			if err := tx.Delete(recordType, id); err != nil && !IsNotFound(err) {
				return err
			}
		}
		for id, env := range envs {
			if err := tx.Put(recordType, id, env); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Sealed) seal(recordType, recordID string, v any) (*Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s/%s: %w", recordType, recordID, err)
	}
	defer util.WipeBytes(data)
	return SealRecord(s.key, data, s.aad(recordType, recordID))
}

// LoadOrCreateKey loads the data key from the repository, unsealing it with
// the wrapping key. If no key exists, or the stored key cannot be opened with
// this wrapping key, a new random key is generated, sealed and persisted.
// Records sealed with a replaced key become unreadable.
func LoadOrCreateKey(repo Repository, wrappingKey []byte) ([]byte, error) {
	aad := []byte(keyWrapAAD)

	env, err := repo.Get(keyNamespace, keyRecordType, keyRecordID)
	if err == nil && env != nil {
		key, openErr := OpenRecord(wrappingKey, env, aad)
		if openErr == nil && len(key) == util.AESKeySize {
			return key, nil
		}
		// Wrong wrapping key or corrupt record: fall through and regenerate.
	}
	if err != nil && !IsNotFound(err) {
		return nil, fmt.Errorf("loading data key: %w", err)
	}

	key, err := util.NewAESKey()
	if err != nil {
		return nil, err
	}
	sealed, err := SealRecord(wrappingKey, key, aad)
	if err != nil {
		util.WipeBytes(key)
		return nil, fmt.Errorf("sealing data key: %w", err)
	}
	if err := repo.Put(keyNamespace, keyRecordType, keyRecordID, sealed); err != nil {
		util.WipeBytes(key)
		return nil, fmt.Errorf("persisting data key: %w", err)
	}
	return key, nil
}
