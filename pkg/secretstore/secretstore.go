// Package secretstore stores signer credentials encrypted at rest
// (Badger). Encryption comes from Badger options (value log + key
// registry), not from this wrapper.
package secretstore

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

const credentialPrefix = "signer/"

// Credential is one named signing identity. Exactly one of
// PrivateKeyHex or Mnemonic is expected to be set.
type Credential struct {
	PrivateKeyHex  string `json:"private_key,omitempty"`
	Mnemonic       string `json:"mnemonic,omitempty"`
	DerivationPath string `json:"derivation_path,omitempty"`
}

// Store is a small encrypted-at-rest credential store.
type Store struct {
	db *badger.DB
}

type OpenOptions struct {
	Path          string
	EncryptionKey []byte // 32 bytes; if nil, DB is opened without encryption (not recommended)
	ReadOnly      bool
}

func Open(opts OpenOptions) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("secretstore: path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithReadOnly(opts.ReadOnly)
	if len(opts.EncryptionKey) > 0 {
		// Badger requires an index cache for encrypted workloads
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutCredential stores a named credential, replacing any previous one.
func (s *Store) PutCredential(name string, cred Credential) error {
	if s == nil || s.db == nil {
		return errors.New("secretstore: not opened")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("secretstore: credential name is empty")
	}
	if cred.PrivateKeyHex == "" && cred.Mnemonic == "" {
		return errors.New("secretstore: credential has neither key nor mnemonic")
	}
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("secretstore: encode credential: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(credentialPrefix+name), data)
	})
}

// GetCredential loads a named credential. The second return value is
// false when the name is unknown.
func (s *Store) GetCredential(name string) (*Credential, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, errors.New("secretstore: not opened")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, errors.New("secretstore: credential name is empty")
	}
	var cred *Credential
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(credentialPrefix + name))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var c Credential
			if err := json.Unmarshal(val, &c); err != nil {
				return fmt.Errorf("secretstore: decode credential: %w", err)
			}
			cred = &c
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	if cred == nil {
		return nil, false, nil
	}
	return cred, true, nil
}

// DeleteCredential removes a named credential. Deleting an unknown
// name is not an error.
func (s *Store) DeleteCredential(name string) error {
	if s == nil || s.db == nil {
		return errors.New("secretstore: not opened")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(credentialPrefix + strings.TrimSpace(name)))
	})
}

// ParseKey expects 32 bytes (hex or base64). Returns nil if input is empty.
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	// Prefer hex when it looks like hex (64 hex chars = 32 bytes) to
	// avoid misreading hex strings as base64.
	rawHex := strings.TrimPrefix(raw, "0x")
	if len(rawHex) == 64 {
		if b, err := hex.DecodeString(rawHex); err == nil {
			return b, nil
		}
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("secretstore: key must be 32 bytes, got %d", len(b))
		}
		return b, nil
	}
	return nil, errors.New("secretstore: key must be 32 bytes hex or base64")
}
