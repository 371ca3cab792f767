// Package keys manages admin API keys. Keys are random secrets handed to
// operators out of band; only bcrypt hashes are held in memory, so a
// process dump never yields a usable key.
package keys

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	dErrors "taxfile/pkg/domain-errors"
)

// Generate creates a cryptographically secure random admin key.
func Generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash creates a bcrypt hash of the provided key for storage.
func Hash(key string) (string, error) {
	if key == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "key cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "key is too long")
		}
		return "", fmt.Errorf("could not hash key: %w", err)
	}
	return string(hashed), nil
}

// Store holds the active key hashes. The set is small (one per operator
// team), so verification walks all of them.
type Store struct {
	mu     sync.RWMutex
	hashes []string
}

// NewStore returns a store seeded with pre-hashed keys, typically loaded
// from configuration at startup.
func NewStore(hashes ...string) *Store {
	return &Store{hashes: append([]string(nil), hashes...)}
}

// Add registers a new key hash.
func (s *Store) Add(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes = append(s.hashes, hash)
}

// VerifyKey checks the presented key against every stored hash. Satisfies
// the admin middleware's verifier contract.
func (s *Store) VerifyKey(_ context.Context, key string) error {
	if key == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "admin key required")
	}
	s.mu.RLock()
	hashes := s.hashes
	s.mu.RUnlock()

	for _, hash := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeUnauthorized, "invalid admin key")
}
