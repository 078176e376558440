package credential

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrNotStored is returned by a TokenStore when it holds no credential for a key.
var ErrNotStored = errors.New("credential not stored")

// TokenStore persists refreshed credentials so that separate processes signed in
// as the same identity can share an ID token instead of each refreshing it.
type TokenStore interface {
	Set(ctx context.Context, key string, cred Credential) error
	Fetch(ctx context.Context, key string) (Credential, error)
	Delete(ctx context.Context, key string) error
	io.Closer
}

// StoreKey derives a store key from a refresh token without exposing the token.
func StoreKey(refreshToken string) string {
	sum := sha256.Sum256([]byte(refreshToken))
	return "resourcesync:credential:" + hex.EncodeToString(sum[:16])
}

// InMemoryTokenStore is a thread-safe TokenStore for a single process and for tests.
type InMemoryTokenStore struct {
	mu   sync.RWMutex
	data map[string]Credential
}

func NewInMemoryTokenStore() *InMemoryTokenStore {
	return &InMemoryTokenStore{data: make(map[string]Credential)}
}

func (s *InMemoryTokenStore) Set(_ context.Context, key string, cred Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = cred
	return nil
}

func (s *InMemoryTokenStore) Fetch(_ context.Context, key string) (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.data[key]
	if !ok {
		return Credential{}, fmt.Errorf("key %q: %w", key, ErrNotStored)
	}
	return cred, nil
}

func (s *InMemoryTokenStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Close is a no-op for the in-memory implementation.
func (s *InMemoryTokenStore) Close() error {
	return nil
}
