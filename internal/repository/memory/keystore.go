package memory

import (
	"context"
	"fmt"
	"ledger_guard/internal/repository"
	"sync"
)

// KeyStore is an in-memory secure key store. Production deployments back
// this interface with hardware-protected storage; the StrongProtection flag
// models whether such protection is available.
type KeyStore struct {
	mu               sync.RWMutex
	keys             map[string]string
	strongProtection bool
}

func NewKeyStore(strongProtection bool) *KeyStore {
	return &KeyStore{
		keys:             make(map[string]string),
		strongProtection: strongProtection,
	}
}

func (s *KeyStore) Get(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	secret, exists := s.keys[name]
	if !exists {
		return "", fmt.Errorf("%w: %s", repository.ErrKeyNotFound, name)
	}
	return secret, nil
}

func (s *KeyStore) Set(ctx context.Context, name, secret string, requireStrongProtection bool) error {
	if requireStrongProtection && !s.strongProtection {
		return fmt.Errorf("strong protection required but unavailable for key %s", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[name] = secret
	return nil
}

func (s *KeyStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, name)
	return nil
}

func (s *KeyStore) StrongProtectionAvailable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.strongProtection
}

// SetStrongProtection toggles hardware-backed availability, used by tests to
// model enclave loss.
func (s *KeyStore) SetStrongProtection(available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strongProtection = available
}
