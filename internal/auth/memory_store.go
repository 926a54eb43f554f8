package auth

import (
	"context"
	"strings"
	"sync"

	xerrors "SuiCoPilot/internal/errors"
)

// MemoryStore provides an in-memory implementation of the UserStore
// interface, intended for development and testing scenarios.
type MemoryStore struct {
	mu      sync.RWMutex
	byEmail map[string]Account
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byEmail: make(map[string]Account)}
}

// FindByEmail implements UserStore.
func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, "user not found")
	}
	return &account, nil
}

// Create implements UserStore.
func (s *MemoryStore) Create(_ context.Context, account Account) error {
	key := strings.ToLower(strings.TrimSpace(account.Email))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[key]; exists {
		return xerrors.New(xerrors.CodeConflict, "User already registered")
	}
	account.Email = key
	s.byEmail[key] = account
	return nil
}
