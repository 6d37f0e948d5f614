package memory

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/core/ports/driven"
)

// Ensure CredentialsStore implements the interface.
var _ driven.CredentialsStore = (*CredentialsStore)(nil)

// CredentialsStore is an in-memory implementation of driven.CredentialsStore.
type CredentialsStore struct {
	mu    sync.RWMutex
	creds map[string]domain.Credentials
}

// NewCredentialsStore creates a new in-memory credentials store.
func NewCredentialsStore() *CredentialsStore {
	return &CredentialsStore{
		creds: make(map[string]domain.Credentials),
	}
}

// Save stores or updates credentials. The OAuth token pair is copied so
// later mutation by the caller does not leak into the store.
func (s *CredentialsStore) Save(_ context.Context, creds domain.Credentials) error {
	if creds.UserID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.creds[creds.UserID]; ok && creds.CreatedAt.IsZero() {
		creds.CreatedAt = existing.CreatedAt
	}
	if creds.CreatedAt.IsZero() {
		creds.CreatedAt = now
	}
	if creds.UpdatedAt.IsZero() {
		creds.UpdatedAt = now
	}
	s.creds[creds.UserID] = cloneCredentials(creds)
	return nil
}

// Get retrieves credentials by user ID.
func (s *CredentialsStore) Get(_ context.Context, userID string) (*domain.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	creds, ok := s.creds[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneCredentials(creds)
	return &out, nil
}

// Delete removes credentials by user ID.
func (s *CredentialsStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, userID)
	return nil
}

func cloneCredentials(c domain.Credentials) domain.Credentials {
	if c.OAuth != nil {
		oauth := *c.OAuth
		c.OAuth = &oauth
	}
	return c
}
