// Package auth resolves per-user OAuth token sources from stored credentials.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/calsync/internal/connectors/google"
	"github.com/custodia-labs/calsync/internal/connectors/google/calendar"
	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/core/ports/driven"
)

// Ensure CredentialsTokenSources implements the interface.
var _ calendar.TokenSources = (*CredentialsTokenSources)(nil)

// CredentialsTokenSources hands out one refreshing token source per user,
// built from the credentials store.
type CredentialsTokenSources struct {
	config *oauth2.Config
	store  driven.CredentialsStore

	mu      sync.RWMutex
	sources map[string]oauth2.TokenSource
}

// NewCredentialsTokenSources creates a token source provider.
func NewCredentialsTokenSources(cfg *oauth2.Config, store driven.CredentialsStore) *CredentialsTokenSources {
	return &CredentialsTokenSources{
		config:  cfg,
		store:   store,
		sources: make(map[string]oauth2.TokenSource),
	}
}

// TokenSource returns the cached source for userID, loading credentials on
// first use. It returns domain.ErrAuthRequired when the user has no usable
// credentials.
func (p *CredentialsTokenSources) TokenSource(ctx context.Context, userID string) (oauth2.TokenSource, error) {
	// Fast path: cached source
	p.mu.RLock()
	ts, ok := p.sources[userID]
	p.mu.RUnlock()
	if ok {
		return ts, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring write lock
	if ts, ok := p.sources[userID]; ok {
		return ts, nil
	}

	creds, err := p.store.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: no credentials for user %s", domain.ErrAuthRequired, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get credentials: %w", err)
	}
	if !creds.IsAuthenticated() {
		return nil, fmt.Errorf("%w: credentials for user %s are not usable", domain.ErrAuthRequired, userID)
	}

	ts = google.NewTokenSource(ctx, p.config, p.store, *creds)
	p.sources[userID] = ts
	return ts, nil
}

// Invalidate drops the cached source for userID, so the next call reloads
// credentials from the store.
func (p *CredentialsTokenSources) Invalidate(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sources, userID)
}
