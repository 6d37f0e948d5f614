// Package memory provides in-memory implementations of the driven stores.
// State is lost on restart; intended for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/core/ports/driven"
)

// Ensure SyncTokenStore implements the interface.
var _ driven.SyncTokenStore = (*SyncTokenStore)(nil)

type tokenKey struct {
	userID     string
	calendarID string
}

// SyncTokenStore is an in-memory implementation of driven.SyncTokenStore.
type SyncTokenStore struct {
	mu     sync.RWMutex
	states map[tokenKey]domain.SyncState
	now    func() time.Time
}

// NewSyncTokenStore creates a new in-memory sync token store.
func NewSyncTokenStore() *SyncTokenStore {
	return &SyncTokenStore{
		states: make(map[tokenKey]domain.SyncState),
		now:    time.Now,
	}
}

// Get returns the stored token or "".
func (s *SyncTokenStore) Get(_ context.Context, userID, calendarID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[tokenKey{userID, calendarID}].SyncToken, nil
}

// Set upserts the token.
func (s *SyncTokenStore) Set(_ context.Context, userID, calendarID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[tokenKey{userID, calendarID}] = domain.SyncState{
		UserID:     userID,
		CalendarID: calendarID,
		SyncToken:  token,
		UpdatedAt:  s.now(),
	}
	return nil
}

// State returns the stored record.
func (s *SyncTokenStore) State(_ context.Context, userID, calendarID string) (*domain.SyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[tokenKey{userID, calendarID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &state, nil
}

// List returns a user's cursors ordered by calendar.
func (s *SyncTokenStore) List(_ context.Context, userID string) ([]domain.SyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.SyncState
	for k, state := range s.states {
		if k.userID == userID {
			out = append(out, state)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CalendarID < out[j].CalendarID })
	return out, nil
}
