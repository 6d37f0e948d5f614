package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/core/ports/driven"
)

// Ensure ConnectionStore implements the interface.
var _ driven.ConnectionStore = (*ConnectionStore)(nil)

// ConnectionStore is an in-memory implementation of driven.ConnectionStore.
type ConnectionStore struct {
	mu    sync.RWMutex
	conns map[string]domain.Connection
	now   func() time.Time
}

// NewConnectionStore creates a new in-memory connection store.
func NewConnectionStore() *ConnectionStore {
	return &ConnectionStore{
		conns: make(map[string]domain.Connection),
		now:   time.Now,
	}
}

// Get returns a user's connection.
func (s *ConnectionStore) Get(_ context.Context, userID string) (*domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.conns[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &conn, nil
}

// UpdateStatus applies the update under the store lock.
func (s *ConnectionStore) UpdateStatus(_ context.Context, update domain.StatusUpdate) error {
	if update.UserID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var current *domain.Connection
	if conn, ok := s.conns[update.UserID]; ok {
		current = &conn
	}
	s.conns[update.UserID] = update.Apply(current, s.now())
	return nil
}

// ListByStatus returns connections in status ordered by user.
func (s *ConnectionStore) ListByStatus(_ context.Context, status domain.ConnectionStatus) ([]domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Connection
	for _, conn := range s.conns {
		if conn.Status == status {
			out = append(out, conn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
