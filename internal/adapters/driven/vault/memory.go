package vault

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/core/ports/driven"
)

// Ensure MemorySink implements the interface.
var _ driven.MemorySink = (*MemorySink)(nil)

// MemorySink keeps memories in process. Used when no vault is configured.
type MemorySink struct {
	mu       sync.RWMutex
	memories map[string]map[string]domain.Memory
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{memories: make(map[string]map[string]domain.Memory)}
}

// Upsert stores a memory by external id.
func (s *MemorySink) Upsert(_ context.Context, userID string, memory domain.Memory) error {
	if userID == "" || memory.ExternalID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.memories[userID]
	if !ok {
		user = make(map[string]domain.Memory)
		s.memories[userID] = user
	}
	user[memory.ExternalID] = memory
	return nil
}

// Delete removes a memory. Missing memories are not an error.
func (s *MemorySink) Delete(_ context.Context, userID, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memories[userID], externalID)
	return nil
}

// List returns a user's memories ordered by external id.
func (s *MemorySink) List(userID string) []domain.Memory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Memory, 0, len(s.memories[userID]))
	for _, m := range s.memories[userID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out
}
