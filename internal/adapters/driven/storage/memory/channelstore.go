package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/core/ports/driven"
)

// Ensure ChannelStore implements the interface.
var _ driven.ChannelStore = (*ChannelStore)(nil)

// ChannelStore is an in-memory implementation of driven.ChannelStore.
type ChannelStore struct {
	mu       sync.RWMutex
	channels map[string]domain.WebhookChannel
}

// NewChannelStore creates a new in-memory channel store.
func NewChannelStore() *ChannelStore {
	return &ChannelStore{
		channels: make(map[string]domain.WebhookChannel),
	}
}

// Save creates or replaces a channel.
func (s *ChannelStore) Save(_ context.Context, ch domain.WebhookChannel) error {
	if ch.ID == "" || ch.UserID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now()
	}
	s.channels[ch.ID] = ch
	return nil
}

// Get returns a channel by ID.
func (s *ChannelStore) Get(_ context.Context, channelID string) (*domain.WebhookChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &ch, nil
}

// Delete removes a channel.
func (s *ChannelStore) Delete(_ context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, channelID)
	return nil
}

// ListByUser returns a user's channels ordered by ID.
func (s *ChannelStore) ListByUser(_ context.Context, userID string) ([]domain.WebhookChannel, error) {
	return s.filter(func(ch domain.WebhookChannel) bool { return ch.UserID == userID }, byID), nil
}

// ListExpiring returns channels expiring before the given time, soonest first.
// Channels without an expiration are never returned.
func (s *ChannelStore) ListExpiring(_ context.Context, before time.Time) ([]domain.WebhookChannel, error) {
	return s.filter(func(ch domain.WebhookChannel) bool {
		return !ch.Expiration.IsZero() && ch.Expiration.Before(before)
	}, byExpiration), nil
}

func (s *ChannelStore) filter(
	keep func(domain.WebhookChannel) bool,
	less func(a, b domain.WebhookChannel) bool,
) []domain.WebhookChannel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.WebhookChannel
	for _, ch := range s.channels {
		if keep(ch) {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func byID(a, b domain.WebhookChannel) bool { return a.ID < b.ID }

func byExpiration(a, b domain.WebhookChannel) bool {
	if !a.Expiration.Equal(b.Expiration) {
		return a.Expiration.Before(b.Expiration)
	}
	return a.ID < b.ID
}
