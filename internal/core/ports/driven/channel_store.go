package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/calsync/internal/core/domain"
)

// ChannelStore persists push-notification channels.
type ChannelStore interface {
	// Save creates or replaces a channel by ID.
	Save(ctx context.Context, channel domain.WebhookChannel) error

	// Get returns a channel by ID, or domain.ErrNotFound.
	Get(ctx context.Context, channelID string) (*domain.WebhookChannel, error)

	// Delete removes a channel. Deleting a missing channel is not an error.
	Delete(ctx context.Context, channelID string) error

	// ListByUser returns a user's channels.
	ListByUser(ctx context.Context, userID string) ([]domain.WebhookChannel, error)

	// ListExpiring returns channels whose expiration is before the given time.
	ListExpiring(ctx context.Context, before time.Time) ([]domain.WebhookChannel, error)
}
