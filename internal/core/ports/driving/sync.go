package driving

import (
	"context"

	"github.com/custodia-labs/calsync/internal/core/domain"
)

// SyncOrchestrator turns webhook notifications into applied changes.
type SyncOrchestrator interface {
	// HandleNotification accepts a webhook delivery and processes it in the
	// background. It returns domain.ErrSyncInProgress if a run for the same
	// processing key is already outstanding; the delivery is dropped.
	HandleNotification(ctx context.Context, n domain.Notification) error

	// Sync runs one incremental sync for a (user, calendar) pair synchronously.
	// Run-level failures are recorded on the connection, not returned.
	Sync(ctx context.Context, userID, calendarID string) *domain.SyncResult
}

// FullSyncRunner reconciles every calendar of a user.
type FullSyncRunner interface {
	// RunFullSync pages every calendar in the full-sync window, upserting
	// every event and re-anchoring each calendar's cursor.
	RunFullSync(ctx context.Context, userID string) (*domain.FullSyncResult, error)

	// ScheduleFullSync marks the user's connection as awaiting a full sync.
	ScheduleFullSync(ctx context.Context, userID string) error

	// Start runs a full sync in the background. It returns
	// domain.ErrSyncInProgress if one is already running for the user.
	Start(ctx context.Context, userID string) error

	// RunScheduled runs a full sync for every connection marked
	// scheduled_full_sync. It returns the number run.
	RunScheduled(ctx context.Context) (int, error)
}

// ChannelService manages push-notification channels.
type ChannelService interface {
	// Register watches a calendar for a user and persists the channel.
	Register(ctx context.Context, userID, calendarID string) (*domain.WebhookChannel, error)

	// Unregister revokes a channel upstream and removes it locally.
	Unregister(ctx context.Context, userID, channelID string) error

	// RenewExpiring re-registers channels expiring within the renewal horizon.
	// It returns the number of channels renewed.
	RenewExpiring(ctx context.Context) (int, error)

	// List returns a user's channels.
	List(ctx context.Context, userID string) ([]domain.WebhookChannel, error)
}

// StatusService reports a user's sync state.
type StatusService interface {
	// Status returns the connection, cursors and channels for a user.
	Status(ctx context.Context, userID string) (*domain.UserStatus, error)
}
