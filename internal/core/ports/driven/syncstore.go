package driven

import (
	"context"

	"github.com/custodia-labs/calsync/internal/core/domain"
)

// SyncTokenStore persists the provider cursor per (user, calendar).
type SyncTokenStore interface {
	// Get returns the stored sync token, or "" if none is stored.
	Get(ctx context.Context, userID, calendarID string) (string, error)

	// Set upserts the sync token. An empty token clears the cursor.
	Set(ctx context.Context, userID, calendarID, token string) error

	// State returns the full record for a (user, calendar) pair.
	// Returns domain.ErrNotFound if nothing was ever stored.
	State(ctx context.Context, userID, calendarID string) (*domain.SyncState, error)

	// List returns every stored cursor for a user.
	List(ctx context.Context, userID string) ([]domain.SyncState, error)
}

// ConnectionStore persists the per-user connection status.
type ConnectionStore interface {
	// Get returns the connection for a user.
	// Returns domain.ErrNotFound if none exists.
	Get(ctx context.Context, userID string) (*domain.Connection, error)

	// UpdateStatus upserts the connection. Empty fields in the update keep
	// the stored values.
	UpdateStatus(ctx context.Context, update domain.StatusUpdate) error

	// ListByStatus returns every connection currently in status.
	ListByStatus(ctx context.Context, status domain.ConnectionStatus) ([]domain.Connection, error)
}
