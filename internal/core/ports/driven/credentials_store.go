package driven

import (
	"context"

	"github.com/custodia-labs/calsync/internal/core/domain"
)

// CredentialsStore persists per-user OAuth credentials.
type CredentialsStore interface {
	// Save stores or updates credentials.
	Save(ctx context.Context, creds domain.Credentials) error

	// Get retrieves credentials by user ID.
	// Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, userID string) (*domain.Credentials, error)

	// Delete removes credentials by user ID.
	Delete(ctx context.Context, userID string) error
}
