package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/calsync/internal/core/domain"
)

// CalendarClient talks to the calendar provider on behalf of one user.
//
// Implementations map provider errors to domain sentinels:
// domain.ErrCursorInvalid for a rejected sync token, domain.ErrAuthExpired
// and domain.ErrPermissionDenied for credential problems, domain.ErrNotFound
// for missing resources and domain.ErrRateLimited for throttling.
type CalendarClient interface {
	// ListEvents returns one page of events for a calendar.
	ListEvents(ctx context.Context, calendarID string, query domain.EventQuery) (*domain.EventPage, error)

	// ListCalendars returns every calendar visible to the user.
	ListCalendars(ctx context.Context) ([]domain.Calendar, error)

	// Watch registers a push channel on a calendar's events.
	Watch(ctx context.Context, calendarID string, req WatchRequest) (*WatchResponse, error)

	// StopChannel revokes a push channel.
	StopChannel(ctx context.Context, channelID, resourceID string) error
}

// WatchRequest describes a push channel to register.
type WatchRequest struct {
	ChannelID string
	Address   string
	Token     string
	TTL       time.Duration
}

// WatchResponse is the provider's answer to a watch request.
type WatchResponse struct {
	ResourceID  string
	ResourceURI string
	Expiration  time.Time
}

// CalendarClientProvider resolves an authenticated client for a user.
// It returns domain.ErrAuthRequired when it cannot act for the user.
type CalendarClientProvider interface {
	Client(ctx context.Context, userID string) (CalendarClient, error)

	// Invalidate drops anything cached for userID after the provider
	// rejected its authorization, so the next Client call reloads
	// credentials.
	Invalidate(userID string)
}

// MemorySink is the downstream memory vault.
// Both operations are idempotent: upserts are keyed by the event id and
// deleting a missing memory succeeds.
type MemorySink interface {
	Upsert(ctx context.Context, userID string, memory domain.Memory) error
	Delete(ctx context.Context, userID, externalID string) error
}
