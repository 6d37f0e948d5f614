package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/core/ports/driven"
	"github.com/custodia-labs/calsync/internal/logger"
)

// FetcherOptions tunes ChangeFetcher.
type FetcherOptions struct {
	// InitialWindow bounds how far back a fetch without a cursor reaches.
	InitialWindow time.Duration

	// PageSize caps the events returned per request.
	PageSize int64

	// MaxAttempts is the total number of requests per fetch.
	MaxAttempts int

	// BackoffBase is multiplied by 2^attempt between retries.
	BackoffBase time.Duration
}

// DefaultFetcherOptions returns a 30 day initial window, 250 events per page,
// 3 attempts and 2s/4s backoff.
func DefaultFetcherOptions() FetcherOptions {
	return FetcherOptions{
		InitialWindow: 30 * 24 * time.Hour,
		PageSize:      250,
		MaxAttempts:   3,
		BackoffBase:   time.Second,
	}
}

// ChangeFetcher retrieves the classified changes for a (user, calendar)
// pair since the stored cursor.
type ChangeFetcher struct {
	clients driven.CalendarClientProvider
	tokens  driven.SyncTokenStore
	opts    FetcherOptions

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewChangeFetcher creates a fetcher. Zero-valued options fall back to
// DefaultFetcherOptions.
func NewChangeFetcher(
	clients driven.CalendarClientProvider,
	tokens driven.SyncTokenStore,
	opts FetcherOptions,
) *ChangeFetcher {
	def := DefaultFetcherOptions()
	if opts.InitialWindow <= 0 {
		opts.InitialWindow = def.InitialWindow
	}
	if opts.PageSize <= 0 {
		opts.PageSize = def.PageSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = def.BackoffBase
	}
	return &ChangeFetcher{
		clients: clients,
		tokens:  tokens,
		opts:    opts,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// Cursor returns the stored cursor for a (user, calendar) pair.
// Read failures are logged and reported as no cursor.
func (f *ChangeFetcher) Cursor(ctx context.Context, userID, calendarID string) string {
	token, err := f.tokens.Get(ctx, userID, calendarID)
	if err != nil {
		logger.Warn("sync token read failed for user=%s calendar=%s, using initial window: %v",
			userID, calendarID, err)
		return ""
	}
	return token
}

// FetchChanges fetches and classifies the changes since cursor.
//
// With a cursor, the incremental feed is requested; without one, every event
// from now minus the initial window. Only the first page is consumed. A fresh
// cursor returned by the provider is persisted even when no events changed.
//
// A rejected cursor is cleared and the request repeated without it. Other
// failures back off exponentially before the next attempt. Auth failures are
// returned immediately.
func (f *ChangeFetcher) FetchChanges(
	ctx context.Context,
	userID, calendarID, cursor string,
) ([]domain.ChangeRecord, error) {
	client, err := f.clients.Client(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get calendar client: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("get calendar client: %w", domain.ErrAuthRequired)
	}

	var lastErr error
	for attempt := 1; attempt <= f.opts.MaxAttempts; attempt++ {
		page, err := client.ListEvents(ctx, calendarID, f.query(cursor))
		if err == nil {
			if page.NextSyncToken != "" {
				if err := f.tokens.Set(ctx, userID, calendarID, page.NextSyncToken); err != nil {
					logger.Warn("persist sync token for user=%s calendar=%s: %v", userID, calendarID, err)
				}
			}
			logger.Debug("fetched %d events for user=%s calendar=%s (attempt %d)",
				len(page.Events), userID, calendarID, attempt)
			return domain.ClassifyAll(page.Events), nil
		}
		lastErr = err

		if errors.Is(err, domain.ErrCursorInvalid) && cursor != "" {
			logger.Warn("sync token rejected for user=%s calendar=%s, falling back to initial window",
				userID, calendarID)
			if err := f.tokens.Set(ctx, userID, calendarID, ""); err != nil {
				logger.Warn("clear sync token for user=%s calendar=%s: %v", userID, calendarID, err)
			}
			cursor = ""
			continue
		}

		if domain.IsAuthError(err) {
			f.clients.Invalidate(userID)
			return nil, fmt.Errorf("list events: %w", err)
		}

		logger.Warn("list events for user=%s calendar=%s failed (attempt %d/%d): %v",
			userID, calendarID, attempt, f.opts.MaxAttempts, err)
		if attempt == f.opts.MaxAttempts {
			break
		}
		if err := f.sleep(ctx, f.backoff(attempt)); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", domain.ErrFetchExhausted, f.opts.MaxAttempts, lastErr)
}

func (f *ChangeFetcher) query(cursor string) domain.EventQuery {
	q := domain.EventQuery{
		ShowDeleted:  true,
		SingleEvents: true,
		MaxResults:   f.opts.PageSize,
	}
	if cursor != "" {
		q.SyncToken = cursor
	} else {
		q.TimeMin = f.now().Add(-f.opts.InitialWindow)
	}
	return q
}

// backoff returns BackoffBase * 2^attempt.
func (f *ChangeFetcher) backoff(attempt int) time.Duration {
	return f.opts.BackoffBase * time.Duration(1<<attempt)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
