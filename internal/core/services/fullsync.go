package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/core/ports/driven"
	"github.com/custodia-labs/calsync/internal/core/ports/driving"
	"github.com/custodia-labs/calsync/internal/logger"
)

// Ensure FullSyncRunner implements the interface.
var _ driving.FullSyncRunner = (*FullSyncRunner)(nil)

// cursorRefreshPageSize is the page size of the query that re-anchors a
// calendar's cursor. The provider only issues a sync token on the last page.
const cursorRefreshPageSize = 2500

// FullSyncOptions bounds the reconciliation window.
type FullSyncOptions struct {
	Past     time.Duration
	Future   time.Duration
	PageSize int64
}

// DefaultFullSyncOptions returns [now-30d, now+365d] in pages of 250.
func DefaultFullSyncOptions() FullSyncOptions {
	return FullSyncOptions{
		Past:     30 * 24 * time.Hour,
		Future:   365 * 24 * time.Hour,
		PageSize: 250,
	}
}

// FullSyncRunner reconciles every calendar of a user against the vault.
type FullSyncRunner struct {
	clients     driven.CalendarClientProvider
	tokens      driven.SyncTokenStore
	sink        driven.MemorySink
	connections driven.ConnectionStore
	dispatcher  *Dispatcher
	opts        FullSyncOptions

	metrics *instruments
	now     func() time.Time
}

// NewFullSyncRunner creates a full sync runner. Zero-valued options fall
// back to DefaultFullSyncOptions.
func NewFullSyncRunner(
	clients driven.CalendarClientProvider,
	tokens driven.SyncTokenStore,
	sink driven.MemorySink,
	connections driven.ConnectionStore,
	dispatcher *Dispatcher,
	opts FullSyncOptions,
) *FullSyncRunner {
	def := DefaultFullSyncOptions()
	if opts.Past <= 0 {
		opts.Past = def.Past
	}
	if opts.Future <= 0 {
		opts.Future = def.Future
	}
	if opts.PageSize <= 0 {
		opts.PageSize = def.PageSize
	}
	return &FullSyncRunner{
		clients:     clients,
		tokens:      tokens,
		sink:        sink,
		connections: connections,
		dispatcher:  dispatcher,
		opts:        opts,
		metrics:     newInstruments(),
		now:         time.Now,
	}
}

// RunFullSync pages every calendar in the window, upserting every event,
// then re-anchors each calendar's cursor.
//
// A failure on one calendar is logged and recorded in the result; only a
// failure before any calendar could be enumerated fails the run.
func (r *FullSyncRunner) RunFullSync(ctx context.Context, userID string) (*domain.FullSyncResult, error) {
	ctx, span := r.metrics.tracer.Start(ctx, spanFullSync, trace.WithAttributes(
		attribute.String("calsync.user", userID),
	))
	defer span.End()

	result := &domain.FullSyncResult{UserID: userID, StartedAt: r.now()}
	logger.Info("starting full sync for user=%s", userID)

	client, err := r.clients.Client(ctx, userID)
	if err == nil && client == nil {
		err = domain.ErrAuthRequired
	}
	if err != nil {
		return r.fail(ctx, span, result, fmt.Errorf("get calendar client: %w", err))
	}

	calendars, err := client.ListCalendars(ctx)
	if err != nil {
		if domain.IsAuthError(err) {
			r.clients.Invalidate(userID)
		}
		return r.fail(ctx, span, result, fmt.Errorf("list calendars: %w", err))
	}

	for _, cal := range calendars {
		cr := r.syncCalendar(ctx, client, userID, cal.ID)
		result.Calendars = append(result.Calendars, cr)
		result.Applied += cr.Applied
	}

	if err := r.connections.UpdateStatus(ctx, domain.StatusUpdate{
		UserID:     userID,
		Status:     domain.StatusActive,
		LastSyncAt: r.now(),
	}); err != nil {
		span.RecordError(err)
		logger.Error("write status for user=%s: %v", userID, err)
	}

	result.Success = true
	result.EndedAt = r.now()
	span.SetAttributes(
		attribute.Int("calsync.fullsync.calendars", len(calendars)),
		attribute.Int("calsync.fullsync.applied", result.Applied),
	)
	logger.Info("full sync complete for user=%s: %d events across %d calendars",
		userID, result.Applied, len(calendars))
	return result, nil
}

func (r *FullSyncRunner) syncCalendar(
	ctx context.Context,
	client driven.CalendarClient,
	userID, calendarID string,
) domain.CalendarSyncResult {
	logger.Section("Full sync " + calendarID)
	cr := domain.CalendarSyncResult{CalendarID: calendarID}
	now := r.now()
	query := domain.EventQuery{
		TimeMin:          now.Add(-r.opts.Past),
		TimeMax:          now.Add(r.opts.Future),
		SingleEvents:     true,
		OrderByStartTime: true,
		MaxResults:       r.opts.PageSize,
	}

	for {
		page, err := client.ListEvents(ctx, calendarID, query)
		if err != nil {
			cr.Err = err
			if domain.IsAuthError(err) {
				r.clients.Invalidate(userID)
			}
			logger.Warn("full sync of calendar=%s for user=%s stopped after %d pages: %v",
				calendarID, userID, cr.Pages, err)
			return cr
		}
		cr.Pages++

		for _, ev := range page.Events {
			if err := r.sink.Upsert(ctx, userID, MemoryFromEvent(ev, domain.ChangeCreated)); err != nil {
				cr.Failed++
				logger.Warn("full sync upsert of event %s for user=%s: %v", ev.ID, userID, err)
				continue
			}
			cr.Applied++
		}

		if page.NextPageToken == "" {
			break
		}
		query.PageToken = page.NextPageToken
	}

	r.metrics.fullSync.Add(ctx, int64(cr.Applied), metricAttr("calsync.calendar", calendarID))
	r.refreshCursor(ctx, client, userID, calendarID)
	return cr
}

// refreshCursor issues one minimal query to obtain a sync token anchored at
// now. Without a token the cursor is cleared so the next incremental run
// starts from the initial window.
func (r *FullSyncRunner) refreshCursor(
	ctx context.Context,
	client driven.CalendarClient,
	userID, calendarID string,
) {
	page, err := client.ListEvents(ctx, calendarID, domain.EventQuery{
		TimeMin:      r.now(),
		ShowDeleted:  true,
		SingleEvents: true,
		MaxResults:   cursorRefreshPageSize,
	})
	if err != nil {
		logger.Warn("refresh sync token for user=%s calendar=%s: %v", userID, calendarID, err)
		return
	}

	token := page.NextSyncToken
	if token == "" {
		logger.Warn("no sync token issued for user=%s calendar=%s, clearing cursor", userID, calendarID)
	}
	if err := r.tokens.Set(ctx, userID, calendarID, token); err != nil {
		logger.Warn("persist sync token for user=%s calendar=%s: %v", userID, calendarID, err)
	}
}

func (r *FullSyncRunner) fail(
	ctx context.Context,
	span trace.Span,
	result *domain.FullSyncResult,
	err error,
) (*domain.FullSyncResult, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Error("full sync failed for user=%s: %v", result.UserID, err)

	update := domain.StatusUpdate{
		UserID: result.UserID,
		Status: failureStatus(err),
		Error:  err.Error(),
	}
	if werr := r.connections.UpdateStatus(ctx, update); werr != nil {
		logger.Error("write error status for user=%s: %v", result.UserID, werr)
	}

	result.EndedAt = r.now()
	return result, err
}

// failureStatus maps a top-level failure to the connection status.
func failureStatus(err error) domain.ConnectionStatus {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		return domain.StatusPermissionError
	case errors.Is(err, domain.ErrAuthRequired), errors.Is(err, domain.ErrAuthExpired):
		return domain.StatusAuthError
	default:
		return domain.StatusError
	}
}

// ScheduleFullSync marks the user's connection as awaiting a full sync.
// The full-sync-sweep task picks it up.
func (r *FullSyncRunner) ScheduleFullSync(ctx context.Context, userID string) error {
	if err := r.connections.UpdateStatus(ctx, domain.StatusUpdate{
		UserID: userID,
		Status: domain.StatusScheduledFullSync,
	}); err != nil {
		return fmt.Errorf("schedule full sync: %w", err)
	}
	logger.Info("full sync scheduled for user=%s", userID)
	return nil
}

// Start dispatches a full sync for userID in the background.
// It returns domain.ErrSyncInProgress if one is already running.
func (r *FullSyncRunner) Start(ctx context.Context, userID string) error {
	return r.dispatcher.Dispatch(ctx, domain.FullSyncKey(userID), func(ctx context.Context) {
		_, _ = r.RunFullSync(ctx, userID)
	})
}

// RunScheduled runs a full sync for every connection marked
// scheduled_full_sync, one user at a time. Users whose full sync is already
// in flight are skipped. It returns the number of full syncs run.
func (r *FullSyncRunner) RunScheduled(ctx context.Context) (int, error) {
	pending, err := r.connections.ListByStatus(ctx, domain.StatusScheduledFullSync)
	if err != nil {
		return 0, fmt.Errorf("list scheduled connections: %w", err)
	}

	ran := 0
	var errs []error
	for _, conn := range pending {
		if ctx.Err() != nil {
			return ran, ctx.Err()
		}
		userID := conn.UserID
		err := r.dispatcher.Run(ctx, domain.FullSyncKey(userID), func(ctx context.Context) error {
			_, err := r.RunFullSync(ctx, userID)
			return err
		})
		switch {
		case err == nil:
			ran++
		case errors.Is(err, domain.ErrSyncInProgress):
			logger.Debug("full sync for user=%s already running", userID)
		default:
			errs = append(errs, fmt.Errorf("full sync %s: %w", userID, err))
		}
	}
	return ran, errors.Join(errs...)
}
