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

// Ensure SyncOrchestrator implements the interface.
var _ driving.SyncOrchestrator = (*SyncOrchestrator)(nil)

// fullSyncScheduler is the part of the full sync runner the orchestrator
// falls back to.
type fullSyncScheduler interface {
	ScheduleFullSync(ctx context.Context, userID string) error
}

// SyncOrchestrator turns notifications into applied changes.
//
// Each run moves through fetching, applying and finalizing. A run that
// fails before finalizing writes the error status and schedules a full sync.
type SyncOrchestrator struct {
	fetcher     *ChangeFetcher
	sink        driven.MemorySink
	connections driven.ConnectionStore
	channels    driven.ChannelStore
	fullSync    fullSyncScheduler
	dispatcher  *Dispatcher

	metrics *instruments
	now     func() time.Time
}

// NewSyncOrchestrator creates a new sync orchestrator.
// channels may be nil, in which case the calendar is always derived from
// the notification's resource URI.
func NewSyncOrchestrator(
	fetcher *ChangeFetcher,
	sink driven.MemorySink,
	connections driven.ConnectionStore,
	channels driven.ChannelStore,
	fullSync fullSyncScheduler,
	dispatcher *Dispatcher,
) *SyncOrchestrator {
	return &SyncOrchestrator{
		fetcher:     fetcher,
		sink:        sink,
		connections: connections,
		channels:    channels,
		fullSync:    fullSync,
		dispatcher:  dispatcher,
		metrics:     newInstruments(),
		now:         time.Now,
	}
}

// HandleNotification validates a webhook delivery and dispatches a sync for
// it in the background. Channel handshakes are accepted and ignored.
func (o *SyncOrchestrator) HandleNotification(ctx context.Context, n domain.Notification) error {
	if n.UserID == "" {
		return fmt.Errorf("%w: missing user id", domain.ErrInvalidInput)
	}
	if n.ResourceState == domain.ResourceStateSync {
		logger.Debug("channel handshake for user=%s channel=%s", n.UserID, n.ChannelID)
		return nil
	}

	calendarID, err := o.resolveCalendar(ctx, n)
	if err != nil {
		return err
	}

	return o.dispatcher.Dispatch(ctx, n.Key(), func(ctx context.Context) {
		o.Sync(ctx, n.UserID, calendarID)
	})
}

// resolveCalendar picks the calendar for a notification: the stored channel
// first, then the resource URI, then the primary calendar.
func (o *SyncOrchestrator) resolveCalendar(ctx context.Context, n domain.Notification) (string, error) {
	if o.channels != nil && n.ChannelID != "" {
		ch, err := o.channels.Get(ctx, n.ChannelID)
		switch {
		case err == nil:
			if ch.UserID != n.UserID {
				return "", fmt.Errorf("%w: channel %s", domain.ErrChannelNotOwned, n.ChannelID)
			}
			if ch.Token != "" && n.ChannelToken != ch.Token {
				return "", fmt.Errorf("%w: channel token mismatch for %s", domain.ErrInvalidInput, n.ChannelID)
			}
			if ch.CalendarID != "" {
				return ch.CalendarID, nil
			}
		case errors.Is(err, domain.ErrNotFound):
			logger.Debug("no stored channel %s for user=%s", n.ChannelID, n.UserID)
		default:
			logger.Warn("channel lookup for %s failed: %v", n.ChannelID, err)
		}
	}
	return domain.CalendarIDFromResourceURI(n.ResourceURI), nil
}

// Sync runs one incremental sync for a (user, calendar) pair.
// It never returns an error: the outcome is written to the connection and
// reported in the result.
func (o *SyncOrchestrator) Sync(ctx context.Context, userID, calendarID string) (result *domain.SyncResult) {
	ctx, span := o.metrics.tracer.Start(ctx, spanSync, trace.WithAttributes(
		attribute.String("calsync.user", userID),
		attribute.String("calsync.calendar", calendarID),
	))
	defer span.End()
	o.metrics.runs.Add(ctx, 1)

	result = &domain.SyncResult{
		UserID:     userID,
		CalendarID: calendarID,
		Phase:      domain.PhaseFetching,
		StartedAt:  o.now(),
	}

	defer func() {
		if r := recover(); r != nil {
			result = o.fail(ctx, span, result, fmt.Errorf("sync panicked in %s: %v", result.Phase, r))
		}
	}()

	logger.Info("starting sync for user=%s calendar=%s", userID, calendarID)

	cursor := o.fetcher.Cursor(ctx, userID, calendarID)
	records, err := o.fetcher.FetchChanges(ctx, userID, calendarID, cursor)
	if err != nil {
		return o.fail(ctx, span, result, err)
	}
	result.Total = len(records)

	if len(records) > 0 {
		result.Phase = domain.PhaseApplying
		for _, rec := range records {
			if err := o.apply(ctx, userID, rec); err != nil {
				o.metrics.failed.Add(ctx, 1)
				logger.Warn("apply %s event %s for user=%s calendar=%s: %v",
					rec.Type, rec.Event.ID, userID, calendarID, err)
				continue
			}
			result.Applied++
		}
	}

	result.Phase = domain.PhaseFinalizing
	update := domain.StatusUpdate{UserID: userID, LastSyncAt: o.now()}
	if result.Total > 0 {
		update.Status = domain.StatusActive
		if result.Applied < result.Total {
			update.Status = domain.StatusPartialSync
		}
	}
	if err := o.connections.UpdateStatus(ctx, update); err != nil {
		span.RecordError(err)
		logger.Error("write status for user=%s: %v", userID, err)
	}

	result.Status = update.Status
	result.Phase = domain.PhaseDone
	result.EndedAt = o.now()

	span.SetAttributes(
		attribute.Int("calsync.sync.total", result.Total),
		attribute.Int("calsync.sync.applied", result.Applied),
	)
	logger.Info("sync complete for user=%s calendar=%s: %d/%d applied",
		userID, calendarID, result.Applied, result.Total)
	return result
}

func (o *SyncOrchestrator) apply(ctx context.Context, userID string, rec domain.ChangeRecord) error {
	switch rec.Type {
	case domain.ChangeDeleted:
		if err := o.sink.Delete(ctx, userID, rec.Event.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		o.metrics.deleted.Add(ctx, 1)
	case domain.ChangeCreated:
		if err := o.sink.Upsert(ctx, userID, MemoryFromEvent(rec.Event, rec.Type)); err != nil {
			return err
		}
		o.metrics.created.Add(ctx, 1)
	default:
		if err := o.sink.Upsert(ctx, userID, MemoryFromEvent(rec.Event, rec.Type)); err != nil {
			return err
		}
		o.metrics.updated.Add(ctx, 1)
	}
	return nil
}

// fail records a run-level failure: the error status, then the full sync
// marker.
func (o *SyncOrchestrator) fail(
	ctx context.Context,
	span trace.Span,
	result *domain.SyncResult,
	err error,
) *domain.SyncResult {
	o.metrics.failures.Add(ctx, 1)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Error("sync failed for user=%s calendar=%s in %s: %v",
		result.UserID, result.CalendarID, result.Phase, err)

	update := domain.StatusUpdate{
		UserID: result.UserID,
		Status: domain.StatusError,
		Error:  err.Error(),
	}
	if werr := o.connections.UpdateStatus(ctx, update); werr != nil {
		logger.Error("write error status for user=%s: %v", result.UserID, werr)
	}
	if serr := o.fullSync.ScheduleFullSync(ctx, result.UserID); serr != nil {
		logger.Error("schedule full sync for user=%s: %v", result.UserID, serr)
	}

	result.Status = domain.StatusError
	result.Phase = domain.PhaseFailed
	result.EndedAt = o.now()
	return result
}
