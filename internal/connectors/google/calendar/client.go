// Package calendar implements the driven CalendarClient port over the
// Google Calendar v3 API.
package calendar

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/custodia-labs/calsync/internal/connectors/google"
	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/core/ports/driven"
)

// Ensure Client implements the interface.
var _ driven.CalendarClient = (*Client)(nil)

// channelType is the only push channel type Google supports.
const channelType = "web_hook"

// Client talks to Google Calendar for one user.
type Client struct {
	svc     *calendar.Service
	limiter *google.RateLimiter
	config  *Config
}

// NewClient wraps an authenticated Calendar service.
// limiter may be shared across users; nil disables client-side limiting.
func NewClient(svc *calendar.Service, limiter *google.RateLimiter, cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Client{svc: svc, limiter: limiter, config: cfg}
}

// ListEvents returns one page of events.
// With a sync token the time bounds and ordering are omitted; Google
// rejects them in combination.
func (c *Client) ListEvents(ctx context.Context, calendarID string, q domain.EventQuery) (*domain.EventPage, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	call := c.svc.Events.List(calendarID).Context(ctx).
		ShowDeleted(q.ShowDeleted).
		SingleEvents(q.SingleEvents).
		MaxResults(c.config.clampPageSize(q.MaxResults))

	if q.SyncToken != "" {
		call = call.SyncToken(q.SyncToken)
	} else {
		if !q.TimeMin.IsZero() {
			call = call.TimeMin(q.TimeMin.Format(time.RFC3339))
		}
		if !q.TimeMax.IsZero() {
			call = call.TimeMax(q.TimeMax.Format(time.RFC3339))
		}
		if q.OrderByStartTime {
			call = call.OrderBy("startTime")
		}
	}
	if q.PageToken != "" {
		call = call.PageToken(q.PageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, c.wrap(err)
	}

	page := &domain.EventPage{
		NextPageToken: resp.NextPageToken,
		NextSyncToken: resp.NextSyncToken,
	}
	for _, item := range resp.Items {
		if ShouldSyncEvent(item) {
			page.Events = append(page.Events, EventToSnapshot(item, calendarID))
		}
	}
	return page, nil
}

// ListCalendars returns every calendar on the user's calendar list,
// filtered to Config.CalendarIDs when set.
func (c *Client) ListCalendars(ctx context.Context) ([]domain.Calendar, error) {
	allowed := make(map[string]bool, len(c.config.CalendarIDs))
	for _, id := range c.config.CalendarIDs {
		allowed[id] = true
	}

	var calendars []domain.Calendar
	call := c.svc.CalendarList.List().Context(ctx)
	err := call.Pages(ctx, func(list *calendar.CalendarList) error {
		for _, entry := range list.Items {
			if len(allowed) > 0 && !allowed[entry.Id] {
				continue
			}
			calendars = append(calendars, domain.Calendar{
				ID:      entry.Id,
				Summary: entry.Summary,
				Primary: entry.Primary,
			})
		}
		return c.wait(ctx)
	})
	if err != nil {
		return nil, c.wrap(err)
	}
	return calendars, nil
}

// Watch registers a push channel on a calendar's events.
func (c *Client) Watch(ctx context.Context, calendarID string, req driven.WatchRequest) (*driven.WatchResponse, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	ch := &calendar.Channel{
		Id:      req.ChannelID,
		Type:    channelType,
		Address: req.Address,
		Token:   req.Token,
	}
	if req.TTL > 0 {
		ch.Params = map[string]string{"ttl": strconv.FormatInt(int64(req.TTL/time.Second), 10)}
	}

	resp, err := c.svc.Events.Watch(calendarID, ch).Context(ctx).Do()
	if err != nil {
		return nil, c.wrap(err)
	}

	out := &driven.WatchResponse{
		ResourceID:  resp.ResourceId,
		ResourceURI: resp.ResourceUri,
	}
	if resp.Expiration > 0 {
		out.Expiration = time.UnixMilli(resp.Expiration).UTC()
	}
	return out, nil
}

// StopChannel revokes a push channel.
func (c *Client) StopChannel(ctx context.Context, channelID, resourceID string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	err := c.svc.Channels.Stop(&calendar.Channel{Id: channelID, ResourceId: resourceID}).Context(ctx).Do()
	if err != nil {
		return c.wrap(err)
	}
	return nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// wrap maps an API error and feeds throttling back into the limiter.
func (c *Client) wrap(err error) error {
	if c.limiter != nil && google.IsRateLimited(err) {
		c.limiter.RecordRateLimitError(google.RetryAfter(err))
	}
	return google.WrapError(err)
}
