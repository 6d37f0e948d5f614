package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/core/ports/driven"
	"github.com/custodia-labs/calsync/internal/core/ports/driving"
	"github.com/custodia-labs/calsync/internal/logger"
)

// Ensure ChannelService implements the interface.
var _ driving.ChannelService = (*ChannelService)(nil)

// ChannelOptions configures channel registration.
type ChannelOptions struct {
	// PublicBaseURL is where the provider delivers webhooks.
	PublicBaseURL string

	// TTL is the lifetime requested for new channels.
	TTL time.Duration

	// RenewBefore selects channels expiring within this horizon for renewal.
	RenewBefore time.Duration
}

// ChannelService registers, renews and revokes push channels.
type ChannelService struct {
	clients  driven.CalendarClientProvider
	channels driven.ChannelStore
	opts     ChannelOptions

	now   func() time.Time
	newID func() string
}

// NewChannelService creates a channel service.
// TTL defaults to 7 days and RenewBefore to 6 days.
func NewChannelService(
	clients driven.CalendarClientProvider,
	channels driven.ChannelStore,
	opts ChannelOptions,
) *ChannelService {
	if opts.TTL <= 0 {
		opts.TTL = 7 * 24 * time.Hour
	}
	if opts.RenewBefore <= 0 {
		opts.RenewBefore = 6 * 24 * time.Hour
	}
	return &ChannelService{
		clients:  clients,
		channels: channels,
		opts:     opts,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Register watches a calendar for a user and persists the channel.
// An empty calendarID watches the primary calendar.
func (s *ChannelService) Register(ctx context.Context, userID, calendarID string) (*domain.WebhookChannel, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user id", domain.ErrInvalidInput)
	}
	if s.opts.PublicBaseURL == "" {
		return nil, fmt.Errorf("%w: public base url not configured", domain.ErrInvalidInput)
	}
	if calendarID == "" {
		calendarID = domain.PrimaryCalendarID
	}

	client, err := s.clients.Client(ctx, userID)
	if err == nil && client == nil {
		err = domain.ErrAuthRequired
	}
	if err != nil {
		return nil, fmt.Errorf("get calendar client: %w", err)
	}

	channelID := s.newID()
	req := driven.WatchRequest{
		ChannelID: channelID,
		Address:   s.webhookAddress(userID, channelID),
		Token:     s.newID(),
		TTL:       s.opts.TTL,
	}
	resp, err := client.Watch(ctx, calendarID, req)
	if err != nil {
		if domain.IsAuthError(err) {
			s.clients.Invalidate(userID)
		}
		return nil, fmt.Errorf("watch calendar %s: %w", calendarID, err)
	}

	now := s.now()
	ch := domain.WebhookChannel{
		ID:          channelID,
		UserID:      userID,
		CalendarID:  calendarID,
		ResourceID:  resp.ResourceID,
		ResourceURI: resp.ResourceURI,
		Token:       req.Token,
		Expiration:  resp.Expiration,
		CreatedAt:   now,
	}
	if ch.Expiration.IsZero() {
		ch.Expiration = now.Add(s.opts.TTL)
	}

	if err := s.channels.Save(ctx, ch); err != nil {
		if serr := client.StopChannel(ctx, ch.ID, ch.ResourceID); serr != nil {
			logger.Warn("stop unsaved channel %s for user=%s: %v", ch.ID, userID, serr)
		}
		return nil, fmt.Errorf("save channel: %w", err)
	}

	logger.Info("registered channel %s for user=%s calendar=%s until %s",
		ch.ID, userID, calendarID, ch.Expiration.Format(time.RFC3339))
	return &ch, nil
}

func (s *ChannelService) webhookAddress(userID, channelID string) string {
	return strings.TrimRight(s.opts.PublicBaseURL, "/") +
		"/webhooks/google/" + url.PathEscape(userID) + "/" + url.PathEscape(channelID)
}

// Unregister revokes a channel upstream with its owner's credentials and
// removes it locally.
//
// If the owner's credentials no longer work the channel cannot be revoked;
// it is logged as leaked, left to expire upstream, and removed locally.
func (s *ChannelService) Unregister(ctx context.Context, userID, channelID string) error {
	ch, err := s.channels.Get(ctx, channelID)
	if err != nil {
		return fmt.Errorf("get channel: %w", err)
	}
	if ch.UserID != userID {
		return fmt.Errorf("%w: channel %s", domain.ErrChannelNotOwned, channelID)
	}

	if err := s.stop(ctx, ch); err != nil {
		return err
	}
	if err := s.channels.Delete(ctx, channelID); err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	logger.Info("unregistered channel %s for user=%s", channelID, userID)
	return nil
}

// stop revokes a channel upstream. Auth failures and already-gone channels
// are not errors.
func (s *ChannelService) stop(ctx context.Context, ch *domain.WebhookChannel) error {
	client, err := s.clients.Client(ctx, ch.UserID)
	switch {
	case err == nil && client == nil:
		err = domain.ErrAuthRequired
	case err == nil:
		err = client.StopChannel(ctx, ch.ID, ch.ResourceID)
	}
	switch {
	case err == nil:
		return nil
	case domain.IsAuthError(err):
		logger.Warn("channel %s for user=%s leaked: cannot revoke upstream (%v), it expires at %s",
			ch.ID, ch.UserID, err, ch.Expiration.Format(time.RFC3339))
		return nil
	case errors.Is(err, domain.ErrNotFound):
		logger.Debug("channel %s already gone upstream", ch.ID)
		return nil
	default:
		return fmt.Errorf("stop channel %s: %w", ch.ID, err)
	}
}

// RenewExpiring re-registers every channel expiring within the renewal
// horizon, then stops and removes the old channel.
func (s *ChannelService) RenewExpiring(ctx context.Context) (int, error) {
	expiring, err := s.channels.ListExpiring(ctx, s.now().Add(s.opts.RenewBefore))
	if err != nil {
		return 0, fmt.Errorf("list expiring channels: %w", err)
	}

	renewed := 0
	var errs []error
	for i := range expiring {
		old := &expiring[i]
		if _, err := s.Register(ctx, old.UserID, old.CalendarID); err != nil {
			errs = append(errs, fmt.Errorf("renew channel %s: %w", old.ID, err))
			continue
		}
		renewed++

		if err := s.stop(ctx, old); err != nil {
			logger.Warn("stop renewed channel %s: %v", old.ID, err)
		}
		if err := s.channels.Delete(ctx, old.ID); err != nil {
			logger.Warn("delete renewed channel %s: %v", old.ID, err)
		}
	}

	if renewed > 0 {
		logger.Info("renewed %d of %d expiring channels", renewed, len(expiring))
	}
	return renewed, errors.Join(errs...)
}

// List returns a user's channels.
func (s *ChannelService) List(ctx context.Context, userID string) ([]domain.WebhookChannel, error) {
	return s.channels.ListByUser(ctx, userID)
}
