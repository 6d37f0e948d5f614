package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/core/ports/driven"
	"github.com/custodia-labs/calsync/internal/core/ports/driving"
)

// Ensure StatusService implements the interface.
var _ driving.StatusService = (*StatusService)(nil)

// StatusService reports sync state for operators.
type StatusService struct {
	connections driven.ConnectionStore
	tokens      driven.SyncTokenStore
	channels    driven.ChannelStore
	dispatcher  *Dispatcher
}

// NewStatusService creates a status service.
func NewStatusService(
	connections driven.ConnectionStore,
	tokens driven.SyncTokenStore,
	channels driven.ChannelStore,
	dispatcher *Dispatcher,
) *StatusService {
	return &StatusService{
		connections: connections,
		tokens:      tokens,
		channels:    channels,
		dispatcher:  dispatcher,
	}
}

// Status returns the connection, cursors, channels and running keys for a user.
func (s *StatusService) Status(ctx context.Context, userID string) (*domain.UserStatus, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user id", domain.ErrInvalidInput)
	}
	status := &domain.UserStatus{UserID: userID}

	conn, err := s.connections.Get(ctx, userID)
	switch {
	case err == nil:
		status.Connection = conn
	case errors.Is(err, domain.ErrNotFound):
	default:
		return nil, fmt.Errorf("get connection: %w", err)
	}

	if status.Cursors, err = s.tokens.List(ctx, userID); err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}
	if status.Channels, err = s.channels.ListByUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	if s.dispatcher != nil {
		for _, k := range s.dispatcher.Keys(userID) {
			status.Running = append(status.Running, k.ChannelID)
		}
	}
	return status, nil
}
