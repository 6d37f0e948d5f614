package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/calsync/internal/core/domain"
)

func TestStatusService_Status(t *testing.T) {
	ctx := context.Background()
	conns := newMockConnectionStore()
	conns.conns["u1"] = domain.Connection{UserID: "u1", Status: domain.StatusActive, LastSyncAt: testEpoch}

	tokens := newMockTokenStore()
	tokens.tokens[tokenKey{"u1", "work"}] = "tok-work"
	tokens.tokens[tokenKey{"u1", "primary"}] = "tok-primary"
	tokens.tokens[tokenKey{"u2", "primary"}] = "other"

	channels := newMockChannelStore(
		domain.WebhookChannel{ID: "ch-1", UserID: "u1", CalendarID: "primary", Expiration: testEpoch.Add(time.Hour)},
		domain.WebhookChannel{ID: "ch-2", UserID: "u2", CalendarID: "primary"},
	)

	dispatcher := NewDispatcher()
	release := make(chan struct{})
	require.NoError(t, dispatcher.Dispatch(ctx, domain.FullSyncKey("u1"), func(context.Context) { <-release }))
	defer func() {
		close(release)
		require.NoError(t, dispatcher.Shutdown(ctx))
	}()

	svc := NewStatusService(conns, tokens, channels, dispatcher)
	status, err := svc.Status(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, "u1", status.UserID)
	require.NotNil(t, status.Connection)
	assert.Equal(t, domain.StatusActive, status.Connection.Status)
	require.Len(t, status.Cursors, 2)
	assert.Equal(t, "primary", status.Cursors[0].CalendarID)
	assert.Equal(t, "work", status.Cursors[1].CalendarID)
	require.Len(t, status.Channels, 1)
	assert.Equal(t, "ch-1", status.Channels[0].ID)
	assert.Equal(t, []string{"full-sync"}, status.Running)
}

func TestStatusService_UnknownUser(t *testing.T) {
	svc := NewStatusService(newMockConnectionStore(), newMockTokenStore(), newMockChannelStore(), nil)

	status, err := svc.Status(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, status.Connection)
	assert.Empty(t, status.Cursors)
	assert.Empty(t, status.Channels)
	assert.Empty(t, status.Running)
}

func TestStatusService_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing user", func(t *testing.T) {
		svc := NewStatusService(newMockConnectionStore(), newMockTokenStore(), newMockChannelStore(), nil)
		_, err := svc.Status(ctx, "")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("connection store failure", func(t *testing.T) {
		conns := &failingConnectionStore{mockConnectionStore: newMockConnectionStore(), err: errors.New("db down")}
		svc := NewStatusService(conns, newMockTokenStore(), newMockChannelStore(), nil)
		_, err := svc.Status(ctx, "u1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "get connection")
	})
}

// failingConnectionStore fails every read.
type failingConnectionStore struct {
	*mockConnectionStore
	err error
}

func (f *failingConnectionStore) Get(_ context.Context, _ string) (*domain.Connection, error) {
	return nil, f.err
}
