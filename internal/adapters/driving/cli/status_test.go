package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/calsync/internal/core/domain"
)

func TestStatusCmd_NotConnected(t *testing.T) {
	withServices(t, &Services{Status: &fakeStatus{status: &domain.UserStatus{UserID: "user-1"}}})

	out, err := execute(t, "status", "user-1")

	require.NoError(t, err)
	assert.Contains(t, out, "user-1")
	assert.Contains(t, out, "not connected")
}

func TestRenderStatus(t *testing.T) {
	synced := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	out := renderStatus(&domain.UserStatus{
		UserID: "user-1",
		Connection: &domain.Connection{
			UserID:     "user-1",
			Status:     domain.StatusPartialSync,
			LastSyncAt: synced,
			LastError:  "2 of 5 changes failed",
		},
		Cursors:  []domain.SyncState{{CalendarID: "primary", UpdatedAt: synced}},
		Channels: []domain.WebhookChannel{{ID: "ch-1", CalendarID: "primary"}},
		Running:  []string{"full-sync"},
	})

	assert.Contains(t, out, "partial_sync")
	assert.Contains(t, out, "2026-01-02T03:04:05Z")
	assert.Contains(t, out, "2 of 5 changes failed")
	assert.Contains(t, out, "full-sync")
	assert.Contains(t, out, "Calendars")
	assert.Contains(t, out, "ch-1")
}

func TestStatusCmd_Error(t *testing.T) {
	withServices(t, &Services{Status: &fakeStatus{err: domain.ErrInvalidInput}})

	_, err := execute(t, "status", "")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
