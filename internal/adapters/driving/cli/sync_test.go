package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/calsync/internal/core/domain"
)

func TestSyncCmd_Use(t *testing.T) {
	assert.Equal(t, "sync <user-id> [calendar-id]", syncCmd.Use)
}

func TestSyncCmd_Long(t *testing.T) {
	assert.Contains(t, syncCmd.Long, "sync cursor")
	assert.Contains(t, syncCmd.Long, "primary")
}

func TestSyncCmd_DefaultsToPrimaryCalendar(t *testing.T) {
	sync := &fakeSync{result: &domain.SyncResult{
		Total: 3, Applied: 3, Status: domain.StatusActive,
	}}
	withServices(t, &Services{Sync: sync})

	out, err := execute(t, "sync", "user-1")

	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"user-1", "primary"}}, sync.calls)
	assert.Contains(t, out, "Synchronising primary for user-1")
	assert.Contains(t, out, "Applied 3 of 3 changes (0 failed)")
	assert.Contains(t, out, "Connection status: active")
}

func TestSyncCmd_WithCalendarID(t *testing.T) {
	sync := &fakeSync{result: &domain.SyncResult{
		Total: 4, Applied: 1, Status: domain.StatusPartialSync,
	}}
	withServices(t, &Services{Sync: sync})

	out, err := execute(t, "sync", "user-1", "team@group.calendar.google.com")

	require.NoError(t, err)
	assert.Equal(t, "team@group.calendar.google.com", sync.calls[0][1])
	assert.Contains(t, out, "Applied 1 of 4 changes (3 failed)")
	assert.Contains(t, out, "partial_sync")
}

func TestSyncCmd_RequiresUser(t *testing.T) {
	withServices(t, &Services{Sync: &fakeSync{}})

	_, err := execute(t, "sync")

	assert.Error(t, err)
}

func TestSyncCmd_NotConfigured(t *testing.T) {
	withServices(t, nil)

	_, err := execute(t, "sync", "user-1")

	assert.ErrorIs(t, err, errNotConfigured)
}

func TestFullSyncCmd_PrintsPerCalendar(t *testing.T) {
	full := &fakeFullSync{result: &domain.FullSyncResult{
		UserID:  "user-1",
		Success: true,
		Applied: 7,
		Calendars: []domain.CalendarSyncResult{
			{CalendarID: "primary", Applied: 5},
			{CalendarID: "holidays", Applied: 2},
		},
	}}
	withServices(t, &Services{FullSync: full})

	out, err := execute(t, "fullsync", "user-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"user-1"}, full.users)
	assert.Contains(t, out, "primary: 5 applied, 0 failed")
	assert.Contains(t, out, "holidays: 2 applied, 0 failed")
	assert.Contains(t, out, "Full sync complete: 7 events applied.")
}

func TestFullSyncCmd_PartialFailure(t *testing.T) {
	full := &fakeFullSync{result: &domain.FullSyncResult{
		UserID: "user-1",
		Calendars: []domain.CalendarSyncResult{
			{CalendarID: "primary", Err: errors.New("boom")},
		},
	}}
	withServices(t, &Services{FullSync: full})

	out, err := execute(t, "fullsync", "user-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "completed with errors")
	assert.Contains(t, out, "primary: error: boom")
}

func TestFullSyncCmd_ServiceError(t *testing.T) {
	withServices(t, &Services{FullSync: &fakeFullSync{err: domain.ErrSyncInProgress}})

	_, err := execute(t, "fullsync", "user-1")

	assert.ErrorIs(t, err, domain.ErrSyncInProgress)
}
