package domain

import "time"

// ConnectionStatus is the sync state attached to a user's calendar connection.
type ConnectionStatus string

const (
	// StatusActive means the last run applied every change.
	StatusActive ConnectionStatus = "active"

	// StatusPartialSync means the last run applied some changes but not all.
	StatusPartialSync ConnectionStatus = "partial_sync"

	// StatusError means the last run failed outright.
	StatusError ConnectionStatus = "error"

	// StatusScheduledFullSync means a full resync is pending.
	StatusScheduledFullSync ConnectionStatus = "scheduled_full_sync"

	// StatusAuthError means credentials could not be used.
	StatusAuthError ConnectionStatus = "auth_error"

	// StatusPermissionError means the credentials lack calendar access.
	StatusPermissionError ConnectionStatus = "permission_error"
)

// Valid returns true if s is a known status.
func (s ConnectionStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPartialSync, StatusError,
		StatusScheduledFullSync, StatusAuthError, StatusPermissionError:
		return true
	}
	return false
}

// Connection is a user's calendar connection.
type Connection struct {
	// UserID identifies the user.
	UserID string

	// Status is the outcome of the most recent completed attempt.
	Status ConnectionStatus

	// LastSyncAt is when a run last finished.
	LastSyncAt time.Time

	// LastError holds the message of the most recent failure.
	LastError string

	// UpdatedAt is when the record last changed.
	UpdatedAt time.Time
}

// StatusUpdate is a single status write.
// An empty Status keeps the stored status; a zero LastSyncAt keeps the
// stored timestamp. A non-empty Error replaces LastError; writing
// StatusActive clears it; otherwise it is kept.
type StatusUpdate struct {
	UserID     string
	Status     ConnectionStatus
	LastSyncAt time.Time
	Error      string
}

// SyncState is the stored cursor for one (user, calendar) pair.
type SyncState struct {
	// UserID links to the owning user.
	UserID string

	// CalendarID identifies the calendar.
	CalendarID string

	// SyncToken is the opaque provider cursor. Empty means no prior sync.
	SyncToken string

	// UpdatedAt is when the cursor was last written.
	UpdatedAt time.Time
}

// Apply returns c with the update applied at now.
// A nil c starts from an empty connection for the update's user. A
// connection never ends up without a status; it defaults to active.
func (u StatusUpdate) Apply(c *Connection, now time.Time) Connection {
	var next Connection
	if c != nil {
		next = *c
	}
	next.UserID = u.UserID
	if u.Status != "" {
		next.Status = u.Status
	}
	if next.Status == "" {
		next.Status = StatusActive
	}
	if !u.LastSyncAt.IsZero() {
		next.LastSyncAt = u.LastSyncAt
	}
	switch {
	case u.Error != "":
		next.LastError = u.Error
	case u.Status == StatusActive:
		next.LastError = ""
	}
	next.UpdatedAt = now
	return next
}
