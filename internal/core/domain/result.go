package domain

import "time"

// SyncPhase is a state of a single orchestration run.
type SyncPhase string

const (
	PhaseFetching   SyncPhase = "fetching"
	PhaseApplying   SyncPhase = "applying"
	PhaseFinalizing SyncPhase = "finalizing"
	PhaseDone       SyncPhase = "done"
	PhaseFailed     SyncPhase = "failed"
)

// SyncResult is the outcome of one incremental run.
type SyncResult struct {
	UserID     string
	CalendarID string

	// Phase is the terminal phase (done or failed).
	Phase SyncPhase

	// Total is the number of fetched changes.
	Total int

	// Applied is the number of changes the sink accepted.
	Applied int

	// Status is the connection status written at the end of the run.
	Status ConnectionStatus

	StartedAt time.Time
	EndedAt   time.Time
}

// Failed returns the number of changes that were not applied.
func (r *SyncResult) Failed() int {
	return r.Total - r.Applied
}

// CalendarSyncResult is the full-sync outcome for one calendar.
type CalendarSyncResult struct {
	CalendarID string
	Applied    int
	Failed     int
	Pages      int

	// Err is set when the calendar could not be processed.
	Err error
}

// FullSyncResult is the outcome of a full reconciliation for a user.
type FullSyncResult struct {
	UserID    string
	Success   bool
	Applied   int
	Calendars []CalendarSyncResult
	StartedAt time.Time
	EndedAt   time.Time
}

// UserStatus is a user's sync state as reported to operators.
type UserStatus struct {
	UserID string

	// Connection is nil when the user has never synced.
	Connection *Connection

	Cursors  []SyncState
	Channels []WebhookChannel

	// Running lists the channel ids (or "full-sync") in flight for the user.
	Running []string
}
