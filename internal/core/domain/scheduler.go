package domain

import "time"

// Built-in background tasks.
const (
	// TaskIDChannelRenewal re-registers push channels before they expire.
	TaskIDChannelRenewal = "channel-renewal"

	// TaskIDFullSyncSweep runs full syncs deferred by failed incremental runs.
	TaskIDFullSyncSweep = "full-sync-sweep"
)

// BuiltinTasks maps each built-in task id to its display name.
var BuiltinTasks = map[string]string{
	TaskIDChannelRenewal: "Channel Renewal",
	TaskIDFullSyncSweep:  "Full Sync Sweep",
}

// ScheduledTask is the persisted state of a recurring task.
type ScheduledTask struct {
	ID       string
	Name     string
	Interval time.Duration
	Enabled  bool

	LastRun     time.Time
	NextRun     time.Time
	LastSuccess time.Time

	// LastError is the error of the most recent run, empty after a success.
	LastError string
}

// Due reports whether an enabled task should run at now.
// A task that has never been scheduled is due immediately.
func (t *ScheduledTask) Due(now time.Time) bool {
	return t.Enabled && (t.NextRun.IsZero() || !t.NextRun.After(now))
}

// Complete folds a finished run into the task and schedules the next one.
func (t *ScheduledTask) Complete(r *TaskResult) {
	t.LastRun = r.StartedAt
	t.NextRun = r.EndedAt.Add(t.Interval)
	if r.Success {
		t.LastError = ""
		t.LastSuccess = r.EndedAt
		return
	}
	t.LastError = r.Error
}

// TaskResult is one execution of a task.
type TaskResult struct {
	TaskID    string
	StartedAt time.Time
	EndedAt   time.Time
	Success   bool
	Error     string

	// Processed counts channels renewed or users resynced.
	Processed int
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	// Enabled is the master switch for the scheduler.
	Enabled bool

	TaskConfigs map[string]TaskConfig
}

// TaskConfig configures a single task.
type TaskConfig struct {
	Enabled  bool
	Interval time.Duration
}

// GetTaskConfig returns the configuration for taskID, or the zero
// TaskConfig (disabled) when none is set.
func (c SchedulerConfig) GetTaskConfig(taskID string) TaskConfig {
	return c.TaskConfigs[taskID]
}

// DefaultSchedulerConfig renews channels every five days, inside the
// provider's seven-day channel lifetime, and sweeps deferred full syncs
// every fifteen minutes.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled: true,
		TaskConfigs: map[string]TaskConfig{
			TaskIDChannelRenewal: {Enabled: true, Interval: 5 * 24 * time.Hour},
			TaskIDFullSyncSweep:  {Enabled: true, Interval: 15 * time.Minute},
		},
	}
}
