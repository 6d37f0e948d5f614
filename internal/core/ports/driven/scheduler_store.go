package driven

import (
	"context"

	"github.com/custodia-labs/calsync/internal/core/domain"
)

// SchedulerStore persists background task state so renewals and sweeps
// resume on schedule after a restart.
type SchedulerStore interface {
	// GetTask returns the task, or nil and no error if it is unknown.
	GetTask(ctx context.Context, taskID string) (*domain.ScheduledTask, error)

	// ListTasks returns every task ordered by id.
	ListTasks(ctx context.Context) ([]domain.ScheduledTask, error)

	// SaveTask creates or replaces a task.
	SaveTask(ctx context.Context, task *domain.ScheduledTask) error

	DeleteTask(ctx context.Context, taskID string) error

	// RecordResult appends a run to the task's history.
	RecordResult(ctx context.Context, result *domain.TaskResult) error

	// GetTaskHistory returns up to limit runs, most recent first.
	GetTaskHistory(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error)

	// PruneHistory keeps the newest keep runs per task.
	PruneHistory(ctx context.Context, keep int) error
}
