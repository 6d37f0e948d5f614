package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/core/ports/driven"
)

type schedulerStore struct {
	store *Store
}

var _ driven.SchedulerStore = (*schedulerStore)(nil)

const taskColumns = `id, name, interval_seconds, last_run, next_run, last_error, last_success, enabled`

func (s *schedulerStore) GetTask(ctx context.Context, taskID string) (*domain.ScheduledTask, error) {
	if err := s.store.ensureReady(); err != nil {
		return nil, err
	}
	task, err := scanTask(s.store.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM calsync_scheduler_tasks WHERE id = $1`, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning task: %w", err)
	}
	return task, nil
}

func (s *schedulerStore) ListTasks(ctx context.Context) ([]domain.ScheduledTask, error) {
	if err := s.store.ensureReady(); err != nil {
		return nil, err
	}
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM calsync_scheduler_tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.ScheduledTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func (s *schedulerStore) SaveTask(ctx context.Context, task *domain.ScheduledTask) error {
	if task == nil {
		return domain.ErrInvalidInput
	}
	if err := s.store.ensureReady(); err != nil {
		return err
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO calsync_scheduler_tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			interval_seconds = EXCLUDED.interval_seconds,
			last_run = EXCLUDED.last_run,
			next_run = EXCLUDED.next_run,
			last_error = EXCLUDED.last_error,
			last_success = EXCLUDED.last_success,
			enabled = EXCLUDED.enabled`,
		task.ID, task.Name, int64(task.Interval.Seconds()),
		nullTime(task.LastRun), nullTime(task.NextRun), task.LastError,
		nullTime(task.LastSuccess), task.Enabled)
	if err != nil {
		return fmt.Errorf("saving task: %w", err)
	}
	return nil
}

func (s *schedulerStore) DeleteTask(ctx context.Context, taskID string) error {
	if err := s.store.ensureReady(); err != nil {
		return err
	}
	if _, err := s.store.db.ExecContext(ctx,
		`DELETE FROM calsync_scheduler_tasks WHERE id = $1`, taskID); err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	return nil
}

func (s *schedulerStore) RecordResult(ctx context.Context, result *domain.TaskResult) error {
	if result == nil {
		return domain.ErrInvalidInput
	}
	if err := s.store.ensureReady(); err != nil {
		return err
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO calsync_scheduler_runs (task_id, started_at, ended_at, success, error, processed)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		result.TaskID, result.StartedAt.UTC(), result.EndedAt.UTC(),
		result.Success, result.Error, result.Processed)
	if err != nil {
		return fmt.Errorf("recording task result: %w", err)
	}
	return nil
}

func (s *schedulerStore) GetTaskHistory(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	if err := s.store.ensureReady(); err != nil {
		return nil, err
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT task_id, started_at, ended_at, success, error, processed
		FROM calsync_scheduler_runs WHERE task_id = $1
		ORDER BY started_at DESC, id DESC LIMIT $2`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying task history: %w", err)
	}
	defer rows.Close()

	var results []domain.TaskResult
	for rows.Next() {
		var r domain.TaskResult
		if err := rows.Scan(&r.TaskID, &r.StartedAt, &r.EndedAt, &r.Success, &r.Error, &r.Processed); err != nil {
			return nil, fmt.Errorf("scanning task result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *schedulerStore) PruneHistory(ctx context.Context, keep int) error {
	if err := s.store.ensureReady(); err != nil {
		return err
	}
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM calsync_scheduler_runs WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY task_id ORDER BY started_at DESC, id DESC) AS rn
				FROM calsync_scheduler_runs
			) ranked WHERE rn > $1
		)`, keep)
	if err != nil {
		return fmt.Errorf("pruning task history: %w", err)
	}
	return nil
}

func scanTask(row rowScanner) (*domain.ScheduledTask, error) {
	var task domain.ScheduledTask
	var intervalSeconds int64
	var lastRun, nextRun, lastSuccess sql.NullTime
	if err := row.Scan(&task.ID, &task.Name, &intervalSeconds, &lastRun, &nextRun,
		&task.LastError, &lastSuccess, &task.Enabled); err != nil {
		return nil, err
	}
	task.Interval = time.Duration(intervalSeconds) * time.Second
	task.LastRun = lastRun.Time
	task.NextRun = nextRun.Time
	task.LastSuccess = lastSuccess.Time
	return &task, nil
}
