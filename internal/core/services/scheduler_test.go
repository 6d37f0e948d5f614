package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/core/ports/driven"
	"github.com/custodia-labs/calsync/internal/core/ports/driving"
)

// --- Mock implementations for scheduler testing ---

// mockSchedulerStore implements driven.SchedulerStore for testing.
type mockSchedulerStore struct {
	mu       sync.RWMutex
	tasks    map[string]*domain.ScheduledTask
	results  map[string][]domain.TaskResult
	saveErr  error
	listErr  error
	getErr   error
	pruneErr error
}

func newMockSchedulerStore() *mockSchedulerStore {
	return &mockSchedulerStore{
		tasks:   make(map[string]*domain.ScheduledTask),
		results: make(map[string][]domain.TaskResult),
	}
}

func (m *mockSchedulerStore) GetTask(_ context.Context, taskID string) (*domain.ScheduledTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	task, exists := m.tasks[taskID]
	if !exists {
		return nil, nil
	}
	// Return a copy
	taskCopy := *task
	return &taskCopy, nil
}

func (m *mockSchedulerStore) ListTasks(_ context.Context) ([]domain.ScheduledTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	tasks := make([]domain.ScheduledTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, *t)
	}
	return tasks, nil
}

func (m *mockSchedulerStore) SaveTask(_ context.Context, task *domain.ScheduledTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if task == nil {
		return domain.ErrInvalidInput
	}
	taskCopy := *task
	m.tasks[task.ID] = &taskCopy
	return nil
}

func (m *mockSchedulerStore) DeleteTask(_ context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, taskID)
	return nil
}

func (m *mockSchedulerStore) RecordResult(_ context.Context, result *domain.TaskResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if result == nil {
		return domain.ErrInvalidInput
	}
	m.results[result.TaskID] = append(m.results[result.TaskID], *result)
	return nil
}

func (m *mockSchedulerStore) GetTaskHistory(_ context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := m.results[taskID]
	if len(results) > limit {
		results = results[len(results)-limit:]
	}
	return results, nil
}

func (m *mockSchedulerStore) PruneHistory(_ context.Context, _ int) error {
	return m.pruneErr
}

// mockChannelService implements driving.ChannelService for testing.
type mockChannelService struct {
	mu         sync.Mutex
	renewCalls int
	renewErr   error
}

func (m *mockChannelService) Register(_ context.Context, _, _ string) (*domain.WebhookChannel, error) {
	return &domain.WebhookChannel{}, nil
}

func (m *mockChannelService) Unregister(_ context.Context, _, _ string) error { return nil }

func (m *mockChannelService) RenewExpiring(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renewCalls++
	return 2, m.renewErr
}

func (m *mockChannelService) List(_ context.Context, _ string) ([]domain.WebhookChannel, error) {
	return nil, nil
}

func (m *mockChannelService) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renewCalls
}

// mockFullSyncRunner implements driving.FullSyncRunner for testing.
type mockFullSyncRunner struct {
	mu        sync.Mutex
	sweeps    int
	sweepErr  error
	sweepWait chan struct{}
}

func (m *mockFullSyncRunner) RunFullSync(_ context.Context, userID string) (*domain.FullSyncResult, error) {
	return &domain.FullSyncResult{UserID: userID, Success: true}, nil
}

func (m *mockFullSyncRunner) ScheduleFullSync(_ context.Context, _ string) error { return nil }

func (m *mockFullSyncRunner) Start(_ context.Context, _ string) error { return nil }

func (m *mockFullSyncRunner) RunScheduled(_ context.Context) (int, error) {
	if m.sweepWait != nil {
		<-m.sweepWait
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeps++
	return 1, m.sweepErr
}

func (m *mockFullSyncRunner) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweeps
}

// Ensure mocks implement interfaces
var _ driven.SchedulerStore = (*mockSchedulerStore)(nil)
var _ driving.ChannelService = (*mockChannelService)(nil)
var _ driving.FullSyncRunner = (*mockFullSyncRunner)(nil)

// ==================== Scheduler Tests ====================

func newTestScheduler(store *mockSchedulerStore) (*Scheduler, *mockChannelService, *mockFullSyncRunner) {
	channels := &mockChannelService{}
	fullSync := &mockFullSyncRunner{}
	return NewScheduler(domain.DefaultSchedulerConfig(), store, channels, fullSync), channels, fullSync
}

func TestNewScheduler(t *testing.T) {
	config := domain.DefaultSchedulerConfig()
	scheduler := NewScheduler(config, newMockSchedulerStore(), nil, nil)

	require.NotNil(t, scheduler)
	assert.Equal(t, config.Enabled, scheduler.config.Enabled)
	assert.Equal(t, time.Minute, scheduler.tick)
}

func TestScheduler_StartStop(t *testing.T) {
	scheduler, _, _ := newTestScheduler(newMockSchedulerStore())

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = scheduler.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	cancel()
	err := scheduler.Stop()
	require.NoError(t, err)

	wg.Wait()
}

func TestScheduler_Disabled(t *testing.T) {
	config := domain.DefaultSchedulerConfig()
	config.Enabled = false
	store := newMockSchedulerStore()
	scheduler := NewScheduler(config, store, &mockChannelService{}, &mockFullSyncRunner{})

	require.NoError(t, scheduler.Start(context.Background()))
	assert.Empty(t, store.tasks)
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	scheduler, _, _ := newTestScheduler(newMockSchedulerStore())

	err := scheduler.Stop()
	require.NoError(t, err)
}

func TestScheduler_DoubleStart(t *testing.T) {
	scheduler, _, _ := newTestScheduler(newMockSchedulerStore())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = scheduler.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	// Second start returns immediately
	err := scheduler.Start(context.Background())
	assert.NoError(t, err)

	cancel()
	scheduler.Stop() //nolint:errcheck
	wg.Wait()
}

func TestScheduler_InitialiseTasks(t *testing.T) {
	store := newMockSchedulerStore()
	scheduler, _, _ := newTestScheduler(store)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	scheduler.now = func() time.Time { return now }

	ctx := context.Background()
	err := scheduler.initialiseTasks(ctx)
	require.NoError(t, err)

	renewal, err := store.GetTask(ctx, domain.TaskIDChannelRenewal)
	require.NoError(t, err)
	require.NotNil(t, renewal)
	assert.Equal(t, "Channel Renewal", renewal.Name)
	assert.Equal(t, 120*time.Hour, renewal.Interval)
	assert.True(t, renewal.Enabled)
	assert.Equal(t, now, renewal.NextRun, "renewal is due at startup")

	sweep, err := store.GetTask(ctx, domain.TaskIDFullSyncSweep)
	require.NoError(t, err)
	require.NotNil(t, sweep)
	assert.Equal(t, "Full Sync Sweep", sweep.Name)
	assert.Equal(t, now.Add(15*time.Minute), sweep.NextRun)
}

func TestScheduler_EnsureTask_UpdateInterval(t *testing.T) {
	store := newMockSchedulerStore()
	scheduler, _, _ := newTestScheduler(store)
	ctx := context.Background()

	taskCfg := domain.TaskConfig{
		Enabled:  true,
		Interval: 1 * time.Hour,
	}
	err := scheduler.ensureTask(ctx, "test-task", "Test Task", taskCfg)
	require.NoError(t, err)

	taskCfg.Interval = 2 * time.Hour
	err = scheduler.ensureTask(ctx, "test-task", "Test Task", taskCfg)
	require.NoError(t, err)

	task, err := store.GetTask(ctx, "test-task")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, task.Interval)
}

func TestScheduler_NilServices(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), nil, nil)
	ctx := context.Background()

	n, err := scheduler.runChannelRenewal(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = scheduler.runFullSyncSweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScheduler_CheckAndRunDueTasks(t *testing.T) {
	store := newMockSchedulerStore()
	scheduler, channels, fullSync := newTestScheduler(store)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{
		ID:       domain.TaskIDChannelRenewal,
		Name:     "Channel Renewal",
		Interval: 120 * time.Hour,
		NextRun:  now.Add(-1 * time.Minute),
		Enabled:  true,
	}))
	require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{
		ID:       domain.TaskIDFullSyncSweep,
		Name:     "Full Sync Sweep",
		Interval: 15 * time.Minute,
		NextRun:  now.Add(time.Hour), // not due
		Enabled:  true,
	}))

	scheduler.checkAndRunDueTasks(ctx)
	scheduler.wg.Wait()

	assert.Equal(t, 1, channels.calls())
	assert.Zero(t, fullSync.calls())

	task, err := store.GetTask(ctx, domain.TaskIDChannelRenewal)
	require.NoError(t, err)
	assert.True(t, task.NextRun.After(now.Add(119*time.Hour)))
	assert.Empty(t, task.LastError)

	history, err := store.GetTaskHistory(ctx, domain.TaskIDChannelRenewal, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Success)
	assert.Equal(t, 2, history[0].Processed)
}

func TestScheduler_TaskFailureRecorded(t *testing.T) {
	store := newMockSchedulerStore()
	scheduler, _, fullSync := newTestScheduler(store)
	fullSync.sweepErr = errors.New("sweep failed")
	ctx := context.Background()

	task := &domain.ScheduledTask{ID: domain.TaskIDFullSyncSweep, Interval: 15 * time.Minute, Enabled: true}
	scheduler.runTask(ctx, task)
	scheduler.wg.Wait()

	saved, err := store.GetTask(ctx, domain.TaskIDFullSyncSweep)
	require.NoError(t, err)
	assert.Equal(t, "sweep failed", saved.LastError)

	history, err := store.GetTaskHistory(ctx, domain.TaskIDFullSyncSweep, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Success)
	assert.Equal(t, "sweep failed", history[0].Error)
}

func TestScheduler_RunTask_SkipsWhileRunning(t *testing.T) {
	store := newMockSchedulerStore()
	scheduler, _, fullSync := newTestScheduler(store)
	fullSync.sweepWait = make(chan struct{})
	ctx := context.Background()

	task := &domain.ScheduledTask{ID: domain.TaskIDFullSyncSweep, Interval: time.Minute, Enabled: true}
	scheduler.runTask(ctx, task)
	scheduler.runTask(ctx, task)

	close(fullSync.sweepWait)
	scheduler.wg.Wait()
	assert.Equal(t, 1, fullSync.calls())
}

func TestScheduler_RunTask_UnknownTaskID(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), nil, nil)
	ctx := context.Background()

	task := &domain.ScheduledTask{
		ID:      "unknown-task",
		Name:    "Unknown",
		Enabled: true,
	}

	// This should just log and return, not panic
	scheduler.runTask(ctx, task)
	scheduler.wg.Wait()
}
