package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/custodia-labs/calsync/internal/core/domain"
)

type fakeSync struct {
	calls  [][2]string
	result *domain.SyncResult
}

func (f *fakeSync) HandleNotification(_ context.Context, _ domain.Notification) error {
	return nil
}

func (f *fakeSync) Sync(_ context.Context, userID, calendarID string) *domain.SyncResult {
	f.calls = append(f.calls, [2]string{userID, calendarID})
	return f.result
}

type fakeFullSync struct {
	result *domain.FullSyncResult
	err    error
	users  []string
}

func (f *fakeFullSync) RunFullSync(_ context.Context, userID string) (*domain.FullSyncResult, error) {
	f.users = append(f.users, userID)
	return f.result, f.err
}

func (f *fakeFullSync) ScheduleFullSync(_ context.Context, _ string) error { return nil }

func (f *fakeFullSync) Start(_ context.Context, _ string) error { return nil }

func (f *fakeFullSync) RunScheduled(_ context.Context) (int, error) { return 0, nil }

type fakeChannels struct {
	registered   [][2]string
	unregistered [][2]string
	channels     []domain.WebhookChannel
	renewed      int
	err          error
}

func (f *fakeChannels) Register(_ context.Context, userID, calendarID string) (*domain.WebhookChannel, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.registered = append(f.registered, [2]string{userID, calendarID})
	return &domain.WebhookChannel{ID: "ch-1", UserID: userID, CalendarID: calendarID}, nil
}

func (f *fakeChannels) Unregister(_ context.Context, userID, channelID string) error {
	if f.err != nil {
		return f.err
	}
	f.unregistered = append(f.unregistered, [2]string{userID, channelID})
	return nil
}

func (f *fakeChannels) RenewExpiring(_ context.Context) (int, error) {
	return f.renewed, f.err
}

func (f *fakeChannels) List(_ context.Context, _ string) ([]domain.WebhookChannel, error) {
	return f.channels, f.err
}

type fakeStatus struct {
	status *domain.UserStatus
	err    error
}

func (f *fakeStatus) Status(_ context.Context, _ string) (*domain.UserStatus, error) {
	return f.status, f.err
}

type fakeConnector struct {
	creds *domain.Credentials
	err   error
}

func (f *fakeConnector) Connect(_ context.Context, _ string) (*domain.Credentials, error) {
	return f.creds, f.err
}

// withServices installs svc for the duration of the test.
func withServices(t *testing.T, svc *Services) {
	t.Helper()
	old := services
	oldBoot := bootstrap
	services = svc
	bootstrap = nil
	t.Cleanup(func() {
		services = old
		bootstrap = oldBoot
	})
}

// executeWithBootstrap runs args through Execute, so services built by
// boot are closed afterwards.
func executeWithBootstrap(t *testing.T, boot BootstrapFunc, args ...string) (string, error) {
	t.Helper()
	withServices(t, nil)
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
	})
	err := Execute("", boot)
	return buf.String(), err
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return buf.String(), err
}
