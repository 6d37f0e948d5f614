package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync <user-id> [calendar-id]",
	Short: "Run an incremental sync for a user",
	Long: `Fetches the changes made to a calendar since the stored sync cursor
and applies them to the memory vault. The calendar defaults to "primary".
If the run fails the connection is marked for a full sync.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSync,
}

var fullSyncCmd = &cobra.Command{
	Use:   "fullsync <user-id>",
	Short: "Run a full reconciliation for a user",
	Long: `Lists every calendar the user can access and re-imports events in
the configured window. Fresh sync cursors are stored for each calendar.`,
	Args: cobra.ExactArgs(1),
	RunE: runFullSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(fullSyncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	svc, err := requireServices()
	if err != nil {
		return err
	}
	if svc.Sync == nil {
		return fmt.Errorf("sync service: %w", errNotConfigured)
	}

	userID := args[0]
	calendarID := "primary"
	if len(args) > 1 {
		calendarID = args[1]
	}

	cmd.Printf("Synchronising %s for %s...\n", calendarID, userID)

	result := svc.Sync.Sync(cmd.Context(), userID, calendarID)
	if result == nil {
		return fmt.Errorf("sync %s/%s produced no result", userID, calendarID)
	}

	cmd.Printf("Applied %d of %d changes (%d failed)\n", result.Applied, result.Total, result.Failed())
	cmd.Printf("Connection status: %s\n", result.Status)
	return nil
}

func runFullSync(cmd *cobra.Command, args []string) error {
	svc, err := requireServices()
	if err != nil {
		return err
	}
	if svc.FullSync == nil {
		return fmt.Errorf("full sync service: %w", errNotConfigured)
	}

	userID := args[0]
	cmd.Printf("Running full sync for %s...\n", userID)

	result, err := svc.FullSync.RunFullSync(cmd.Context(), userID)
	if err != nil {
		return fmt.Errorf("full sync failed: %w", err)
	}

	for _, cal := range result.Calendars {
		if cal.Err != nil {
			cmd.Printf("  %s: error: %v\n", cal.CalendarID, cal.Err)
			continue
		}
		cmd.Printf("  %s: %d applied, %d failed\n", cal.CalendarID, cal.Applied, cal.Failed)
	}

	if !result.Success {
		return fmt.Errorf("full sync for %s completed with errors", userID)
	}
	cmd.Printf("Full sync complete: %d events applied.\n", result.Applied)
	return nil
}
