package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/calsync/internal/core/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status <user-id>",
	Short: "Show sync status for a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	svc, err := requireServices()
	if err != nil {
		return err
	}
	if svc.Status == nil {
		return fmt.Errorf("status service: %w", errNotConfigured)
	}

	st, err := svc.Status.Status(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	cmd.Print(renderStatus(st))
	return nil
}

func renderStatus(st *domain.UserStatus) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(st.UserID))
	b.WriteString("\n")

	if st.Connection == nil {
		b.WriteString(mutedStyle.Render("not connected"))
		b.WriteString("\n")
		return b.String()
	}

	c := st.Connection
	row(&b, "Status", statusStyle(c.Status).Render(string(c.Status)))
	row(&b, "Last sync", formatTime(c.LastSyncAt))
	if c.LastError != "" {
		row(&b, "Last error", c.LastError)
	}
	if len(st.Running) > 0 {
		row(&b, "Running", strings.Join(st.Running, ", "))
	}

	if len(st.Cursors) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("Calendars"))
		b.WriteString("\n")
		for _, cur := range st.Cursors {
			row(&b, cur.CalendarID, "synced "+formatTime(cur.UpdatedAt))
		}
	}

	if len(st.Channels) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("Channels"))
		b.WriteString("\n")
		for i := range st.Channels {
			ch := &st.Channels[i]
			row(&b, ch.CalendarID, ch.ID+mutedStyle.Render(" expires "+formatTime(ch.Expiration)))
		}
	}

	return b.String()
}

func row(b *strings.Builder, label, value string) {
	b.WriteString(labelStyle.Render(label))
	b.WriteString(value)
	b.WriteString("\n")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}
