package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Manage push notification channels",
	Long:  `Register, list, renew and stop the webhook channels Google delivers calendar notifications to.`,
}

var channelsRegisterCmd = &cobra.Command{
	Use:   "register <user-id> [calendar-id]",
	Short: "Watch a calendar for changes",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runChannelsRegister,
}

var channelsUnregisterCmd = &cobra.Command{
	Use:   "unregister <user-id> <channel-id>",
	Short: "Stop a notification channel",
	Args:  cobra.ExactArgs(2),
	RunE:  runChannelsUnregister,
}

var channelsListCmd = &cobra.Command{
	Use:   "list <user-id>",
	Short: "List a user's notification channels",
	Args:  cobra.ExactArgs(1),
	RunE:  runChannelsList,
}

var channelsRenewCmd = &cobra.Command{
	Use:   "renew",
	Short: "Re-register channels that are close to expiry",
	Args:  cobra.NoArgs,
	RunE:  runChannelsRenew,
}

func init() {
	channelsCmd.AddCommand(channelsRegisterCmd)
	channelsCmd.AddCommand(channelsUnregisterCmd)
	channelsCmd.AddCommand(channelsListCmd)
	channelsCmd.AddCommand(channelsRenewCmd)
	rootCmd.AddCommand(channelsCmd)
}

func channelService() (*Services, error) {
	svc, err := requireServices()
	if err != nil {
		return nil, err
	}
	if svc.Channels == nil {
		return nil, fmt.Errorf("channel service: %w", errNotConfigured)
	}
	return svc, nil
}

func runChannelsRegister(cmd *cobra.Command, args []string) error {
	svc, err := channelService()
	if err != nil {
		return err
	}

	calendarID := "primary"
	if len(args) > 1 {
		calendarID = args[1]
	}

	ch, err := svc.Channels.Register(cmd.Context(), args[0], calendarID)
	if err != nil {
		return fmt.Errorf("register channel: %w", err)
	}

	cmd.Printf("Registered channel %s for %s\n", ch.ID, ch.CalendarID)
	if !ch.Expiration.IsZero() {
		cmd.Printf("Expires: %s\n", ch.Expiration.Format(time.RFC3339))
	}
	return nil
}

func runChannelsUnregister(cmd *cobra.Command, args []string) error {
	svc, err := channelService()
	if err != nil {
		return err
	}

	if err := svc.Channels.Unregister(cmd.Context(), args[0], args[1]); err != nil {
		return fmt.Errorf("unregister channel: %w", err)
	}
	cmd.Printf("Channel %s stopped.\n", args[1])
	return nil
}

func runChannelsList(cmd *cobra.Command, args []string) error {
	svc, err := channelService()
	if err != nil {
		return err
	}

	channels, err := svc.Channels.List(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}

	if len(channels) == 0 {
		cmd.Println("No channels registered.")
		return nil
	}

	for i := range channels {
		ch := &channels[i]
		expires := "never"
		if !ch.Expiration.IsZero() {
			expires = ch.Expiration.Format(time.RFC3339)
		}
		cmd.Printf("%s  %s  expires %s\n", ch.ID, ch.CalendarID, expires)
	}
	return nil
}

func runChannelsRenew(cmd *cobra.Command, _ []string) error {
	svc, err := channelService()
	if err != nil {
		return err
	}

	n, err := svc.Channels.RenewExpiring(cmd.Context())
	if err != nil {
		return fmt.Errorf("renew channels: %w", err)
	}
	cmd.Printf("Renewed %d channels.\n", n)
	return nil
}
