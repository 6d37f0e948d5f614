package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect <user-id>",
	Short: "Authorise access to a user's Google Calendar",
	Long: `Opens the Google consent screen in a browser and stores the resulting
refresh token for the user. Run this before registering channels.`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

func init() {
	rootCmd.AddCommand(connectCmd)
}

func runConnect(cmd *cobra.Command, args []string) error {
	svc, err := requireServices()
	if err != nil {
		return err
	}
	if svc.Connect == nil {
		return fmt.Errorf("oauth flow: %w", errNotConfigured)
	}

	creds, err := svc.Connect.Connect(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	account := creds.AccountIdentifier
	if account == "" {
		account = creds.UserID
	}
	cmd.Printf("Connected %s as %s.\n", creds.UserID, account)
	return nil
}
