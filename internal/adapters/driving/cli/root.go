// Package cli provides the calsync command line interface.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/core/ports/driving"
)

// Connector links a user's calendar account.
type Connector interface {
	Connect(ctx context.Context, userID string) (*domain.Credentials, error)
}

// Services are the driving ports the commands use.
type Services struct {
	Sync     driving.SyncOrchestrator
	FullSync driving.FullSyncRunner
	Channels driving.ChannelService
	Status   driving.StatusService
	Connect  Connector

	// Serve runs the HTTP server and scheduler until ctx is done.
	Serve func(ctx context.Context) error

	// Close releases storage and telemetry.
	Close func() error
}

// Options are the global flags passed to the bootstrap function.
type Options struct {
	ConfigFile string
	Verbose    bool
}

// BootstrapFunc builds the services once flags are parsed.
type BootstrapFunc func(ctx context.Context, opts Options) (*Services, error)

var (
	version = "dev"

	configFile string
	verbose    bool

	bootstrap BootstrapFunc
	services  *Services
)

var rootCmd = &cobra.Command{
	Use:   "calsync",
	Short: "Sync Google Calendar events into the memory vault",
	Long: `calsync keeps a memory vault in step with users' Google Calendars.

Push notifications from Google trigger incremental syncs; full syncs
reconcile a bounded window when a sync cursor is lost or a run fails.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupServices,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ~/.calsync/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command and then closes whatever services the
// command bootstrapped, whether or not it failed.
func Execute(ver string, boot BootstrapFunc) error {
	if ver != "" {
		version = ver
	}
	bootstrap = boot
	err := rootCmd.Execute()
	return errors.Join(err, closeServices())
}

// setupServices builds the services unless they were already provided.
// Commands that need no services skip bootstrapping.
func setupServices(cmd *cobra.Command, _ []string) error {
	if services != nil || cmd.Annotations[annotationNoServices] == "true" || bootstrap == nil {
		return nil
	}
	svc, err := bootstrap(cmd.Context(), Options{ConfigFile: configFile, Verbose: verbose})
	if err != nil {
		return err
	}
	services = svc
	return nil
}

func closeServices() error {
	if services == nil || services.Close == nil {
		return nil
	}
	err := services.Close()
	services = nil
	return err
}

const annotationNoServices = "calsync/no-services"

var errNotConfigured = errors.New("calsync services not configured")

// requireServices returns the services or errNotConfigured.
func requireServices() (*Services, error) {
	if services == nil {
		return nil, errNotConfigured
	}
	return services, nil
}
