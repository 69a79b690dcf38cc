package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alertdesk/alarm-console/internal/config"
	"github.com/alertdesk/alarm-console/internal/service/feed"
	"github.com/alertdesk/alarm-console/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// simulateInterval enables random demo traffic at the given cadence.
	simulateInterval time.Duration

	// rootCmd represents the base command for running the feed server.
	rootCmd = &cobra.Command{
		Use:   "alarm-feedd [listen-address]",
		Short: "Run the alarm broadcast feed server.",
		Long: `Starts the gRPC feed server that broadcasts sequenced alarm events.

Each category (emergency, non_emergency, history) carries its own sequence
numbering. Consoles subscribe per category and may request missed sequence
numbers back over the same channel; agent updates sent on the channel are
applied with server-authoritative timestamps and rebroadcast.

The server listens on the specified address or extracts the port from the
configured server address. With --simulate it also generates random alarm
traffic for demos.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &feed.Options{
				ConfigPath:       configPath,
				ListenAddress:    listenAddress,
				SimulateInterval: simulateInterval,
			}

			return feed.Run(ctx, options)
		},
	}
)

// Execute runs the alarm-feedd CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().
		DurationVarP(&simulateInterval, "simulate", "s", 0, "generate random alarm traffic at this interval")
}
