package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alertdesk/alarm-console/internal/config"
	"github.com/alertdesk/alarm-console/internal/service/console"
	"github.com/alertdesk/alarm-console/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// category selects the initially active stack.
	category string
	// filter narrows the rendered snapshot with a boolean expression.
	filter string
	// agentID overrides the configured agent identity.
	agentID string

	// rootCmd represents the base command for running the operator console.
	rootCmd = &cobra.Command{
		Use:   "alarm-console [server-address]",
		Short: "Run the live alarm console.",
		Long: `Connects to the alarm feed server and maintains a live, priority-ordered
view of every alarm category.

All three categories (emergency, non_emergency, history) stay subscribed at
all times; --category only selects which stack is rendered. Missed sequence
numbers are detected and requested back automatically, with exponential
retry and a degraded marker when the feed cannot fill a gap.

Server address can be provided as argument or loaded from configuration.
The filter expression sees id, priority, status, category, assigned, agent
and age_seconds, e.g. --filter 'priority >= 7 && !assigned'.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use server address argument if provided, otherwise rely on config.
			var serverAddress string
			if len(args) > 0 {
				serverAddress = args[0]
			}

			options := &console.Options{
				ConfigPath:    configPath,
				ServerAddress: serverAddress,
				Category:      category,
				Filter:        filter,
				AgentID:       agentID,
			}

			return console.Run(ctx, options)
		},
	}
)

// Execute runs the alarm-console CLI and exits with non-zero status on error.
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
	rootCmd.Flags().StringVarP(&category, "category", "g", "", "initially active category")
	rootCmd.Flags().StringVarP(&filter, "filter", "f", "", "boolean expression narrowing the rendered snapshot")
	rootCmd.Flags().StringVarP(&agentID, "agent", "a", "", "agent identity override")
}
