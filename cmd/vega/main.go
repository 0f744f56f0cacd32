// Vega NMOS Core - registry mirror and connection control service.
//
// This is the main entry point for the Vega core. The service:
//   - Mirrors an NMOS IS-04 registry into memory and keeps it current
//     through Query API push subscriptions
//   - Connects and disconnects receivers through IS-05 staged PATCH
//   - Registers itself as a Node with a control Device and heartbeats it
//   - Serves the REST and WebSocket API consumed by the control panel
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	ConfigPath string
}

// newRootCommand creates the vega command tree.
func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "vega",
		Short:         "Vega NMOS core",
		Long:          "Registry mirror, connection control and self-registration for an NMOS control panel.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "",
		"config file (default $VEGA_CONFIG or "+defaultConfigPath+")")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newDiscoverCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// getConfigPath returns the configuration file path.
// An explicit flag wins, then VEGA_CONFIG, then the default.
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv("VEGA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newVersionCommand prints build information.
func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "vega %s (commit %s, built %s)\n", version, commit, date)
			return err
		},
	}
}
