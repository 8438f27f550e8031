// Gray Macro - desktop macro automation core
//
// This is the main entry point for the graymacro binary. It serves the
// macro library over HTTP and WebSocket, and runs or checks macro
// documents from the command line:
//
//	graymacro serve              # API, bridges and run history
//	graymacro run daily.yaml     # one-shot run of a macro document
//	graymacro check daily.yaml   # build the command tree and print it
//	graymacro types              # list the step type palette
//	graymacro token --subject ci # issue an API bearer token
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/nerrad567/gray-macro-core/migrations"
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
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) so runs end Cancelled
	// and the server shuts down cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// options holds the flags shared by every subcommand.
type options struct {
	configPath string
	logLevel   string
}

// newRootCmd assembles the command tree. It is separate from main so
// tests can execute commands with their own arguments and output.
func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "graymacro",
		Short:         "Desktop macro automation core",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", getConfigPath(), "Path to the YAML configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(opts),
		newRunCmd(opts),
		newCheckCmd(opts),
		newTypesCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

// getConfigPath returns the configuration file path.
// Uses GRAYMACRO_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYMACRO_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
