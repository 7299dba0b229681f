package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xiaojiou176/quotio-sub003/internal/config"
)

var (
	// Global flags
	verbose bool
	output  string
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "quotio",
	Short: "Parallel AI code review queue",
	Long: `quotio runs an AI coding CLI (codex by default) as a review queue.

Several review sessions run in parallel, an aggregate session merges their
findings and a fix session applies them. Every job is recorded under
.quotio/review-queue/ in the workspace.

Core Commands:
  review run       Start a review job
  review history   List past jobs of a workspace
  review show      Show one job
  serve            Expose the queue over a local HTTP API
  config           Show resolved configuration
  version          Show version information`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: .quotio/config.yaml)")
}

// loadConfig resolves configuration with the global flags applied on top.
func loadConfig(overrides *config.Config) (*config.Config, error) {
	if overrides == nil {
		overrides = &config.Config{}
	}
	overrides.Output = output
	overrides.Verbose = verbose
	cfg, err := config.Load(cfgFile, overrides)
	if err != nil {
		return nil, err
	}
	if cfg.Verbose {
		verbose = true
	}
	return cfg, nil
}

// VerbosePrintf prints to stderr only when verbose mode is enabled, so
// structured output on stdout stays parseable.
func VerbosePrintf(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// verboseLogf adapts VerbosePrintf for packages that log without a newline.
func verboseLogf(format string, args ...any) {
	VerbosePrintf(format+"\n", args...)
}
