package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/xiaojiou176/quotio-sub003/internal/config"
	"github.com/xiaojiou176/quotio-sub003/internal/formatter"
)

var configShow bool

// configEnvVars lists the environment variables quotio reads.
var configEnvVars = []string{
	"QUOTIO_CONFIG",
	"QUOTIO_OUTPUT",
	"QUOTIO_VERBOSE",
	"QUOTIO_CLI_COMMAND",
	"QUOTIO_MAX_WORKERS",
	"QUOTIO_WORKER_TIMEOUT",
	"QUOTIO_AGGREGATE_TIMEOUT",
	"QUOTIO_FIX_TIMEOUT",
	"QUOTIO_GRACE_PERIOD",
	"QUOTIO_MODEL",
	"QUOTIO_FULL_AUTO",
	"QUOTIO_SKIP_GIT_REPO_CHECK",
	"QUOTIO_EPHEMERAL",
	"QUOTIO_SERVER_ADDR",
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View quotio configuration.

Configuration priority (highest to lowest):
  1. Command-line flags
  2. Environment variables (QUOTIO_*)
  3. Project config (.quotio/config.yaml, or $QUOTIO_CONFIG)
  4. Home config (~/.quotio/config.yaml)
  5. Defaults

Environment variables:
  QUOTIO_CONFIG            - Explicit project config path
  QUOTIO_OUTPUT            - Default output format (table, json, yaml)
  QUOTIO_VERBOSE           - Enable verbose output (true/1)
  QUOTIO_CLI_COMMAND       - Review CLI binary (default: codex)
  QUOTIO_MAX_WORKERS       - Concurrent review workers (default: 8)
  QUOTIO_WORKER_TIMEOUT    - Per-worker timeout (default: 30m)
  QUOTIO_AGGREGATE_TIMEOUT - Aggregate session timeout (default: 45m)
  QUOTIO_FIX_TIMEOUT       - Fix session timeout (default: 1h)
  QUOTIO_GRACE_PERIOD      - SIGTERM to SIGKILL delay on cancel (default: 3s)
  QUOTIO_MODEL             - Model passed to the CLI
  QUOTIO_FULL_AUTO / QUOTIO_SKIP_GIT_REPO_CHECK / QUOTIO_EPHEMERAL - CLI flags
  QUOTIO_SERVER_ADDR       - quotio serve listen address

Examples:
  quotio config --show           # Show resolved configuration
  quotio config --show -o json   # Output as JSON`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().BoolVar(&configShow, "show", false, "Show resolved configuration with sources")
}

func runConfig(cmd *cobra.Command, _ []string) error {
	if !configShow {
		return cmd.Help()
	}

	overrides := &config.Config{Output: output, Verbose: verbose}
	resolved := config.Resolve(cfgFile, overrides)

	format := output
	if format == "" {
		for _, r := range resolved {
			if r.Key == "output" {
				format, _ = r.Value.(string)
			}
		}
	}
	if structured(format) {
		return writeStructured(os.Stdout, format, resolved)
	}

	fmt.Println("quotio configuration")
	fmt.Println("====================")
	fmt.Println()

	fmt.Println("Config files:")
	if home, err := os.UserHomeDir(); err == nil {
		printConfigFile("Home:   ", filepath.Join(home, ".quotio", "config.yaml"))
	}
	project := cfgFile
	if project == "" {
		project = os.Getenv("QUOTIO_CONFIG")
	}
	if project == "" {
		cwd, _ := os.Getwd()
		project = filepath.Join(cwd, ".quotio", "config.yaml")
	}
	printConfigFile("Project:", project)

	fmt.Println()
	fmt.Println("Resolved values:")
	tbl := formatter.NewTable(os.Stdout, "KEY", "VALUE", "SOURCE")
	for _, r := range resolved {
		tbl.AddRow(r.Key, fmt.Sprint(r.Value), string(r.Source))
	}
	if err := tbl.Render(); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Environment variables (if set):")
	anySet := false
	for _, env := range configEnvVars {
		if v := os.Getenv(env); v != "" {
			fmt.Printf("  %s=%s\n", env, v)
			anySet = true
		}
	}
	if !anySet {
		fmt.Println("  (none set)")
	}
	return nil
}

func printConfigFile(label, path string) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  ✓ %s %s\n", label, path)
	} else {
		fmt.Printf("  ✗ %s %s (not found)\n", label, path)
	}
}
