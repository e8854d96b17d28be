package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	envFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vega",
	Short: "VEGA - multi-broker order coordination",
	Long: `VEGA Unified CLI

Order coordination and multi-broker execution layer: batch placement,
modify / cancel, exit-all, idempotent replays and venue rate limits.

Usage:
  go run ./cmd/vega [command]

Examples:
  go run ./cmd/vega serve
  go run ./cmd/vega scheduler status
  go run ./cmd/vega ratelimit usage
  go run ./cmd/vega brokers
  go run ./cmd/vega db migrate`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file loaded before .env discovery")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
