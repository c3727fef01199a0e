package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "brickvest",
	Short: "Collectible set investment prediction pipeline",
	Long: `brickvest CLI

Predicts post-retirement price appreciation for collectible product
sets: dataset build, feature engineering, quantile model training,
scoring, validation and reporting.

Usage:
  go run ./cmd/brickvest [command]

Examples:
  go run ./cmd/brickvest pipeline run
  go run ./cmd/brickvest validate --test backtest
  go run ./cmd/brickvest ingest backfill-rrp
  go run ./cmd/brickvest api`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
