// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	socketPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ripflow",
	Short: "Ripflow - streaming analysis pipeline for scientific acquisition",
	Long: `Ripflow runs a producer/worker-pool/sender pipeline that ingests
an acquisition stream, fans it out through a pool of analyzer workers,
and broadcasts the analyzed results over one PUB channel per analyzer
output.

Features:
  - Process-isolated pipeline: producer, workers, senders run as
    separate OS processes supervised with a restart policy
  - Pluggable source/sink/analyzer capabilities, resolved by name
  - Local control: CLI via Unix Domain Socket
  - Operational status endpoint over HTTP`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/ripflow/config.yml",
		"config file path")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "/var/run/ripflow.sock",
		"control socket path")

	// Add subcommands
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(validateCmd)
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
