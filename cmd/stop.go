// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jalas-labs/ripflow/internal/command"
)

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running pipeline",
	Long: `Stop a running ripflow pipeline gracefully.

Sends a stop command to the running supervisor over its control
socket. The supervisor stops the producer, workers, and senders in
turn. The daemon process itself keeps running until it receives
SIGTERM or SIGINT.`,
	Run: func(cmd *cobra.Command, args []string) {
		runStopCommand()
	},
}

func runStopCommand() {
	client := command.NewUDSClient(socketPath, 10*time.Second)
	ctx := context.Background()

	if err := client.Ping(ctx); err != nil {
		exitWithError("pipeline is not running or socket is inaccessible", err)
	}

	resp, err := client.Stop(ctx)
	if err != nil {
		exitWithError("failed to send stop command", err)
	}

	if resp.Error != nil {
		exitWithError(resp.Error.Message, nil)
	}

	fmt.Println("pipeline stopped.")
}
