// Package main is the entry point for the ripflow pipeline binary.
//
// This same binary runs two ways: as the CLI (ripflow start/stop/status)
// and, re-exec'd with RIPFLOW_ROLE set, as a single producer, worker, or
// sender child spawned by a running supervisor.
package main

import (
	"fmt"
	"os"

	"github.com/jalas-labs/ripflow/cmd"
	"github.com/jalas-labs/ripflow/internal/process"
	"github.com/jalas-labs/ripflow/internal/ripflow"
)

func main() {
	if os.Getenv(process.RoleEnvVar) != "" {
		if err := ripflow.RunChildFromEnv(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
