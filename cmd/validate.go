// Package cmd implements CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jalas-labs/ripflow/internal/analyzer"
	"github.com/jalas-labs/ripflow/internal/config"
	"github.com/jalas-labs/ripflow/internal/connector"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a pipeline configuration file",
	Long: `Validate a pipeline configuration file without starting it.

Checks that the file parses, that the configured source, sink, and
analyzer names are registered, and that the analyzer declares at least
one output.

Examples:
  ripflow validate -c config.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		runValidateCommand()
	},
}

func runValidateCommand() {
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
		os.Exit(1)
	}

	if _, ok := connector.GetSourceFactory(cfg.Pipeline.Source.Name); !ok {
		fmt.Fprintf(os.Stderr, "INVALID: no source registered as %q\n", cfg.Pipeline.Source.Name)
		os.Exit(1)
	}
	if _, ok := connector.GetSinkFactory(cfg.Pipeline.Sink.Name); !ok {
		fmt.Fprintf(os.Stderr, "INVALID: no sink registered as %q\n", cfg.Pipeline.Sink.Name)
		os.Exit(1)
	}

	analyzerFactory, ok := analyzer.Get(cfg.Pipeline.Analyzer.Name)
	if !ok {
		fmt.Fprintf(os.Stderr, "INVALID: no analyzer registered as %q\n", cfg.Pipeline.Analyzer.Name)
		os.Exit(1)
	}
	probe, err := analyzerFactory(cfg.Pipeline.Analyzer.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID: construct analyzer %q: %v\n", cfg.Pipeline.Analyzer.Name, err)
		os.Exit(1)
	}
	if probe.NOutputs() <= 0 {
		fmt.Fprintf(os.Stderr, "INVALID: analyzer %q declares zero outputs\n", cfg.Pipeline.Analyzer.Name)
		os.Exit(1)
	}

	fmt.Printf("VALID: workers=%d source=%q sink=%q analyzer=%q outputs=%d\n",
		cfg.Pipeline.NWorkers,
		cfg.Pipeline.Source.Name,
		cfg.Pipeline.Sink.Name,
		cfg.Pipeline.Analyzer.Name,
		probe.NOutputs(),
	)
}
