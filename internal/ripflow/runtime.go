// Package ripflow is the public façade: construct a pipeline from
// configuration, run it, stop it. Mirrors the original Ripflow class's
// constructor/event_loop/stop shape.
package ripflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jalas-labs/ripflow/internal/analyzer"
	"github.com/jalas-labs/ripflow/internal/config"
	"github.com/jalas-labs/ripflow/internal/core"
	"github.com/jalas-labs/ripflow/internal/process"
	"github.com/jalas-labs/ripflow/internal/supervisor"
)

// launchStagger is the delay between launching successive children at
// startup, avoiding a thundering herd of processes all binding sockets
// at once.
const launchStagger = 50 * time.Millisecond

// stopTimeout bounds how long a child gets to exit gracefully before the
// supervisor escalates to SIGKILL.
const stopTimeout = 5 * time.Second

// Runtime is one constructed, not-yet-running pipeline: a producer, the
// configured number of workers, one sender per analyzer output, and the
// supervisor that owns them all.
type Runtime struct {
	cfg        *config.GlobalConfig
	configPath string
	runID      string
	nOutputs   int
	supervisor *supervisor.Supervisor
}

// New validates cfg and constructs a Runtime. configPath is the file
// the child processes will re-read on launch (see internal/process) to
// reconstruct their own capability, since no in-process value can cross
// an os/exec boundary by reference.
func New(cfg *config.GlobalConfig, configPath, runID string) (*Runtime, error) {
	analyzerFactory, ok := analyzer.Get(cfg.Pipeline.Analyzer.Name)
	if !ok {
		return nil, &core.ConfigError{Field: "pipeline.analyzer.name", Reason: fmt.Sprintf("no analyzer registered as %q", cfg.Pipeline.Analyzer.Name)}
	}
	// A throwaway instance only to read the declared output count: the
	// real instances the worker processes run are built fresh inside
	// each spawned process, never shared with this one.
	probe, err := analyzerFactory(cfg.Pipeline.Analyzer.Config)
	if err != nil {
		return nil, fmt.Errorf("ripflow: construct analyzer to probe output count: %w", err)
	}
	k := probe.NOutputs()
	if k <= 0 {
		return nil, &core.ConfigError{Field: "pipeline.analyzer", Reason: "analyzer must declare at least one output (K=0 is rejected)"}
	}

	if err := os.MkdirAll(cfg.Pipeline.SocketDir, 0o755); err != nil {
		return nil, fmt.Errorf("ripflow: create socket dir: %w", err)
	}

	policy := supervisor.RestartPolicy{
		NRestart:     cfg.Pipeline.RestartPolicy.NRestart,
		RestartDelay: cfg.Pipeline.RestartPolicy.RestartDelay(),
		ResetWindow:  cfg.Pipeline.RestartPolicy.ResetWindow(),
	}

	sup := supervisor.New()

	logFile, _ := openChildLogFile(cfg)

	producerChild := process.NewChild(core.RoleProducer, 0, configPath, cfg.Pipeline.SocketDir, runID, logFile)
	if err := sup.AddProcess("producer", producerChild, policy); err != nil {
		return nil, err
	}

	for i := 0; i < cfg.Pipeline.NWorkers; i++ {
		child := process.NewChild(core.RoleWorker, i, configPath, cfg.Pipeline.SocketDir, runID, logFile)
		if err := sup.AddProcess(fmt.Sprintf("worker-%d", i), child, policy); err != nil {
			return nil, err
		}
	}

	for k2 := 0; k2 < k; k2++ {
		child := process.NewChild(core.RoleSender, k2, configPath, cfg.Pipeline.SocketDir, runID, logFile)
		if err := sup.AddProcess(fmt.Sprintf("sender-%d", k2), child, policy); err != nil {
			return nil, err
		}
	}

	return &Runtime{
		cfg:        cfg,
		configPath: configPath,
		runID:      runID,
		nOutputs:   k,
		supervisor: sup,
	}, nil
}

func openChildLogFile(cfg *config.GlobalConfig) (*os.File, error) {
	if !cfg.Log.Outputs.File.Enabled || cfg.Log.Outputs.File.Path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Log.Outputs.File.Path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(cfg.Log.Outputs.File.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// NOutputs returns the analyzer's declared output count (the sender
// count K).
func (r *Runtime) NOutputs() int { return r.nOutputs }

// EventLoop starts every child. If background is false it blocks until
// ctx is cancelled; if true it returns immediately after launch.
func (r *Runtime) EventLoop(ctx context.Context, background bool) error {
	if err := r.supervisor.StartAllProcesses(launchStagger); err != nil {
		return err
	}
	if background {
		return nil
	}
	<-ctx.Done()
	return nil
}

// Stop stops every child and waits for the supervisor's monitors to
// finish, bounded by stopTimeout.
func (r *Runtime) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return r.supervisor.Stop(ctx, stopTimeout)
}

// Status returns a snapshot of every child's supervisor bookkeeping,
// for the operational status endpoint.
func (r *Runtime) Status() []supervisor.ProcessRecord {
	return r.supervisor.Snapshot()
}
