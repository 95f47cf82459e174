// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/satori/go.uuid"

	"github.com/jalas-labs/ripflow/internal/command"
	"github.com/jalas-labs/ripflow/internal/config"
	rflog "github.com/jalas-labs/ripflow/internal/log"
	"github.com/jalas-labs/ripflow/internal/metrics"
	"github.com/jalas-labs/ripflow/internal/ripflow"
)

// runForeground loads cfg, constructs the pipeline Runtime and its
// control plane, and blocks until a shutdown signal arrives or the
// runtime's own EventLoop returns.
func runForeground(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := rflog.Init(cfg.Log); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	runID := uuid.NewV4().String()
	slog.Info("ripflow starting", "version", "0.1.0", "run_id", runID, "config", cfgPath)

	rt, err := ripflow.New(cfg, cfgPath, runID)
	if err != nil {
		return fmt.Errorf("construct runtime: %w", err)
	}

	counters := &metrics.Counters{}
	cmdHandler := command.NewCommandHandler(rt, counters)
	udsServer := command.NewUDSServer(cfg.Control.Socket, cmdHandler)

	var statusServer *metrics.Server
	if cfg.Metrics.Enabled {
		statusServer = metrics.NewServer(cfg.Metrics.Listen, "/status", counters, rt.Status)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := udsServer.Start(ctx); err != nil && err != context.Canceled {
			slog.Error("uds server failed", "error", err)
		}
	}()

	if statusServer != nil {
		if err := statusServer.Start(ctx); err != nil {
			slog.Error("status server failed to start", "error", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	errCh := make(chan error, 1)
	go func() {
		errCh <- rt.EventLoop(ctx, false)
	}()

	slog.Info("ripflow started, waiting for signals")

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil {
			slog.Error("event loop exited with error", "error", err)
		}
	}

	cancel()

	if err := rt.Stop(); err != nil {
		slog.Error("failed to stop runtime", "error", err)
	}

	if statusServer != nil {
		if err := statusServer.Stop(context.Background()); err != nil {
			slog.Error("failed to stop status server", "error", err)
		}
	}

	slog.Info("ripflow stopped gracefully")
	return nil
}
