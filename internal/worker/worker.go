// Package worker implements the worker process's main routine: fair
// share the ingress channel, run the analyzer, fan results out across K
// egress channels.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jalas-labs/ripflow/internal/analyzer"
	"github.com/jalas-labs/ripflow/internal/command"
	"github.com/jalas-labs/ripflow/internal/core"
	"github.com/jalas-labs/ripflow/internal/fabric"
	"github.com/jalas-labs/ripflow/internal/serializer"
	"github.com/jalas-labs/ripflow/internal/wire"
)

// Config carries everything the worker routine needs, rebuilt fresh
// inside the spawned process.
type Config struct {
	Analyzer      analyzer.Analyzer
	Serializer    serializer.Serializer
	IngressAddr   string
	EgressAddrs   []string // length must equal Analyzer.NOutputs()
	SocketDir     string
	ControlSocket string // empty disables periodic counter reports
}

// Run is the worker's main_routine. It opens the PULL ingress and K PUSH
// egress channels, then loops: receive, analyze, serialize each output
// in receive order, transmit. Any error — from the channel or the
// analyzer — is logged and returns, letting the supervisor restart the
// process per policy.
func Run(ctx context.Context, cfg Config) error {
	log := slog.With("role", "worker")

	if cfg.Analyzer.NOutputs() != len(cfg.EgressAddrs) {
		err := &core.ConfigError{
			Field:  "egress_addrs",
			Reason: fmt.Sprintf("analyzer declares %d outputs, got %d egress addresses", cfg.Analyzer.NOutputs(), len(cfg.EgressAddrs)),
		}
		log.Error("worker misconfigured", "error", err)
		return err
	}

	fabricCtx := fabric.CreateContext(cfg.SocketDir)
	defer fabricCtx.Cleanup()

	ingress, err := fabricCtx.CreateChannel(fabric.ChannelSpec{Role: fabric.PullConnect, Address: cfg.IngressAddr})
	if err != nil {
		log.Error("ingress connect failed", "error", err)
		return err
	}

	egress := make([]fabric.Channel, len(cfg.EgressAddrs))
	for k, addr := range cfg.EgressAddrs {
		ch, err := fabricCtx.CreateChannel(fabric.ChannelSpec{Role: fabric.PushConnect, Address: addr})
		if err != nil {
			log.Error("egress connect failed", "output", k, "error", err)
			return err
		}
		egress[k] = ch
	}

	var counters Stats
	reporter := command.NewReporter(cfg.ControlSocket)
	go reporter.Run(ctx, func() command.ReportParams {
		return command.ReportParams{
			EventsProcessed: counters.Processed.Load(),
			AnalyzerErrors:  counters.AnalyzerErrors.Load(),
		}
	})

	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopping", "reason", ctx.Err(), "processed", counters.Processed.Load())
			return nil
		default:
		}

		frame, err := ingress.Receive()
		if err != nil {
			log.Error("ingress receive failed", "error", err)
			return err
		}
		counters.Received.Add(1)

		event, err := wire.DecodeEvent(frame)
		if err != nil {
			log.Error("wire decode failed", "error", err)
			return err
		}

		batch, err := cfg.Analyzer.Run(event)
		if err != nil {
			counters.AnalyzerErrors.Add(1)
			log.Error("analyzer run failed", "error", err)
			return err
		}

		for _, prop := range batch.Properties {
			if prop.OutputIndex < 0 || prop.OutputIndex >= len(egress) {
				err := &core.ConfigError{Field: "output_index", Reason: fmt.Sprintf("analyzer produced out-of-range output index %d", prop.OutputIndex)}
				log.Error("analyzer output out of range", "error", err)
				return err
			}

			serialized, err := cfg.Serializer.Serialize(prop)
			if err != nil {
				log.Error("serialize failed", "output", prop.OutputIndex, "error", err)
				return err
			}

			if err := egress[prop.OutputIndex].Send(serialized); err != nil {
				log.Error("egress send failed", "output", prop.OutputIndex, "error", err)
				return err
			}
		}

		counters.Processed.Add(1)
		counters.logThroughput(log)
	}
}
