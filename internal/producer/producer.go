// Package producer implements the producer process's main routine:
// pull from the external source, push onto the ingress channel.
package producer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jalas-labs/ripflow/internal/command"
	"github.com/jalas-labs/ripflow/internal/connector"
	"github.com/jalas-labs/ripflow/internal/fabric"
	"github.com/jalas-labs/ripflow/internal/wire"
)

// Config carries everything the producer routine needs to run, built
// fresh inside the spawned process from the pipeline's persisted
// configuration — no value here survives a restart by reference.
type Config struct {
	Source        connector.Source
	IngressAddr   string
	SocketDir     string
	SourceTimeout int    // seconds; 0 means block indefinitely
	ControlSocket string // empty disables periodic counter reports
}

// Run is the producer's main_routine. It connects the source exactly
// once, binds the ingress PUSH channel, and loops until the source or
// the channel fails, at which point it logs and returns so the
// supervisor can decide whether to restart it.
func Run(ctx context.Context, cfg Config) error {
	log := slog.With("role", "producer")

	if err := cfg.Source.Connect(); err != nil {
		log.Error("source connect failed", "error", err)
		return err
	}

	fabricCtx := fabric.CreateContext(cfg.SocketDir)
	defer fabricCtx.Cleanup()

	ingress, err := fabricCtx.CreateChannel(fabric.ChannelSpec{Role: fabric.PushBind, Address: cfg.IngressAddr})
	if err != nil {
		log.Error("ingress bind failed", "error", err)
		return err
	}

	var produced atomic.Uint64
	reporter := command.NewReporter(cfg.ControlSocket)
	go reporter.Run(ctx, func() command.ReportParams {
		return command.ReportParams{EventsProduced: produced.Load()}
	})

	for {
		select {
		case <-ctx.Done():
			log.Info("producer stopping", "reason", ctx.Err())
			return nil
		default:
		}

		getCtx := ctx
		var cancel context.CancelFunc
		if cfg.SourceTimeout > 0 {
			getCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.SourceTimeout)*time.Second)
		}
		event, err := cfg.Source.GetData(getCtx)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			log.Error("source get_data failed", "error", err)
			return err
		}

		frame, err := wire.EncodeEvent(event)
		if err != nil {
			log.Error("wire encode failed", "error", err)
			return err
		}

		if err := ingress.Send(frame); err != nil {
			log.Error("ingress send failed", "error", err)
			return err
		}
		produced.Add(1)
	}
}
