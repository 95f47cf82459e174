// Package sender implements one sender process's main routine: drain a
// single egress channel, publish each frame externally via the sink.
package sender

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/jalas-labs/ripflow/internal/command"
	"github.com/jalas-labs/ripflow/internal/connector"
	"github.com/jalas-labs/ripflow/internal/fabric"
)

// Config carries everything one sender routine needs, rebuilt fresh
// inside the spawned process.
type Config struct {
	Sink          connector.Sink
	Idx           int
	EgressAddr    string
	SocketDir     string
	ControlSocket string // empty disables periodic counter reports
}

// Run is the sender's main_routine. It binds PULL on the egress channel
// for its index, calls sink.ConnectSubprocess exactly once, and loops
// receive-then-send until the channel or the sink faults.
func Run(ctx context.Context, cfg Config) error {
	log := slog.With("role", "sender", "idx", cfg.Idx)

	fabricCtx := fabric.CreateContext(cfg.SocketDir)
	defer fabricCtx.Cleanup()

	egress, err := fabricCtx.CreateChannel(fabric.ChannelSpec{Role: fabric.PullBind, Address: cfg.EgressAddr})
	if err != nil {
		log.Error("egress bind failed", "error", err)
		return err
	}

	if err := cfg.Sink.ConnectSubprocess(cfg.Idx); err != nil {
		log.Error("sink connect failed", "error", err)
		return err
	}

	var sent atomic.Uint64
	reporter := command.NewReporter(cfg.ControlSocket)
	go reporter.Run(ctx, func() command.ReportParams {
		return command.ReportParams{FramesSent: sent.Load()}
	})

	for {
		select {
		case <-ctx.Done():
			log.Info("sender stopping", "reason", ctx.Err(), "sent", sent.Load())
			return nil
		default:
		}

		frame, err := egress.Receive()
		if err != nil {
			log.Error("egress receive failed", "error", err)
			return err
		}

		if err := cfg.Sink.Send(frame); err != nil {
			log.Error("sink send failed", "error", err)
			return err
		}
		sent.Add(1)
	}
}
