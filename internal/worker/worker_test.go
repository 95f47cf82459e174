package worker

import (
	"context"
	"testing"
	"time"

	"github.com/jalas-labs/ripflow/internal/core"
	"github.com/jalas-labs/ripflow/internal/fabric"
	"github.com/jalas-labs/ripflow/internal/serializer"
	"github.com/jalas-labs/ripflow/internal/wire"
)

type identityAnalyzer struct{}

func (identityAnalyzer) NOutputs() int { return 1 }
func (identityAnalyzer) Run(event core.RawEvent) (core.AnalyzedBatch, error) {
	return core.AnalyzedBatch{
		Properties: []core.AnalyzedProperty{
			{OutputIndex: 0, Name: event.Name, Data: event.Data},
		},
	}, nil
}

func TestWorkerRoundTripsOneEvent(t *testing.T) {
	dir := t.TempDir()
	fabricCtx := fabric.CreateContext(dir)
	defer fabricCtx.Cleanup()

	ingressBind, err := fabricCtx.CreateChannel(fabric.ChannelSpec{Role: fabric.PushBind, Address: "ipc://source"})
	if err != nil {
		t.Fatalf("create ingress push-bind: %v", err)
	}
	egressBind, err := fabricCtx.CreateChannel(fabric.ChannelSpec{Role: fabric.PullBind, Address: "ipc://sender_0"})
	if err != nil {
		t.Fatalf("create egress pull-bind: %v", err)
	}

	ser, _ := (func() (serializer.Serializer, error) {
		f, _ := serializer.Get("json")
		return f(nil)
	})()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{
			Analyzer:    identityAnalyzer{},
			Serializer:  ser,
			IngressAddr: "ipc://source",
			EgressAddrs: []string{"ipc://sender_0"},
			SocketDir:   dir,
		})
	}()

	time.Sleep(50 * time.Millisecond)

	frame, err := wire.EncodeEvent(core.RawEvent{Name: "shot-1", Data: "x"})
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}
	if err := ingressBind.Send(frame); err != nil {
		t.Fatalf("Send: %v", err)
	}

	out, err := egressBind.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(out) == 0 {
		t.Error("egress frame is empty")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker Run did not return after context cancellation")
	}
}

func TestWorkerRejectsMismatchedOutputCount(t *testing.T) {
	dir := t.TempDir()
	ser, _ := (func() (serializer.Serializer, error) {
		f, _ := serializer.Get("json")
		return f(nil)
	})()

	err := Run(context.Background(), Config{
		Analyzer:    identityAnalyzer{}, // NOutputs() == 1
		Serializer:  ser,
		IngressAddr: "ipc://source",
		EgressAddrs: nil, // zero egress addresses
		SocketDir:   dir,
	})
	if err == nil {
		t.Fatal("expected a ConfigError for mismatched output count, got nil")
	}
}
