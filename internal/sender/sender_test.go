package sender

import (
	"context"
	"testing"
	"time"

	"github.com/jalas-labs/ripflow/internal/connector"
	"github.com/jalas-labs/ripflow/internal/fabric"
)

func TestSenderDrainsEgressAndSends(t *testing.T) {
	dir := t.TempDir()
	fabricCtx := fabric.CreateContext(dir)
	defer fabricCtx.Cleanup()

	egressPush, err := fabricCtx.CreateChannel(fabric.ChannelSpec{Role: fabric.PushConnect, Address: "ipc://sender_0"})
	if err != nil {
		t.Fatalf("create push-connect: %v", err)
	}

	sinkFactory, ok := connector.GetSinkFactory("console")
	if !ok {
		t.Fatal("console sink factory not registered")
	}
	sink, err := sinkFactory(nil)
	if err != nil {
		t.Fatalf("build sink: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{Sink: sink, Idx: 0, EgressAddr: "ipc://sender_0", SocketDir: dir})
	}()

	time.Sleep(50 * time.Millisecond)

	if err := egressPush.Send([]byte(`{"name":"frame"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sender Run did not return after context cancellation")
	}
}

func TestSenderFailsOnDoubleConnectSink(t *testing.T) {
	dir := t.TempDir()
	sinkFactory, _ := connector.GetSinkFactory("console")
	sink, _ := sinkFactory(nil)
	_ = sink.ConnectSubprocess(0) // pre-connect to force the sender's call to fail

	err := Run(context.Background(), Config{Sink: sink, Idx: 0, EgressAddr: "ipc://sender_pre", SocketDir: dir})
	if err == nil {
		t.Fatal("expected error from double ConnectSubprocess, got nil")
	}
}
