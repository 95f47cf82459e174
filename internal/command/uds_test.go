package command

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jalas-labs/ripflow/internal/metrics"
	"github.com/jalas-labs/ripflow/internal/supervisor"
)

// fakeRuntime is a command.Runtime test double, avoiding a real
// pipeline's producer/worker/sender processes in these transport
// tests.
type fakeRuntime struct {
	stopped bool
	stopErr error
}

func (r *fakeRuntime) Status() []supervisor.ProcessRecord {
	return []supervisor.ProcessRecord{{Name: "producer"}}
}

func (r *fakeRuntime) Stop() error {
	r.stopped = true
	return r.stopErr
}

func newTestServer(t *testing.T, socketPath string) (*UDSServer, *fakeRuntime) {
	t.Helper()
	rt := &fakeRuntime{}
	handler := NewCommandHandler(rt, &metrics.Counters{})
	return NewUDSServer(socketPath, handler), rt
}

func TestUDSServerClient_Integration(t *testing.T) {
	tmpDir := t.TempDir()
	socketPath := filepath.Join(tmpDir, "test.sock")

	server, _ := newTestServer(t, socketPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)

	client := NewUDSClient(socketPath, 5*time.Second)

	t.Run("status", func(t *testing.T) {
		resp, err := client.Status(context.Background())
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if resp.Error != nil {
			t.Errorf("unexpected error: %v", resp.Error.Message)
		}
		result, ok := resp.Result.(map[string]interface{})
		if !ok {
			t.Fatal("result is not a map")
		}
		if _, exists := result["processes"]; !exists {
			t.Error("result missing 'processes' field")
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := client.Ping(context.Background()); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("unknown_method", func(t *testing.T) {
		resp, err := client.Call(context.Background(), "unknown.method", nil)
		if err != nil {
			t.Fatalf("Call failed: %v", err)
		}
		if resp.Error == nil {
			t.Error("expected error for unknown method")
		}
		if resp.Error.Code != ErrCodeMethodNotFound {
			t.Errorf("error code = %d, want %d", resp.Error.Code, ErrCodeMethodNotFound)
		}
	})

	cancel()

	select {
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			t.Errorf("server error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("server didn't stop in time")
	}

	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Error("socket file not removed after server stop")
	}
}

func TestUDSServer_StopCommandInvokesRuntime(t *testing.T) {
	tmpDir := t.TempDir()
	socketPath := filepath.Join(tmpDir, "test-stop.sock")

	server, rt := newTestServer(t, socketPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go server.Start(ctx)
	time.Sleep(100 * time.Millisecond)

	client := NewUDSClient(socketPath, 5*time.Second)
	resp, err := client.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}
	if !rt.stopped {
		t.Error("expected runtime.Stop to be invoked")
	}
}

func TestUDSClient_ConnectionError(t *testing.T) {
	client := NewUDSClient("/tmp/non-existent-socket.sock", 1*time.Second)

	_, err := client.Status(context.Background())
	if err == nil {
		t.Error("expected connection error")
	}
}

func TestUDSClient_Timeout(t *testing.T) {
	tmpDir := t.TempDir()
	socketPath := filepath.Join(tmpDir, "test-timeout.sock")

	server, _ := newTestServer(t, socketPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go server.Start(ctx)
	time.Sleep(100 * time.Millisecond)

	client := NewUDSClient(socketPath, 1*time.Nanosecond)

	_, err := client.Status(context.Background())
	if err == nil {
		t.Error("expected timeout error")
	}

	cancel()
}

func TestUDSServer_MultipleConnections(t *testing.T) {
	tmpDir := t.TempDir()
	socketPath := filepath.Join(tmpDir, "test-multi.sock")

	server, _ := newTestServer(t, socketPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go server.Start(ctx)
	time.Sleep(100 * time.Millisecond)

	clients := make([]*UDSClient, 5)
	for i := 0; i < 5; i++ {
		clients[i] = NewUDSClient(socketPath, 5*time.Second)
	}

	errCh := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func(client *UDSClient) {
			_, err := client.Status(context.Background())
			errCh <- err
		}(clients[i])
	}

	for i := 0; i < 5; i++ {
		if err := <-errCh; err != nil {
			t.Errorf("client %d failed: %v", i, err)
		}
	}

	cancel()
}

func TestUDSServer_ReportCommandFoldsIntoCounters(t *testing.T) {
	tmpDir := t.TempDir()
	socketPath := filepath.Join(tmpDir, "test-report.sock")

	rt := &fakeRuntime{}
	counters := &metrics.Counters{}
	server := NewUDSServer(socketPath, NewCommandHandler(rt, counters))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go server.Start(ctx)
	time.Sleep(100 * time.Millisecond)

	client := NewUDSClient(socketPath, 5*time.Second)
	resp, err := client.Call(context.Background(), "report", ReportParams{EventsProduced: 3, FramesSent: 2})
	if err != nil {
		t.Fatalf("Call(report): %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}

	snap := counters.Snapshot()
	if snap.EventsProduced != 3 || snap.FramesSent != 2 {
		t.Errorf("counters = %+v, want EventsProduced=3 FramesSent=2", snap)
	}

	// A second report accumulates rather than overwriting.
	if _, err := client.Call(context.Background(), "report", ReportParams{EventsProduced: 1}); err != nil {
		t.Fatalf("Call(report) second: %v", err)
	}
	if got := counters.Snapshot().EventsProduced; got != 4 {
		t.Errorf("EventsProduced = %d, want 4 after second report", got)
	}
}

func TestReporterRunSendsDeltaOnly(t *testing.T) {
	tmpDir := t.TempDir()
	socketPath := filepath.Join(tmpDir, "test-reporter.sock")

	rt := &fakeRuntime{}
	counters := &metrics.Counters{}
	server := NewUDSServer(socketPath, NewCommandHandler(rt, counters))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go server.Start(ctx)
	time.Sleep(100 * time.Millisecond)

	reporter := NewReporter(socketPath)
	var cumulative uint64 = 5
	go reporter.Run(ctx, func() ReportParams {
		return ReportParams{FramesSent: cumulative}
	})

	time.Sleep(reportInterval + 200*time.Millisecond)
	if got := counters.Snapshot().FramesSent; got != 5 {
		t.Errorf("FramesSent after first tick = %d, want 5", got)
	}

	cumulative = 9
	time.Sleep(reportInterval + 200*time.Millisecond)
	if got := counters.Snapshot().FramesSent; got != 9 {
		t.Errorf("FramesSent after second tick = %d, want 9 (delta-accumulated, not overwritten)", got)
	}
}

func TestReporterDisabledWithEmptySocket(t *testing.T) {
	reporter := NewReporter("")
	done := make(chan struct{})
	go func() {
		reporter.Run(context.Background(), func() ReportParams { return ReportParams{} })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Run with empty socket path should return immediately")
	}
}

func TestNewUDSClient_DefaultTimeout(t *testing.T) {
	client := NewUDSClient("/tmp/test.sock", 0)
	if client.timeout != 10*time.Second {
		t.Errorf("default timeout = %v, want 10s", client.timeout)
	}

	client2 := NewUDSClient("/tmp/test.sock", 5*time.Second)
	if client2.timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", client2.timeout)
	}
}
