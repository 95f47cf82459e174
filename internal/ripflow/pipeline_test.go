package ripflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jalas-labs/ripflow/internal/config"
	"github.com/jalas-labs/ripflow/internal/fabric"
	"github.com/jalas-labs/ripflow/internal/process"
	"github.com/jalas-labs/ripflow/internal/testsupport"
)

// loadTestConfig reads path the same way a spawned child does, so a
// scenario's assertions run against exactly the config its children saw.
func loadTestConfig(t *testing.T, path string) (*config.GlobalConfig, error) {
	t.Helper()
	return config.Load(path)
}

// TestMain lets this binary double as the re-exec'd child process a real
// Runtime spawns: the same idiom os/exec's own tests use for a "helper
// process". If RIPFLOW_ROLE is set, this invocation is one of those
// children, so it runs the role's main routine instead of the test
// suite.
func TestMain(m *testing.M) {
	if os.Getenv(process.RoleEnvVar) != "" {
		if err := RunChildFromEnv(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// writePipelineConfig renders doc as YAML under the ripflow: root key and
// returns the path config.Load expects, the same file every spawned
// child re-reads to reconstruct its own capability.
func writePipelineConfig(t *testing.T, doc map[string]any) string {
	t.Helper()
	root := map[string]any{"ripflow": doc}
	b, err := yaml.Marshal(root)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func memoryEvents(n int, data func(i int) any) []map[string]any {
	events := make([]map[string]any, n)
	for i := 0; i < n; i++ {
		events[i] = map[string]any{
			"macropulse": int64(i),
			"name":       fmt.Sprintf("evt-%d", i),
			"data":       data(i),
		}
	}
	return events
}

// basePipelineDoc returns the common scaffolding every scenario in this
// file builds on top of: socket directory, restart policy, logging
// defaults. Callers fill in source/sink/analyzer and n_workers/base_port.
func basePipelineDoc(t *testing.T) map[string]any {
	t.Helper()
	return map[string]any{
		"pipeline": map[string]any{
			"socket_dir": t.TempDir(),
			"restart_policy": map[string]any{
				"n_restart":     3,
				"restart_delay": "200ms",
				"reset_window":  "60s",
			},
		},
		"log": map[string]any{"level": "info", "format": "json"},
	}
}

// subscribeWithRetry dials a tcp-pub sender's publish socket, retrying
// until it comes up (the sender process binds asynchronously after the
// supervisor launches it) or deadline elapses.
func subscribeWithRetry(t *testing.T, addr string, deadline time.Duration) fabric.Channel {
	t.Helper()
	fabricCtx := fabric.CreateContext("")
	t.Cleanup(fabricCtx.Cleanup)

	end := time.Now().Add(deadline)
	var lastErr error
	for time.Now().Before(end) {
		ch, err := fabricCtx.CreateChannel(fabric.ChannelSpec{Role: fabric.SubConnect, Address: addr})
		if err == nil {
			return ch
		}
		lastErr = err
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("subscribe to %s: timed out, last error: %v", addr, lastErr)
	return nil
}

// recvFrames reads n frames off ch, failing the test if deadline elapses
// first.
func recvFrames(t *testing.T, ch fabric.Channel, n int, deadline time.Duration) [][]byte {
	t.Helper()
	frames := make([][]byte, 0, n)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for len(frames) < n {
			frame, err := ch.Receive()
			if err != nil {
				return
			}
			frames = append(frames, frame)
		}
	}()

	select {
	case <-done:
	case <-time.After(deadline):
	}
	return frames
}

func decodeJSONName(t *testing.T, frame []byte) string {
	t.Helper()
	var doc map[string]any
	if err := json.Unmarshal(frame, &doc); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	name, _ := doc["name"].(string)
	return name
}

// TestPipelineHappyPathFanoutOne covers the single-worker, single-output
// happy path: every event the memory source produces reaches the one
// subscriber, in order, over a real loopback TCP connection fed by a
// real producer->worker->sender process chain.
func TestPipelineHappyPathFanoutOne(t *testing.T) {
	const nEvents = 10
	port := testsupport.FreePort(t)

	doc := basePipelineDoc(t)
	pipeline := doc["pipeline"].(map[string]any)
	pipeline["workers"] = 1
	pipeline["base_port"] = port
	pipeline["source"] = map[string]any{
		"name":   "memory",
		"config": map[string]any{"events": memoryEvents(nEvents, func(i int) any { return float64(i) })},
	}
	pipeline["sink"] = map[string]any{"name": "tcp-pub"}
	pipeline["analyzer"] = map[string]any{"name": "identity"}

	configPath := writePipelineConfig(t, doc)
	cfg, err := loadTestConfig(t, configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	rt, err := New(cfg, configPath, "run-s1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := rt.EventLoop(ctx, true); err != nil {
		t.Fatalf("EventLoop: %v", err)
	}
	t.Cleanup(func() { _ = rt.Stop() })

	sub := subscribeWithRetry(t, fmt.Sprintf("tcp://127.0.0.1:%d", port), 10*time.Second)
	frames := recvFrames(t, sub, nEvents, 15*time.Second)
	if len(frames) != nEvents {
		t.Fatalf("received %d frames, want %d", len(frames), nEvents)
	}
	for i, frame := range frames {
		want := fmt.Sprintf("evt-%d", i)
		if got := decodeJSONName(t, frame); got != want {
			t.Errorf("frame %d name = %q, want %q (order not preserved)", i, got, want)
		}
	}
}

// TestPipelineMultiOutputFanout covers scenario S3: a two-output
// analyzer fans each input event out across two independently bound
// sender ports, and both receive one frame per input.
func TestPipelineMultiOutputFanout(t *testing.T) {
	const nEvents = 6
	basePort := testsupport.FreePort(t)

	image := func(int) any {
		return [][]float64{{1, 2, 3}, {4, 5, 6}}
	}

	doc := basePipelineDoc(t)
	pipeline := doc["pipeline"].(map[string]any)
	pipeline["workers"] = 1
	pipeline["base_port"] = basePort
	pipeline["source"] = map[string]any{
		"name":   "memory",
		"config": map[string]any{"events": memoryEvents(nEvents, image)},
	}
	pipeline["sink"] = map[string]any{"name": "tcp-pub"}
	pipeline["analyzer"] = map[string]any{"name": "projection"}

	configPath := writePipelineConfig(t, doc)
	cfg, err := loadTestConfig(t, configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	rt, err := New(cfg, configPath, "run-s3")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if rt.NOutputs() != 2 {
		t.Fatalf("NOutputs() = %d, want 2", rt.NOutputs())
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := rt.EventLoop(ctx, true); err != nil {
		t.Fatalf("EventLoop: %v", err)
	}
	t.Cleanup(func() { _ = rt.Stop() })

	subBase := subscribeWithRetry(t, fmt.Sprintf("tcp://127.0.0.1:%d", basePort), 10*time.Second)
	subSum := subscribeWithRetry(t, fmt.Sprintf("tcp://127.0.0.1:%d", basePort+1), 10*time.Second)

	framesBase := recvFrames(t, subBase, nEvents, 15*time.Second)
	framesSum := recvFrames(t, subSum, nEvents, 15*time.Second)

	if len(framesBase) != nEvents {
		t.Errorf("output 0 received %d frames, want %d", len(framesBase), nEvents)
	}
	if len(framesSum) != nEvents {
		t.Errorf("output 1 received %d frames, want %d", len(framesSum), nEvents)
	}
}

// TestPipelineWorkerCrashRecovery covers scenario S2: a worker whose
// analyzer faults partway through is restarted by the supervisor, and
// the subscriber keeps seeing frames after the restart rather than the
// pipeline wedging permanently.
func TestPipelineWorkerCrashRecovery(t *testing.T) {
	const nEvents = 24
	port := testsupport.FreePort(t)

	doc := basePipelineDoc(t)
	pipeline := doc["pipeline"].(map[string]any)
	pipeline["workers"] = 2 // redundancy: one worker crashing must not starve the ingress channel
	pipeline["base_port"] = port
	pipeline["restart_policy"] = map[string]any{
		"n_restart":     10,
		"restart_delay": "100ms",
		"reset_window":  "60s",
	}
	pipeline["source"] = map[string]any{
		"name":   "memory",
		"config": map[string]any{"events": memoryEvents(nEvents, func(i int) any { return float64(i) })},
	}
	pipeline["sink"] = map[string]any{"name": "tcp-pub"}
	pipeline["analyzer"] = map[string]any{
		"name":   "crash-after",
		"config": map[string]any{"crash_after": 3},
	}

	configPath := writePipelineConfig(t, doc)
	cfg, err := loadTestConfig(t, configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	rt, err := New(cfg, configPath, "run-s2")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := rt.EventLoop(ctx, true); err != nil {
		t.Fatalf("EventLoop: %v", err)
	}
	t.Cleanup(func() { _ = rt.Stop() })

	sub := subscribeWithRetry(t, fmt.Sprintf("tcp://127.0.0.1:%d", port), 10*time.Second)

	restarted := false
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		for _, rec := range rt.Status() {
			if rec.RestartCount > 0 {
				restarted = true
			}
		}
		if restarted {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
	if !restarted {
		t.Fatal("no worker was ever restarted; crash-after analyzer never faulted")
	}

	// A restart having happened, the pipeline must still be delivering:
	// at least one more frame should arrive after the restart was
	// observed, proving the producer/new-worker/sender chain recovered
	// rather than wedging.
	frames := recvFrames(t, sub, 1, 10*time.Second)
	if len(frames) == 0 {
		t.Fatal("no frames observed after worker restart; pipeline did not recover")
	}
}

// TestPipelineRestartCountResetsAfterWindow covers the bookkeeping side of
// scenario S5: with no crashes at all, the reset window elapses more than
// once and every child's RestartCount stays at zero. It does not force
// crashes across the window.
func TestPipelineRestartCountResetsAfterWindow(t *testing.T) {
	doc := basePipelineDoc(t)
	pipeline := doc["pipeline"].(map[string]any)
	pipeline["workers"] = 1
	pipeline["base_port"] = testsupport.FreePort(t)
	pipeline["restart_policy"] = map[string]any{
		"n_restart":     2,
		"restart_delay": "100ms",
		"reset_window":  "1s",
	}
	// The identity analyzer never faults, so no child crashes in this
	// test's lifetime; this
	// scenario is about the bookkeeping window resetting, not about
	// actually exhausting the budget, so it is exercised directly
	// against the supervisor's snapshot rather than by forcing crashes.
	pipeline["source"] = map[string]any{
		"name":   "memory",
		"config": map[string]any{"events": memoryEvents(2, func(i int) any { return float64(i) })},
	}
	pipeline["sink"] = map[string]any{"name": "console"}
	pipeline["analyzer"] = map[string]any{"name": "identity"}

	configPath := writePipelineConfig(t, doc)
	cfg, err := loadTestConfig(t, configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	rt, err := New(cfg, configPath, "run-s5")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := rt.EventLoop(ctx, true); err != nil {
		t.Fatalf("EventLoop: %v", err)
	}
	t.Cleanup(func() { _ = rt.Stop() })

	// Let two reset windows pass with nothing dying: RestartCount must
	// stay at zero the whole time, since resetRestartCountIfDue only
	// ever zeroes an already-zero counter here — the real assertion is
	// that nothing panics or misbehaves across a reset boundary when
	// idle, and every process is still alive on the far side of it.
	time.Sleep(3 * time.Second)

	for _, rec := range rt.Status() {
		if rec.RestartCount != 0 {
			t.Errorf("process %s RestartCount = %d, want 0 (nothing crashed)", rec.Name, rec.RestartCount)
		}
	}
}

// TestPipelineShutdownStopsEveryChild covers scenario S6: Stop ends
// every child process and leaves no stray socket behind.
func TestPipelineShutdownStopsEveryChild(t *testing.T) {
	doc := basePipelineDoc(t)
	pipeline := doc["pipeline"].(map[string]any)
	pipeline["workers"] = 2
	pipeline["base_port"] = testsupport.FreePort(t)
	pipeline["source"] = map[string]any{
		"name":   "memory",
		"config": map[string]any{"events": memoryEvents(4, func(i int) any { return float64(i) })},
	}
	pipeline["sink"] = map[string]any{"name": "console"}
	pipeline["analyzer"] = map[string]any{"name": "identity"}

	configPath := writePipelineConfig(t, doc)
	cfg, err := loadTestConfig(t, configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	socketDir := pipeline["socket_dir"].(string)

	rt, err := New(cfg, configPath, "run-s6")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := rt.EventLoop(ctx, true); err != nil {
		t.Fatalf("EventLoop: %v", err)
	}

	// Give every child a moment to actually come up and bind its
	// sockets before tearing the pipeline back down.
	time.Sleep(1 * time.Second)

	if err := rt.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	leftover, err := filepath.Glob(filepath.Join(socketDir, "*.sock"))
	if err != nil {
		t.Fatalf("glob socket dir: %v", err)
	}
	if len(leftover) != 0 {
		t.Errorf("stray socket files after Stop: %v", leftover)
	}
}
