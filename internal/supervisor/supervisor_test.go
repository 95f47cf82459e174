package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// fakeChild is a Launchable whose liveness and launch behavior are fully
// controlled by the test, so restart-policy timing can be exercised
// without touching real OS processes.
type fakeChild struct {
	alive   atomic.Bool
	launches atomic.Int32
}

func (f *fakeChild) Launch() error {
	f.launches.Add(1)
	f.alive.Store(true)
	return nil
}

func (f *fakeChild) Stop(timeout time.Duration) error {
	f.alive.Store(false)
	return nil
}

func (f *fakeChild) IsAlive() bool { return f.alive.Load() }

func TestAddProcessRejectsDuplicateName(t *testing.T) {
	s := New()
	c := &fakeChild{}
	if err := s.AddProcess("worker-0", c, DefaultRestartPolicy()); err != nil {
		t.Fatalf("first AddProcess: %v", err)
	}
	if err := s.AddProcess("worker-0", c, DefaultRestartPolicy()); err == nil {
		t.Error("second AddProcess with same name: want error, got nil")
	}
}

func TestStartProcessLaunchesChild(t *testing.T) {
	s := New()
	c := &fakeChild{}
	if err := s.AddProcess("producer", c, DefaultRestartPolicy()); err != nil {
		t.Fatalf("AddProcess: %v", err)
	}
	if err := s.StartProcess("producer"); err != nil {
		t.Fatalf("StartProcess: %v", err)
	}
	if c.launches.Load() != 1 {
		t.Errorf("launches = %d, want 1", c.launches.Load())
	}
	if err := s.StopProcess("producer", time.Second); err != nil {
		t.Fatalf("StopProcess: %v", err)
	}
}

func TestMonitorRestartsDeadChild(t *testing.T) {
	s := New()
	c := &fakeChild{}
	policy := RestartPolicy{NRestart: 3, RestartDelay: 10 * time.Millisecond, ResetWindow: time.Minute}
	if err := s.AddProcess("worker-0", c, policy); err != nil {
		t.Fatalf("AddProcess: %v", err)
	}
	if err := s.StartProcess("worker-0"); err != nil {
		t.Fatalf("StartProcess: %v", err)
	}

	c.alive.Store(false) // simulate a crash

	deadline := time.Now().Add(3 * time.Second)
	for c.launches.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if c.launches.Load() < 2 {
		t.Fatalf("launches = %d, want >= 2 after crash", c.launches.Load())
	}

	s.Stop(context.Background(), time.Second)
}

func TestRestartBudgetExhaustionStopsRetrying(t *testing.T) {
	s := New()
	c := &fakeChild{}
	policy := RestartPolicy{NRestart: 1, RestartDelay: 5 * time.Millisecond, ResetWindow: time.Hour}
	if err := s.AddProcess("sender-0", c, policy); err != nil {
		t.Fatalf("AddProcess: %v", err)
	}
	if err := s.StartProcess("sender-0"); err != nil {
		t.Fatalf("StartProcess: %v", err)
	}

	for i := 0; i < 5; i++ {
		c.alive.Store(false)
		time.Sleep(600 * time.Millisecond)
	}

	// With NRestart=1 and a restart already consumed, launches should
	// plateau at 2 (initial + one restart) regardless of further crashes.
	launches := c.launches.Load()
	if launches > 2 {
		t.Errorf("launches = %d, want <= 2 once restart budget is exhausted", launches)
	}

	s.Stop(context.Background(), time.Second)
}
