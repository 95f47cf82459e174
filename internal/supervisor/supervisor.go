// Package supervisor owns every child process in a pipeline, launches
// them, watches their liveness, restarts them per policy, and tears
// them down. Grounded on the teacher's internal/plugin.Manager
// (ticker-driven health-check loop, per-entity status map) generalized
// from "plugin health" to "process liveness + restart", and on
// internal/task.Manager's sync.RWMutex-guarded registration bookkeeping.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/satori/go.uuid"
	"github.com/sourcegraph/conc"

	"github.com/jalas-labs/ripflow/internal/core"
)

// Launchable is the subset of process.Child the supervisor depends on.
// Decoupling from the concrete type keeps this package testable without
// spawning real OS processes.
type Launchable interface {
	Launch() error
	Stop(timeout time.Duration) error
	IsAlive() bool
}

// pollInterval is how often the supervisor checks each registered
// child's liveness, matching the original monitor thread's 1-second
// polling cadence.
const pollInterval = 1 * time.Second

// ProcessRecord is the supervisor's bookkeeping entry for one child.
type ProcessRecord struct {
	ID            string
	Name          string
	Target        Launchable `json:"-"`
	Policy        RestartPolicy
	RestartCount  int
	LastRestart   time.Time
	ResetDeadline time.Time

	stopMonitor chan struct{}
}

// Supervisor holds the registry of children keyed by name.
type Supervisor struct {
	log *slog.Logger

	mu       sync.RWMutex
	children map[string]*ProcessRecord

	monitors conc.WaitGroup
}

// New creates an empty supervisor.
func New() *Supervisor {
	return &Supervisor{
		log:      slog.With("component", "supervisor"),
		children: make(map[string]*ProcessRecord),
	}
}

// AddProcess registers a child under name with the given policy. It is
// an error to register the same name twice.
func (s *Supervisor) AddProcess(name string, target Launchable, policy RestartPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.children[name]; exists {
		return &core.ConfigError{Field: "name", Reason: "process " + name + " already registered"}
	}

	s.children[name] = &ProcessRecord{
		ID:     uuid.NewV4().String(),
		Name:   name,
		Target: target,
		Policy: policy,
	}
	return nil
}

// StartAllProcesses launches every registered child, staggered by delay
// between each launch, and starts each one's liveness monitor.
func (s *Supervisor) StartAllProcesses(delay time.Duration) error {
	s.mu.RLock()
	names := make([]string, 0, len(s.children))
	for name := range s.children {
		names = append(names, name)
	}
	s.mu.RUnlock()

	for _, name := range names {
		if err := s.StartProcess(name); err != nil {
			return err
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}
	return nil
}

// StartProcess launches the named child and begins monitoring it.
func (s *Supervisor) StartProcess(name string) error {
	s.mu.Lock()
	rec, ok := s.children[name]
	if !ok {
		s.mu.Unlock()
		return &core.ConfigError{Field: "name", Reason: "process " + name + " not registered"}
	}
	rec.ResetDeadline = time.Now().Add(rec.Policy.ResetWindow)
	rec.stopMonitor = make(chan struct{})
	s.mu.Unlock()

	if err := rec.Target.Launch(); err != nil {
		s.log.Error("launch failed", "process", name, "id", rec.ID, "error", err)
		return err
	}
	s.log.Info("process started", "process", name, "id", rec.ID)

	s.monitors.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("monitor panic recovered", "process", name, "panic", r)
			}
		}()
		s.monitorProcess(name)
	})
	return nil
}

// monitorProcess polls one child's liveness every pollInterval and
// triggers a restart when it has died, honoring the restart-count reset
// window.
func (s *Supervisor) monitorProcess(name string) {
	s.mu.RLock()
	rec, ok := s.children[name]
	s.mu.RUnlock()
	if !ok {
		return
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rec.stopMonitor:
			return
		case <-ticker.C:
			s.resetRestartCountIfDue(rec)
			if !rec.Target.IsAlive() {
				s.restartProcess(name)
			}
		}
	}
}

func (s *Supervisor) resetRestartCountIfDue(rec *ProcessRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if !rec.ResetDeadline.IsZero() && !now.Before(rec.ResetDeadline) {
		if rec.RestartCount != 0 {
			s.log.Info("restart count reset", "process", rec.Name, "id", rec.ID)
		}
		rec.RestartCount = 0
		rec.ResetDeadline = time.Now().Add(rec.Policy.ResetWindow)
	}
}

// restartProcess re-launches a dead child after its restart_delay, up to
// n_restart times within the current reset window. Beyond that it logs
// an ErrRestartBudgetExhausted and leaves the child dead; once the reset
// window elapses and the count is cleared, a child still found dead is
// restarted again.
func (s *Supervisor) restartProcess(name string) {
	s.mu.Lock()
	rec, ok := s.children[name]
	if !ok {
		s.mu.Unlock()
		return
	}
	if rec.RestartCount >= rec.Policy.NRestart {
		s.mu.Unlock()
		s.log.Error("restart budget exhausted",
			"process", name, "id", rec.ID,
			"error", &core.RestartBudgetExhausted{Process: name, Count: rec.RestartCount})
		return
	}
	rec.RestartCount++
	rec.LastRestart = time.Now()
	count := rec.RestartCount
	s.mu.Unlock()

	s.log.Warn("process died, restarting", "process", name, "id", rec.ID, "restart_count", count)
	time.Sleep(rec.Policy.RestartDelay)

	if err := rec.Target.Launch(); err != nil {
		s.log.Error("restart failed", "process", name, "id", rec.ID, "error", err)
	}
}

// StopProcess stops the named child's monitor and its OS process.
func (s *Supervisor) StopProcess(name string, timeout time.Duration) error {
	s.mu.Lock()
	rec, ok := s.children[name]
	if ok {
		delete(s.children, name)
	}
	s.mu.Unlock()
	if !ok {
		return &core.ConfigError{Field: "name", Reason: "process " + name + " not registered"}
	}

	if rec.stopMonitor != nil {
		close(rec.stopMonitor)
	}
	return rec.Target.Stop(timeout)
}

// Stop stops every registered child and waits for all monitor
// goroutines to finish.
func (s *Supervisor) Stop(ctx context.Context, timeout time.Duration) error {
	s.mu.RLock()
	names := make([]string, 0, len(s.children))
	for name := range s.children {
		names = append(names, name)
	}
	s.mu.RUnlock()

	var firstErr error
	for _, name := range names {
		if err := s.StopProcess(name, timeout); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	done := make(chan struct{})
	go func() {
		s.monitors.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	return firstErr
}

// Snapshot returns a point-in-time copy of the registry, for the
// operational status endpoint.
func (s *Supervisor) Snapshot() []ProcessRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ProcessRecord, 0, len(s.children))
	for _, rec := range s.children {
		out = append(out, ProcessRecord{
			ID:            rec.ID,
			Name:          rec.Name,
			Policy:        rec.Policy,
			RestartCount:  rec.RestartCount,
			LastRestart:   rec.LastRestart,
			ResetDeadline: rec.ResetDeadline,
		})
	}
	return out
}
