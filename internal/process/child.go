// Package process implements the supervisor-side handle for a spawned
// child OS process (producer, worker or sender) and the self-re-exec
// dispatch a ripflow binary uses to become one of those roles.
package process

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/tevino/abool"

	"github.com/jalas-labs/ripflow/internal/core"
)

// RoleEnvVar and RunIDEnvVar are how a spawned process learns which role
// to run and which pipeline run it belongs to. A Go process cannot
// inherit live interface values across an os/exec boundary the way
// Python's multiprocessing.Process inherits a forked address space, so
// every capability a child needs (source/sink/analyzer name and config)
// is reconstructed locally from ConfigPathEnvVar and IndexEnvVar instead
// of being passed as an in-memory value.
const (
	RoleEnvVar       = "RIPFLOW_ROLE"
	RunIDEnvVar      = "RIPFLOW_RUN_ID"
	ConfigPathEnvVar = "RIPFLOW_CONFIG_PATH"
	IndexEnvVar      = "RIPFLOW_INDEX"
	SocketDirEnvVar  = "RIPFLOW_SOCKET_DIR"
)

// Child is the supervisor's handle to one spawned OS process. It never
// holds the role's business logic directly — only enough to launch,
// observe and stop the process that runs it.
type Child struct {
	Role       core.Role
	Index      int
	ConfigPath string
	SocketDir  string
	RunID      string
	LogWriter  *os.File

	mu    sync.Mutex
	cmd   *exec.Cmd
	alive *abool.AtomicBool
}

// NewChild creates a not-yet-launched child handle. Launch re-invokes
// this binary's own path (os.Executable) with the RIPFLOW_* role
// environment variables set — the self-re-exec
// pattern the reference CLI uses to background itself, generalized here
// to let the same binary also become a producer, worker or sender.
func NewChild(role core.Role, index int, configPath, socketDir, runID string, logWriter *os.File) *Child {
	return &Child{
		Role:       role,
		Index:      index,
		ConfigPath: configPath,
		SocketDir:  socketDir,
		RunID:      runID,
		LogWriter:  logWriter,
		alive:      abool.New(),
	}
}

// Launch is idempotent: if the child is already alive, it does nothing.
// Otherwise it re-execs this binary in a fresh process with
// RIPFLOW_ROLE/RIPFLOW_INDEX/RIPFLOW_RUN_ID/RIPFLOW_CONFIG_PATH/
// RIPFLOW_SOCKET_DIR set, in its own session so the parent's signals
// don't reach it directly.
func (c *Child) Launch() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.alive.IsSet() {
		return nil
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("process: resolve own executable: %w", err)
	}

	cmd := exec.Command(execPath)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("%s=%s", RoleEnvVar, c.Role),
		fmt.Sprintf("%s=%d", IndexEnvVar, c.Index),
		fmt.Sprintf("%s=%s", RunIDEnvVar, c.RunID),
		fmt.Sprintf("%s=%s", ConfigPathEnvVar, c.ConfigPath),
		fmt.Sprintf("%s=%s", SocketDirEnvVar, c.SocketDir),
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if c.LogWriter != nil {
		cmd.Stdout = c.LogWriter
		cmd.Stderr = c.LogWriter
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("process: start %s[%d]: %w", c.Role, c.Index, err)
	}

	c.cmd = cmd
	c.alive.Set()

	go c.waitAndMarkDead()
	return nil
}

func (c *Child) waitAndMarkDead() {
	c.mu.Lock()
	cmd := c.cmd
	c.mu.Unlock()
	if cmd == nil {
		return
	}
	cmd.Wait()
	c.alive.UnSet()
}

// Stop signals the child to terminate and waits up to timeout for it to
// exit, escalating to SIGKILL if it does not.
func (c *Child) Stop(timeout time.Duration) error {
	c.mu.Lock()
	cmd := c.cmd
	c.mu.Unlock()

	if cmd == nil || !c.alive.IsSet() {
		return nil
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("process: signal %s[%d]: %w", c.Role, c.Index, err)
	}

	deadline := time.After(timeout)
	for {
		if !c.alive.IsSet() {
			return nil
		}
		select {
		case <-deadline:
			_ = cmd.Process.Kill()
			return nil
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// IsAlive reports whether the child's OS process is currently running.
func (c *Child) IsAlive() bool {
	return c.alive.IsSet()
}
