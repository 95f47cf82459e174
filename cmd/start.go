package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/spf13/cobra"
)

var foreground bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the pipeline",
	Long: `Start the ripflow pipeline: a producer, the configured worker
pool, and one sender per analyzer output, supervised with a restart
policy.

By default the process detaches into the background (re-exec'd with
--foreground) and prints its PID; pass --foreground to run attached,
which is what systemd and other process supervisors should use.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if foreground {
			return runForeground(configFile)
		}
		return startBackground()
	},
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "run attached instead of detaching into the background")
	rootCmd.AddCommand(startCmd)
}

// startBackground re-execs this same binary with --foreground, detached
// from the current session, and reports its PID.
func startBackground() error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable path: %w", err)
	}

	child := exec.Command(execPath, "start", "--foreground", "--config", configFile, "--socket", socketPath)
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	child.Stdout = nil
	child.Stderr = nil
	child.Stdin = nil

	if err := child.Start(); err != nil {
		return fmt.Errorf("start background process: %w", err)
	}

	fmt.Printf("ripflow started in background, pid=%d\n", child.Process.Pid)
	return nil
}
