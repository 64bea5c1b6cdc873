package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/markrag/internal/daemon"
	"github.com/Aman-CERP/markrag/internal/output"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var background bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the indexing daemon",
		Long: `Run the daemon that owns the index. It indexes on startup, watches the
bookmark file, re-indexes periodically and answers CLI requests over a
Unix socket.

Runs in the foreground by default. Use --background to detach.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if background {
				return runServeBackground(cmd, opts)
			}
			return runServe(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&background, "background", "b", false, "Start the daemon detached and return")
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts *globalOptions) error {
	cfg, logger, cleanup, err := opts.setup(false)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := preflightOnce(cmd, cfg); err != nil {
		return err
	}

	d, err := daemon.New(cfg, logger)
	if err != nil {
		return err
	}

	out := output.New(cmd.ErrOrStderr())
	go func() {
		select {
		case <-d.Ready():
			out.Successf("Daemon listening on %s", d.Config().SocketPath)
			out.Status("", "Logs: "+logPath())
			out.Status("", "Press Ctrl+C to stop")
		case <-ctx.Done():
		}
	}()

	return d.Run(ctx)
}

func runServeBackground(cmd *cobra.Command, opts *globalOptions) error {
	out := output.New(cmd.OutOrStdout())
	cfg, _, cleanup, err := opts.setup(false)
	if err != nil {
		return err
	}
	cleanup()

	client := daemon.NewClient(daemon.ConfigFrom(cfg.Daemon))
	if client.IsRunning() {
		out.Status("", "Daemon is already running")
		return nil
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	args := []string{"serve"}
	if opts.configPath != "" {
		args = append(args, "--config", opts.configPath)
	}
	bg := exec.Command(execPath, args...)
	bg.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := bg.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Reap the child and notice early exits.
	done := make(chan error, 1)
	go func() { done <- bg.Wait() }()

	for i := 0; i < 50; i++ {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("daemon exited during startup: %w (see %s)", err, logPath())
			}
			return fmt.Errorf("daemon exited during startup (see %s)", logPath())
		case <-time.After(100 * time.Millisecond):
		}
		if client.IsRunning() {
			out.Successf("Daemon started (pid: %d)", bg.Process.Pid)
			return nil
		}
	}
	return fmt.Errorf("daemon did not start within 5s (see %s)", logPath())
}

func newStopCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, cleanup, err := opts.setup(false)
			if err != nil {
				return err
			}
			defer cleanup()
			return runStop(cmd.Context(), cmd, daemon.ConfigFrom(cfg.Daemon))
		},
	}
}

// runStop asks the daemon to shut down over the socket and falls back to
// SIGTERM when the socket does not answer.
func runStop(ctx context.Context, cmd *cobra.Command, cfg daemon.Config) error {
	out := output.New(cmd.OutOrStdout())
	client := daemon.NewClient(cfg)
	pidFile := daemon.NewPIDFile(cfg.PIDPath)

	if client.IsRunning() {
		if err := client.Shutdown(ctx); err != nil {
			return err
		}
	} else if pidFile.IsRunning() {
		if err := pidFile.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("failed to signal daemon: %w", err)
		}
	} else {
		out.Status("", "Daemon is not running")
		return nil
	}

	deadline := time.Now().Add(cfg.ShutdownGracePeriod + 2*time.Second)
	for time.Now().Before(deadline) {
		if !client.IsRunning() && !pidFile.IsRunning() {
			out.Success("Daemon stopped")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return fmt.Errorf("daemon did not stop within %s", cfg.ShutdownGracePeriod+2*time.Second)
}
