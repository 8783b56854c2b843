package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/trellis/internal/daemon"
)

// startWait bounds how long a background start waits for the PID file.
const startWait = 10 * time.Second

func (a *app) daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Keep the index current as files change",
	}
	cmd.AddCommand(a.daemonStartCmd(), a.daemonStopCmd(), a.daemonStatusCmd(), a.daemonRestartCmd())
	return cmd
}

func (a *app) daemonStartCmd() *cobra.Command {
	var background, rebuild bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon for the workspace",
		Long:  "Builds the index if needed, then watches the workspace and re-indexes changed files and their dependents. Runs in the foreground unless --background is set.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if background {
				return a.spawnDaemon(cmd, rebuild)
			}
			return daemon.Run(cmd.Context(), daemon.Options{
				Root:    a.root,
				DB:      a.db,
				Config:  a.cfg,
				Rebuild: rebuild,
				Logger:  a.logger,
			})
		},
	}
	cmd.Flags().BoolVarP(&background, "background", "b", false, "detach and log to .trellis/daemon.log")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "discard the existing index first")
	return cmd
}

// spawnDaemon re-executes this binary as a foreground daemon detached from
// the terminal and waits for it to write its PID file.
func (a *app) spawnDaemon(cmd *cobra.Command, rebuild bool) error {
	if st, err := daemon.GetStatus(a.root, a.db); err == nil && st.Running {
		return fmt.Errorf("%w (pid %d)", daemon.ErrDaemonRunning, st.PID)
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable: %w", err)
	}
	args := []string{"daemon", "start", "--root", a.root, "--db", a.db, "--log-level", a.cfg.LogLevel}
	if a.configFile != "" {
		args = append(args, "--config", a.configFile)
	}
	if rebuild {
		args = append(args, "--rebuild")
	}
	logPath := daemon.LogPath(a.root)
	pid, err := daemon.Spawn(exe, args, logPath)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(startWait)
	for time.Now().Before(deadline) {
		if pf, err := daemon.ReadPID(a.root); err == nil && pf != nil && pf.PID == pid {
			fmt.Fprintf(cmd.ErrOrStderr(), "Daemon started (pid %d), logging to %s\n", pid, logPath)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon (pid %d) did not start within %s; see %s", pid, startWait, logPath)
}

func (a *app) daemonStopCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon for the workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := daemon.Stop(a.root, force, daemon.StopTimeout)
			if errors.Is(err, daemon.ErrDaemonNotRunning) {
				fmt.Fprintln(cmd.ErrOrStderr(), "No daemon running")
				return errNotFound
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "Daemon stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "kill instead of asking the daemon to exit")
	return cmd
}

func (a *app) daemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a daemon is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := daemon.GetStatus(a.root, a.db)
			if err != nil {
				return err
			}
			if err := outputStatus(cmd.OutOrStdout(), a.format, st); err != nil {
				return err
			}
			if !st.Running {
				return errNotFound
			}
			return nil
		},
	}
}

func (a *app) daemonRestartCmd() *cobra.Command {
	var rebuild bool
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Stop the daemon if running and start it in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := daemon.Stop(a.root, false, daemon.StopTimeout)
			if err != nil && !errors.Is(err, daemon.ErrDaemonNotRunning) {
				return err
			}
			return a.spawnDaemon(cmd, rebuild)
		},
	}
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "discard the existing index first")
	return cmd
}
