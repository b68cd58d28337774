package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/valvectl/internal/pidfile"
)

var (
	stopWait    bool
	stopTimeout time.Duration
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running 'valvectl run'",
	Long: `Stop reads the PID file written by 'valvectl run', sends the process
SIGTERM and removes the PID file. The running process reverts its active
channels and resets all channels before it exits.`,
	Args: cobra.NoArgs,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().BoolVarP(&stopWait, "wait", "w", false, "Wait for the process to exit")
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", 30*time.Second, "How long --wait waits")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	pid, err := pidfile.Stop(cfg.Run.PIDFile)
	if err != nil {
		return fmt.Errorf("failed to stop process: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Process %d terminated.\n", pid)

	if !stopWait {
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), stopTimeout)
	defer cancel()
	if err := pidfile.WaitExit(ctx, pid); err != nil {
		return fmt.Errorf("waiting for process %d: %w", pid, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Process %d exited.\n", pid)
	return nil
}
