package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/valvectl/internal/history"
	"github.com/nerrad567/valvectl/internal/infrastructure/config"
	"github.com/nerrad567/valvectl/internal/operation"
	"github.com/nerrad567/valvectl/internal/pidfile"
	"github.com/nerrad567/valvectl/internal/relay"
)

var (
	runDryRun    bool
	runNoHistory bool
)

var runCmd = &cobra.Command{
	Use:   "run <request>",
	Short: "Run one valve request in the foreground",
	Long: `Run switches channels as described by a JSON list of records and exits
once every group has finished and all channels are reset.

The request is base64-encoded JSON, or raw JSON starting with "[".
Each record has "pin" and "state", and optionally "duration" (minutes,
default from run.default_duration_minutes) and "order" (default 0).
Records with the same order run together; groups run in ascending order.

SIGINT or SIGTERM (for example from 'valvectl stop') stops the run: active
channels are reverted, later groups are skipped, and all channels are reset.

Examples:
  valvectl run '[{"pin":17,"state":true,"duration":5,"order":1},{"pin":27,"state":true,"duration":5,"order":2}]'
  valvectl run W3sicGluIjoxNywic3RhdGUiOnRydWV9XQ==
  valvectl run --dry-run '[{"pin":17,"state":true,"duration":0.1}]'
`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Use the in-memory driver instead of real hardware")
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "Do not record the operation in the history database")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	records, err := relay.DecodeRequest(args[0])
	if err != nil {
		return err
	}
	specs, err := relay.Validate(records, cfg.Run.DefaultDurationMinutes)
	if err != nil {
		return err
	}

	if runDryRun {
		cfg.GPIO.Driver = config.DriverMemory
	}
	if runNoHistory {
		cfg.Database.Enabled = false
	}

	// Claim the PID file before touching hardware so a second run cannot
	// drive relays that the first one owns.
	if err := pidfile.Write(cfg.Run.PIDFile); err != nil {
		return err
	}
	defer func() {
		if rmErr := pidfile.Remove(cfg.Run.PIDFile); rmErr != nil {
			log.Warn("failed to remove PID file", "path", cfg.Run.PIDFile, "error", rmErr)
		}
	}()

	st, err := openStack(ctx, cfg, log, stackOptions{})
	if err != nil {
		return err
	}
	defer st.Close()

	m := operation.NewManager(ctx, operation.Options{
		Driver:    st.driver,
		Repo:      st.repo,
		Observer:  st.observer(),
		Summaries: st.summaries(),
		Logger:    log,

		CleanupTimeout: cfg.GetCleanupTimeout(),
	})
	st.listenForStop(m)

	id, err := m.Start(specs, history.SourceCLI)
	if err != nil {
		return err
	}

	// The signal context stops the run; waiting must outlive it so teardown
	// finishes before the process exits.
	result, err := m.Wait(context.WithoutCancel(ctx), id)
	if err != nil {
		return err
	}

	printResult(cmd.OutOrStdout(), result)
	if result.Err != nil {
		return fmt.Errorf("operation %s: %w", id, result.Err)
	}
	return nil
}

// printResult writes a one-line-per-group summary of a finished operation.
func printResult(w io.Writer, result operation.Result) {
	r := result.Report
	fmt.Fprintf(w, "operation %s %s in %s\n", result.OperationID, r.Outcome, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	for _, g := range r.Groups {
		fmt.Fprintf(w, "  group %d: %d channel(s) %s after %s\n", g.Order, g.Channels, g.Outcome, g.Elapsed.Round(time.Millisecond))
	}
	if r.GroupsSkipped > 0 {
		fmt.Fprintf(w, "  %d group(s) skipped\n", r.GroupsSkipped)
	}
	var hwErr *relay.HardwareError
	if errors.As(result.Err, &hwErr) {
		fmt.Fprintf(w, "  hardware error on channel %d during %s\n", hwErr.Channel, hwErr.Op)
	}
}
