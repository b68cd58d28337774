package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultCleanupTimeout bounds the final hardware reset after a run.
const DefaultCleanupTimeout = 5 * time.Second

// Scheduler executes plans against a Driver.
//
// Groups run strictly in ascending order. Every channel in a group runs in
// its own goroutine. A channel is always returned to LevelInactive before its
// goroutine exits, and Driver.Cleanup runs exactly once per Run.
//
// Thread Safety: a Scheduler holds no per-run state, but concurrent Runs
// sharing one Driver will contend for the same hardware. Callers serialise
// runs (see operation.Manager).
type Scheduler struct {
	driver         Driver
	logger         Logger
	sink           EventSink
	cleanupTimeout time.Duration
}

// NewScheduler creates a scheduler.
//
// Parameters:
//   - driver: Output hardware
//   - logger: Logger instance (may be nil)
//   - sink: Receives lifecycle events (may be nil)
func NewScheduler(driver Driver, logger Logger, sink EventSink) *Scheduler {
	if logger == nil {
		logger = noopLogger{}
	}
	if sink == nil {
		sink = noopSink{}
	}
	return &Scheduler{
		driver:         driver,
		logger:         logger,
		sink:           sink,
		cleanupTimeout: DefaultCleanupTimeout,
	}
}

// SetCleanupTimeout overrides DefaultCleanupTimeout. Non-positive values are ignored.
func (s *Scheduler) SetCleanupTimeout(d time.Duration) {
	if d > 0 {
		s.cleanupTimeout = d
	}
}

// Run executes plan until it completes, ctx is cancelled, or a hardware
// write fails.
//
// Cancelling ctx is the stop signal. It is not an error: the running group is
// reverted, later groups never start, and Run returns a Report with
// OutcomeStopped and a nil error.
//
// Returns:
//   - Report: per-group outcomes and timings
//   - error: nil on completion or stop, or:
//   - ErrInvalidPlan (and wrapping errors) if plan is rejected; no hardware is touched
//   - a joined error matching ErrHardwareWrite if any driver call failed
func (s *Scheduler) Run(ctx context.Context, plan Plan) (report Report, err error) {
	if err := plan.Validate(); err != nil {
		return Report{}, err
	}

	report.StartedAt = time.Now().UTC()
	channels := plan.Channels()

	s.logger.Info("run started",
		"groups", len(plan),
		"channels", plan.Size(),
	)

	// Teardown runs on every exit path, including a panic in the loop below.
	defer func() {
		if cleanupErr := s.cleanup(ctx, channels); cleanupErr != nil {
			err = errors.Join(err, cleanupErr)
		}
		report.FinishedAt = time.Now().UTC()
	}()

	report.Outcome = OutcomeCompleted
	for i, group := range plan {
		if ctx.Err() != nil {
			report.Outcome = OutcomeStopped
			report.GroupsSkipped = len(plan) - i
			break
		}

		groupReport, groupErr := s.runGroup(ctx, group)
		report.Groups = append(report.Groups, groupReport)

		if groupReport.Outcome != OutcomeCompleted {
			report.Outcome = groupReport.Outcome
			report.GroupsSkipped = len(plan) - i - 1
			err = groupErr
			break
		}
	}

	if report.GroupsSkipped > 0 {
		s.logger.Warn("remaining groups skipped",
			"skipped", report.GroupsSkipped,
			"outcome", report.Outcome,
		)
	}
	return report, err
}

// runGroup starts one goroutine per channel and waits for all of them,
// including their reverts, before returning.
//
// A hardware error in any channel cancels the rest of the group.
func (s *Scheduler) runGroup(ctx context.Context, group Group) (GroupReport, error) {
	started := time.Now()
	s.logger.Info("group started", "group", group.Order, "channels", len(group.Channels))
	s.sink.Emit(Event{Kind: EventGroupStarted, Time: started.UTC(), Group: group.Order})

	groupCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)

	for _, spec := range group.Channels {
		wg.Add(1)
		go func(spec ChannelSpec) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("relay: channel %d panicked: %v", spec.Channel, r))
					mu.Unlock()
					cancel()
				}
			}()

			if err := s.runChannel(groupCtx, group.Order, spec); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				cancel()
			}
		}(spec)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Info("stop requested, reverting group", "group", group.Order)
		cancel()
		<-done
	}

	report := GroupReport{
		Order:    group.Order,
		Channels: len(group.Channels),
		Elapsed:  time.Since(started),
	}

	var err error
	switch {
	case len(errs) > 0:
		report.Outcome = OutcomeFailed
		err = errors.Join(errs...)
	case ctx.Err() != nil:
		report.Outcome = OutcomeStopped
	default:
		report.Outcome = OutcomeCompleted
	}

	finished := Event{
		Kind:    EventGroupFinished,
		Time:    time.Now().UTC(),
		Group:   group.Order,
		Outcome: report.Outcome,
	}
	if err != nil {
		finished.Err = err.Error()
		s.logger.Error("group finished",
			"group", group.Order,
			"outcome", report.Outcome,
			"elapsed", report.Elapsed.Round(time.Millisecond),
			"error", err,
		)
	} else {
		s.logger.Info("group finished",
			"group", group.Order,
			"outcome", report.Outcome,
			"elapsed", report.Elapsed.Round(time.Millisecond),
		)
	}
	s.sink.Emit(finished)

	return report, err
}

// runChannel drives one channel to its target level, holds it, and reverts it.
// The revert is deferred so it runs on every exit path, with a context that
// ignores cancellation.
func (s *Scheduler) runChannel(ctx context.Context, group int, spec ChannelSpec) (err error) {
	level := LevelFor(spec.TargetActive)
	activatedAt := time.Now()
	cancelled := false

	defer func() {
		revertErr := s.driver.Set(context.WithoutCancel(ctx), spec.Channel, LevelInactive)

		ev := Event{
			Kind:         EventChannelReverted,
			Time:         time.Now().UTC(),
			Group:        group,
			Channel:      spec.Channel,
			TargetActive: spec.TargetActive,
			Duration:     spec.Duration,
			Held:         time.Since(activatedAt),
			Cancelled:    cancelled,
		}

		if revertErr != nil {
			hwErr := &HardwareError{Channel: spec.Channel, Op: OpRevert, Err: revertErr}
			err = errors.Join(err, hwErr)
			ev.Err = hwErr.Error()
			s.logger.Error("channel revert failed",
				"group", group,
				"channel", spec.Channel,
				"error", revertErr,
			)
		} else {
			s.logger.Info("channel reverted",
				"group", group,
				"channel", spec.Channel,
				"held", ev.Held.Round(time.Millisecond),
				"cancelled", cancelled,
			)
		}
		s.sink.Emit(ev)
	}()

	if setErr := s.driver.Set(ctx, spec.Channel, level); setErr != nil {
		s.logger.Error("channel activation failed",
			"group", group,
			"channel", spec.Channel,
			"level", level,
			"error", setErr,
		)
		return &HardwareError{Channel: spec.Channel, Op: OpActivate, Err: setErr}
	}

	activatedAt = time.Now()
	deadline := activatedAt.Add(spec.Duration)
	s.logger.Info("channel activated",
		"group", group,
		"channel", spec.Channel,
		"level", level,
		"duration", spec.Duration,
	)
	s.sink.Emit(Event{
		Kind:         EventChannelActivated,
		Time:         activatedAt.UTC(),
		Group:        group,
		Channel:      spec.Channel,
		TargetActive: spec.TargetActive,
		Duration:     spec.Duration,
	})

	// The hold is measured from activation, not from when the event was taken.
	remaining := time.Duration(0)
	if spec.Duration > 0 {
		remaining = max(time.Until(deadline), time.Nanosecond)
	}
	cancelled = !hold(ctx, remaining)
	return nil
}

// hold waits for d or for ctx to be cancelled, whichever comes first.
// Returns true if the full duration elapsed.
func hold(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// cleanup resets every channel the plan touched. It runs with its own
// deadline so a stopped run still gets a full reset.
func (s *Scheduler) cleanup(ctx context.Context, channels []int) error {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cleanupTimeout)
	defer cancel()

	ev := Event{Kind: EventCleanup, Time: time.Now().UTC(), Outcome: OutcomeCompleted}

	if err := s.driver.Cleanup(cleanupCtx, channels); err != nil {
		hwErr := &HardwareError{Channel: -1, Op: OpCleanup, Err: err}
		ev.Outcome = OutcomeFailed
		ev.Err = hwErr.Error()
		s.logger.Error("hardware cleanup failed", "channels", channels, "error", err)
		s.sink.Emit(ev)
		return hwErr
	}

	s.logger.Info("hardware cleaned up", "channels", channels)
	s.sink.Emit(ev)
	return nil
}
