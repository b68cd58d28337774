package operation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/valvectl/internal/history"
	"github.com/nerrad567/valvectl/internal/infrastructure/influxdb"
	"github.com/nerrad567/valvectl/internal/relay"
)

// finishTimeout bounds the history update written after a run ends.
const finishTimeout = 5 * time.Second

// Driver is the hardware the manager prepares and hands to the scheduler.
// Satisfied by gpio.Driver.
type Driver interface {
	relay.Driver
	Setup(ctx context.Context, channels []int) error
}

// SummaryWriter records finished operations. Satisfied by *influxdb.Client.
type SummaryWriter interface {
	WriteOperation(s influxdb.OperationSummary)
}

// Logger is the logging interface used by the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Manager. Only Driver is required.
type Options struct {
	Driver Driver

	// Repo persists operations and events (may be nil).
	Repo history.Repository

	// Observer receives every recorded event, live (may be nil).
	Observer history.Observer

	// Summaries receives one summary per finished operation (may be nil).
	Summaries SummaryWriter

	Logger         Logger
	CleanupTimeout time.Duration
}

// Result is the outcome of one finished operation.
type Result struct {
	OperationID string
	Report      relay.Report
	Err         error
}

// run is the bookkeeping for the active operation.
type run struct {
	id       string
	cancel   context.CancelFunc
	done     chan struct{}
	recorder *history.Recorder
	result   Result
}

// Manager runs at most one operation at a time.
//
// Every operation's context derives from the base context passed to
// NewManager, so cancelling it stops the active operation. Teardown still
// runs because the scheduler reverts and cleans up on every exit path.
//
// Thread Safety: all methods are safe for concurrent use.
type Manager struct {
	base      context.Context
	driver    Driver
	repo      history.Repository
	observer  history.Observer
	summaries SummaryWriter
	logger    Logger
	scheduler *relay.Scheduler

	mu     sync.Mutex
	active *run
	last   *run
}

// NewManager creates a manager whose operations derive from base.
func NewManager(base context.Context, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	m := &Manager{
		base:      base,
		driver:    opts.Driver,
		repo:      opts.Repo,
		observer:  opts.Observer,
		summaries: opts.Summaries,
		logger:    logger,
	}

	// The scheduler's sink is bound per run; it forwards to the active recorder.
	m.scheduler = relay.NewScheduler(opts.Driver, logger, relay.EventSinkFunc(m.emit))
	m.scheduler.SetCleanupTimeout(opts.CleanupTimeout)
	return m
}

// Start validates specs, prepares the hardware, and runs the operation in
// the background.
//
// Returns:
//   - string: the operation ID
//   - error: nil on success, or:
//   - relay.ErrInvalidPlan (and wrapping errors) if specs are rejected
//   - ErrBusy if an operation is already active
//   - ErrDriverSetup if the hardware could not be prepared
func (m *Manager) Start(specs []relay.ChannelSpec, source history.Source) (string, error) {
	plan, err := relay.Build(specs)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return "", fmt.Errorf("%w: %s", ErrBusy, m.active.id)
	}
	if err := m.base.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrShuttingDown, err)
	}

	channels := plan.Channels()
	if err := m.driver.Setup(m.base, channels); err != nil {
		return "", fmt.Errorf("%w: %w", ErrDriverSetup, err)
	}

	id := uuid.NewString()
	started := time.Now().UTC()

	if m.repo != nil {
		op := &history.Operation{
			ID:        id,
			Source:    source,
			Status:    history.StatusRunning,
			Request:   specs,
			Channels:  len(channels),
			Groups:    len(plan),
			StartedAt: started,
		}
		if createErr := m.repo.CreateOperation(m.base, op); createErr != nil {
			// The run matters more than its history.
			m.logger.Error("failed to create operation record", "operation_id", id, "error", createErr)
		}
	}

	ctx, cancel := context.WithCancel(m.base)
	r := &run{
		id:     id,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if m.observer != nil {
		r.recorder = history.NewRecorder(m.repo, id, m.logger, m.observer)
	} else {
		r.recorder = history.NewRecorder(m.repo, id, m.logger)
	}
	m.active = r

	m.logger.Info("operation started",
		"operation_id", id,
		"source", source,
		"groups", len(plan),
		"channels", len(channels),
	)

	go m.execute(ctx, r, plan, source, started)
	return id, nil
}

func (m *Manager) execute(ctx context.Context, r *run, plan relay.Plan, source history.Source, started time.Time) {
	defer close(r.done)
	defer r.cancel()

	report, err := m.scheduler.Run(ctx, plan)
	status := history.StatusFor(report.Outcome)

	// Every event is stored and observed before the run counts as finished.
	r.recorder.Close()

	finished := report.FinishedAt
	if finished.IsZero() {
		finished = time.Now().UTC()
	}

	if m.repo != nil {
		var errMsg string
		if err != nil {
			errMsg = err.Error()
		}
		finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
		if finishErr := m.repo.FinishOperation(finishCtx, r.id, status, report.GroupsSkipped, finished, errMsg); finishErr != nil {
			m.logger.Error("failed to finish operation record", "operation_id", r.id, "error", finishErr)
		}
		cancel()
	}

	if m.summaries != nil {
		m.summaries.WriteOperation(influxdb.OperationSummary{
			OperationID:   r.id,
			Source:        string(source),
			Status:        string(status),
			Channels:      plan.Size(),
			Groups:        len(plan),
			GroupsSkipped: report.GroupsSkipped,
			Elapsed:       finished.Sub(started),
			FinishedAt:    finished,
		})
	}

	if err != nil {
		m.logger.Error("operation finished",
			"operation_id", r.id,
			"status", status,
			"groups_skipped", report.GroupsSkipped,
			"error", err,
		)
	} else {
		m.logger.Info("operation finished",
			"operation_id", r.id,
			"status", status,
			"groups_skipped", report.GroupsSkipped,
		)
	}

	m.mu.Lock()
	r.result = Result{OperationID: r.id, Report: report, Err: err}
	if m.active == r {
		m.active = nil
	}
	m.last = r
	m.mu.Unlock()
}

// emit forwards scheduler events to the active operation's recorder.
// Only one run exists at a time, so the active run owns every event.
func (m *Manager) emit(e relay.Event) {
	m.mu.Lock()
	r := m.active
	m.mu.Unlock()

	if r != nil {
		r.recorder.Emit(e)
	}
}

// Active returns the ID of the running operation, if any.
func (m *Manager) Active() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return "", false
	}
	return m.active.id, true
}

// Stop cancels the active operation and waits until its teardown finishes
// or ctx expires.
//
// Returns:
//   - Result: the stopped operation's result
//   - error: ErrNoActiveOperation when nothing is running, or ctx.Err()
func (m *Manager) Stop(ctx context.Context) (Result, error) {
	m.mu.Lock()
	r := m.active
	m.mu.Unlock()

	if r == nil {
		return Result{}, ErrNoActiveOperation
	}

	m.logger.Info("stop requested", "operation_id", r.id)
	r.cancel()
	return m.waitFor(ctx, r)
}

// Cancel requests a stop of the active operation without waiting for its
// teardown. A non-empty id must match the active operation.
//
// Returns:
//   - string: the cancelled operation's ID
//   - error: ErrNoActiveOperation, or ErrUnknownOperation when id is not active
func (m *Manager) Cancel(id string) (string, error) {
	m.mu.Lock()
	r := m.active
	m.mu.Unlock()

	if r == nil {
		return "", ErrNoActiveOperation
	}
	if id != "" && id != r.id {
		return "", fmt.Errorf("%w: %s", ErrUnknownOperation, id)
	}

	m.logger.Info("stop requested", "operation_id", r.id)
	r.cancel()
	return r.id, nil
}

// Wait blocks until the operation with id finishes or ctx expires.
// It returns ErrUnknownOperation if id is neither active nor the most
// recently finished operation.
func (m *Manager) Wait(ctx context.Context, id string) (Result, error) {
	m.mu.Lock()
	var r *run
	switch {
	case m.active != nil && m.active.id == id:
		r = m.active
	case m.last != nil && m.last.id == id:
		r = m.last
	}
	m.mu.Unlock()

	if r == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownOperation, id)
	}
	return m.waitFor(ctx, r)
}

func (m *Manager) waitFor(ctx context.Context, r *run) (Result, error) {
	select {
	case <-r.done:
		m.mu.Lock()
		defer m.mu.Unlock()
		return r.result, nil
	case <-ctx.Done():
		return Result{OperationID: r.id}, ctx.Err()
	}
}

// Shutdown stops the active operation, if any, and waits for its teardown.
func (m *Manager) Shutdown(ctx context.Context) error {
	_, err := m.Stop(ctx)
	if errors.Is(err, ErrNoActiveOperation) {
		return nil
	}
	return err
}
