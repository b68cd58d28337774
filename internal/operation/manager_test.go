package operation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/valvectl/internal/gpio"
	"github.com/nerrad567/valvectl/internal/history"
	"github.com/nerrad567/valvectl/internal/infrastructure/config"
	"github.com/nerrad567/valvectl/internal/infrastructure/database"
	"github.com/nerrad567/valvectl/internal/infrastructure/influxdb"
	"github.com/nerrad567/valvectl/internal/relay"
	"github.com/nerrad567/valvectl/migrations"
)

func setupRepo(t *testing.T) history.Repository {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Path: ":memory:", BusyTimeout: 1})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return history.NewSQLiteRepository(db.DB)
}

type mockSummaries struct {
	mu        sync.Mutex
	summaries []influxdb.OperationSummary
}

func (m *mockSummaries) WriteOperation(s influxdb.OperationSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, s)
}

// failingSetup wraps a driver whose Setup always fails.
type failingSetup struct {
	*gpio.MemoryDriver
}

func (failingSetup) Setup(context.Context, []int) error { return errors.New("/dev/gpiomem: permission denied") }

func shortSpecs() []relay.ChannelSpec {
	return []relay.ChannelSpec{
		{Channel: 17, TargetActive: true, Duration: 30 * time.Millisecond, Order: 0},
		{Channel: 18, TargetActive: true, Duration: 30 * time.Millisecond, Order: 1},
	}
}

func waitResult(t *testing.T, m *Manager, id string) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := m.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	return result
}

func TestManager_RunToCompletion(t *testing.T) {
	repo := setupRepo(t)
	drv := gpio.NewMemoryDriver(gpio.Polarity{ActiveLow: true})
	summaries := &mockSummaries{}

	var (
		mu   sync.Mutex
		seen []history.EventRecord
	)
	m := NewManager(context.Background(), Options{
		Driver: drv,
		Repo:   repo,
		Observer: history.ObserverFunc(func(rec history.EventRecord) {
			mu.Lock()
			seen = append(seen, rec)
			mu.Unlock()
		}),
		Summaries: summaries,
	})

	id, err := m.Start(shortSpecs(), history.SourceAPI)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if active, ok := m.Active(); !ok || active != id {
		t.Errorf("Active() = %q, %v; want %q, true", active, ok, id)
	}

	result := waitResult(t, m, id)
	if result.Err != nil {
		t.Fatalf("result.Err = %v", result.Err)
	}
	if result.Report.Outcome != relay.OutcomeCompleted {
		t.Errorf("Outcome = %q, want completed", result.Report.Outcome)
	}
	if _, ok := m.Active(); ok {
		t.Error("Active() still reports an operation after completion")
	}

	op, err := repo.GetOperation(context.Background(), id)
	if err != nil {
		t.Fatalf("GetOperation() error = %v", err)
	}
	if op.Status != history.StatusCompleted || op.Source != history.SourceAPI {
		t.Errorf("stored operation = %+v", op)
	}
	if op.FinishedAt == nil {
		t.Error("FinishedAt not recorded")
	}

	events, err := repo.ListEvents(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	// 2 groups x (started + activated + reverted + finished) + cleanup
	if len(events) != 9 {
		t.Errorf("stored events = %d, want 9", len(events))
	}
	if last := events[len(events)-1]; last.Kind != relay.EventCleanup {
		t.Errorf("last event = %q, want cleanup", last.Kind)
	}

	mu.Lock()
	if len(seen) != len(events) {
		t.Errorf("observer saw %d events, want %d", len(seen), len(events))
	}
	mu.Unlock()

	if len(summaries.summaries) != 1 || summaries.summaries[0].Status != "completed" {
		t.Errorf("summaries = %+v", summaries.summaries)
	}
	if drv.Level(17) != relay.LevelInactive || drv.Level(18) != relay.LevelInactive {
		t.Error("channels not back at the safe level")
	}
}

func TestManager_Busy(t *testing.T) {
	drv := gpio.NewMemoryDriver(gpio.Polarity{ActiveLow: true})
	m := NewManager(context.Background(), Options{Driver: drv})

	long := []relay.ChannelSpec{{Channel: 5, TargetActive: true, Duration: time.Minute}}
	id, err := m.Start(long, history.SourceAPI)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	_, err = m.Start(shortSpecs(), history.SourceAPI)
	if !errors.Is(err, ErrBusy) {
		t.Errorf("second Start() error = %v, want ErrBusy", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := m.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if result.OperationID != id || result.Report.Outcome != relay.OutcomeStopped {
		t.Errorf("Stop() result = %+v", result)
	}
	if result.Err != nil {
		t.Errorf("stopped run returned error %v", result.Err)
	}
	if drv.Cleanups() != 1 {
		t.Errorf("Cleanups() = %d, want 1", drv.Cleanups())
	}

	next, err := m.Start(shortSpecs(), history.SourceAPI)
	if err != nil {
		t.Fatalf("Start() after stop error = %v", err)
	}
	waitResult(t, m, next)
}

func TestManager_StopWithoutActive(t *testing.T) {
	m := NewManager(context.Background(), Options{Driver: gpio.NewMemoryDriver(gpio.Polarity{})})

	_, err := m.Stop(context.Background())
	if !errors.Is(err, ErrNoActiveOperation) {
		t.Errorf("Stop() error = %v, want ErrNoActiveOperation", err)
	}
	if err := m.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v, want nil", err)
	}
}

func TestManager_StartErrors(t *testing.T) {
	tests := []struct {
		name    string
		driver  Driver
		specs   []relay.ChannelSpec
		wantErr error
	}{
		{
			name:    "empty",
			driver:  gpio.NewMemoryDriver(gpio.Polarity{}),
			wantErr: relay.ErrInvalidPlan,
		},
		{
			name:   "duplicate channel",
			driver: gpio.NewMemoryDriver(gpio.Polarity{}),
			specs: []relay.ChannelSpec{
				{Channel: 3, Duration: time.Millisecond},
				{Channel: 3, Duration: time.Millisecond},
			},
			wantErr: relay.ErrDuplicateChannel,
		},
		{
			// Rejected before Setup: the failing driver is never reached.
			name:    "negative duration",
			driver:  failingSetup{gpio.NewMemoryDriver(gpio.Polarity{})},
			specs:   []relay.ChannelSpec{{Channel: 3, Duration: -time.Minute}},
			wantErr: relay.ErrInvalidPlan,
		},
		{
			name:    "setup failure",
			driver:  failingSetup{gpio.NewMemoryDriver(gpio.Polarity{})},
			specs:   shortSpecs(),
			wantErr: ErrDriverSetup,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(context.Background(), Options{Driver: tt.driver})
			_, err := m.Start(tt.specs, history.SourceCLI)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Start() error = %v, want %v", err, tt.wantErr)
			}
			if _, ok := m.Active(); ok {
				t.Error("failed Start() left an active operation")
			}
		})
	}
}

func TestManager_BaseContextCancelStopsRun(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	drv := gpio.NewMemoryDriver(gpio.Polarity{ActiveLow: true})
	m := NewManager(base, Options{Driver: drv})

	id, err := m.Start([]relay.ChannelSpec{
		{Channel: 22, TargetActive: true, Duration: time.Minute, Order: 0},
		{Channel: 23, TargetActive: true, Duration: time.Minute, Order: 1},
	}, history.SourceCLI)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	cancel()

	result := waitResult(t, m, id)
	if result.Report.Outcome != relay.OutcomeStopped {
		t.Errorf("Outcome = %q, want stopped", result.Report.Outcome)
	}
	if result.Report.GroupsSkipped != 1 {
		t.Errorf("GroupsSkipped = %d, want 1", result.Report.GroupsSkipped)
	}
	if drv.Level(22) != relay.LevelInactive {
		t.Error("channel 22 not reverted")
	}

	if _, err := m.Start(shortSpecs(), history.SourceCLI); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("Start() after cancel error = %v, want ErrShuttingDown", err)
	}
}

func TestManager_FailedRunRecorded(t *testing.T) {
	repo := setupRepo(t)
	drv := gpio.NewMemoryDriver(gpio.Polarity{ActiveLow: true})
	drv.FailActivation(18, nil)
	m := NewManager(context.Background(), Options{Driver: drv, Repo: repo})

	id, err := m.Start(shortSpecs(), history.SourceCLI)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	result := waitResult(t, m, id)
	if !errors.Is(result.Err, relay.ErrHardwareWrite) {
		t.Errorf("result.Err = %v, want ErrHardwareWrite", result.Err)
	}

	op, err := repo.GetOperation(context.Background(), id)
	if err != nil {
		t.Fatalf("GetOperation() error = %v", err)
	}
	if op.Status != history.StatusFailed {
		t.Errorf("Status = %q, want failed", op.Status)
	}
	if op.Error == nil || *op.Error == "" {
		t.Error("error text not recorded")
	}
}

func TestManager_WaitUnknown(t *testing.T) {
	m := NewManager(context.Background(), Options{Driver: gpio.NewMemoryDriver(gpio.Polarity{})})

	_, err := m.Wait(context.Background(), "nope")
	if !errors.Is(err, ErrUnknownOperation) {
		t.Errorf("Wait() error = %v, want ErrUnknownOperation", err)
	}
}

func TestManager_SlowObserverDoesNotDelayStop(t *testing.T) {
	drv := gpio.NewMemoryDriver(gpio.Polarity{ActiveLow: true})
	slow := history.ObserverFunc(func(rec history.EventRecord) {
		if rec.Kind == relay.EventChannelActivated {
			time.Sleep(300 * time.Millisecond)
		}
	})
	m := NewManager(context.Background(), Options{Driver: drv, Observer: slow})

	specs := []relay.ChannelSpec{
		{Channel: 1, TargetActive: true, Duration: time.Hour},
		{Channel: 2, TargetActive: true, Duration: time.Hour},
		{Channel: 3, TargetActive: true, Duration: time.Hour},
		{Channel: 4, TargetActive: true, Duration: time.Hour},
	}
	if _, err := m.Start(specs, history.SourceCLI); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	stopAt := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result, err := m.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if result.Report.Outcome != relay.OutcomeStopped {
		t.Errorf("outcome = %s, want stopped", result.Report.Outcome)
	}

	reverted := 0
	for _, w := range drv.Writes() {
		if w.Level != relay.LevelInactive {
			continue
		}
		reverted++
		if lag := w.At.Sub(stopAt); lag > 100*time.Millisecond {
			t.Errorf("channel %d reverted %v after stop", w.Channel, lag)
		}
	}
	if reverted != len(specs) {
		t.Errorf("reverted %d channels, want %d", reverted, len(specs))
	}
}
