package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/valvectl/internal/infrastructure/config"
	"github.com/nerrad567/valvectl/internal/infrastructure/database"
	"github.com/nerrad567/valvectl/internal/relay"
	"github.com/nerrad567/valvectl/migrations"
)

// setupTestRepo opens an in-memory database with the full schema applied.
func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Path: ":memory:", BusyTimeout: 1})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func testOperation(id string, startedAt time.Time) *Operation {
	return &Operation{
		ID:     id,
		Source: SourceCLI,
		Status: StatusRunning,
		Request: []relay.ChannelSpec{
			{Channel: 17, TargetActive: true, Duration: 600 * time.Millisecond, Order: 1},
			{Channel: 18, TargetActive: false, Duration: 0, Order: 1},
		},
		Channels:  2,
		Groups:    1,
		StartedAt: startedAt,
	}
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 6, 30, 0, 123456789, time.UTC)

	if err := repo.CreateOperation(ctx, testOperation("op-1", started)); err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}

	got, err := repo.GetOperation(ctx, "op-1")
	if err != nil {
		t.Fatalf("GetOperation() error = %v", err)
	}

	if got.Source != SourceCLI {
		t.Errorf("Source = %q, want %q", got.Source, SourceCLI)
	}
	if got.Status != StatusRunning {
		t.Errorf("Status = %q, want %q", got.Status, StatusRunning)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.FinishedAt != nil {
		t.Errorf("FinishedAt = %v, want nil", got.FinishedAt)
	}
	if got.Error != nil {
		t.Errorf("Error = %q, want nil", *got.Error)
	}
	if len(got.Request) != 2 {
		t.Fatalf("len(Request) = %d, want 2", len(got.Request))
	}
	if got.Request[0].Channel != 17 || got.Request[0].Duration != 600*time.Millisecond {
		t.Errorf("Request[0] = %+v", got.Request[0])
	}
	if got.Channels != 2 || got.Groups != 1 {
		t.Errorf("Channels/Groups = %d/%d, want 2/1", got.Channels, got.Groups)
	}
}

func TestSQLiteRepository_CreateDuplicate(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.CreateOperation(ctx, testOperation("op-1", time.Now())); err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}
	err := repo.CreateOperation(ctx, testOperation("op-1", time.Now()))
	if !errors.Is(err, ErrOperationExists) {
		t.Errorf("CreateOperation() duplicate error = %v, want ErrOperationExists", err)
	}
}

func TestSQLiteRepository_GetNotFound(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.GetOperation(context.Background(), "missing")
	if !errors.Is(err, ErrOperationNotFound) {
		t.Errorf("GetOperation() error = %v, want ErrOperationNotFound", err)
	}
}

func TestSQLiteRepository_FinishOperation(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	started := time.Now().UTC()

	if err := repo.CreateOperation(ctx, testOperation("op-1", started)); err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}

	tests := []struct {
		name    string
		id      string
		status  Status
		errMsg  string
		wantErr error
	}{
		{name: "stopped without error", id: "op-1", status: StatusStopped},
		{name: "failed with error", id: "op-1", status: StatusFailed, errMsg: "relay: hardware write failed"},
		{name: "unknown id", id: "nope", status: StatusCompleted, wantErr: ErrOperationNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			finished := started.Add(time.Second)
			err := repo.FinishOperation(ctx, tt.id, tt.status, 2, finished, tt.errMsg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("FinishOperation() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FinishOperation() error = %v", err)
			}

			got, err := repo.GetOperation(ctx, tt.id)
			if err != nil {
				t.Fatalf("GetOperation() error = %v", err)
			}
			if got.Status != tt.status {
				t.Errorf("Status = %q, want %q", got.Status, tt.status)
			}
			if got.GroupsSkipped != 2 {
				t.Errorf("GroupsSkipped = %d, want 2", got.GroupsSkipped)
			}
			if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
				t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, finished)
			}
			switch {
			case tt.errMsg == "" && got.Error != nil:
				t.Errorf("Error = %q, want nil", *got.Error)
			case tt.errMsg != "" && (got.Error == nil || *got.Error != tt.errMsg):
				t.Errorf("Error = %v, want %q", got.Error, tt.errMsg)
			}
		})
	}
}

func TestSQLiteRepository_ListOperations(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := repo.CreateOperation(ctx, testOperation(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("CreateOperation(%s) error = %v", id, err)
		}
	}

	ops, err := repo.ListOperations(ctx, 2)
	if err != nil {
		t.Fatalf("ListOperations() error = %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("len(ops) = %d, want 2", len(ops))
	}
	if ops[0].ID != "c" || ops[1].ID != "b" {
		t.Errorf("order = [%s %s], want [c b]", ops[0].ID, ops[1].ID)
	}

	all, err := repo.ListOperations(ctx, 0)
	if err != nil {
		t.Fatalf("ListOperations(0) error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len(all) = %d, want 3", len(all))
	}
}

func TestSQLiteRepository_Events(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.CreateOperation(ctx, testOperation("op-1", now)); err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}

	events := []relay.Event{
		{Kind: relay.EventGroupStarted, Time: now, Group: 1},
		{Kind: relay.EventChannelActivated, Time: now, Group: 1, Channel: 0, TargetActive: true, Duration: 1500 * time.Millisecond},
		{Kind: relay.EventChannelReverted, Time: now, Group: 1, Channel: 0, TargetActive: true, Duration: 1500 * time.Millisecond, Held: 700 * time.Millisecond, Cancelled: true},
		{Kind: relay.EventGroupFinished, Time: now, Group: 1, Outcome: relay.OutcomeStopped},
		{Kind: relay.EventCleanup, Time: now, Outcome: relay.OutcomeFailed, Err: "relay: cleanup: boom"},
	}
	for i, e := range events {
		if err := repo.AppendEvent(ctx, EventRecord{OperationID: "op-1", Seq: i + 1, Event: e}); err != nil {
			t.Fatalf("AppendEvent(%d) error = %v", i+1, err)
		}
	}

	got, err := repo.ListEvents(ctx, "op-1", 0)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("len(events) = %d, want %d", len(got), len(events))
	}
	for i, rec := range got {
		if rec.Seq != i+1 {
			t.Errorf("events[%d].Seq = %d, want %d", i, rec.Seq, i+1)
		}
		if rec.Kind != events[i].Kind {
			t.Errorf("events[%d].Kind = %q, want %q", i, rec.Kind, events[i].Kind)
		}
	}

	reverted := got[2]
	if reverted.Channel != 0 || !reverted.TargetActive || !reverted.Cancelled {
		t.Errorf("reverted = %+v", reverted)
	}
	if reverted.Held != 700*time.Millisecond || reverted.Duration != 1500*time.Millisecond {
		t.Errorf("reverted Held/Duration = %v/%v", reverted.Held, reverted.Duration)
	}
	if got[3].Outcome != relay.OutcomeStopped {
		t.Errorf("group_finished Outcome = %q, want stopped", got[3].Outcome)
	}
	if got[4].Err != "relay: cleanup: boom" {
		t.Errorf("cleanup Err = %q", got[4].Err)
	}

	after, err := repo.ListEvents(ctx, "op-1", 3)
	if err != nil {
		t.Fatalf("ListEvents(after 3) error = %v", err)
	}
	if len(after) != 2 || after[0].Seq != 4 {
		t.Errorf("ListEvents(after 3) = %d events, first seq %v", len(after), after)
	}
}

func TestSQLiteRepository_AppendEventRejected(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.CreateOperation(ctx, testOperation("op-1", time.Now())); err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}

	rec := EventRecord{OperationID: "op-1", Seq: 1, Event: relay.Event{Kind: relay.EventGroupStarted, Time: time.Now()}}
	if err := repo.AppendEvent(ctx, rec); err != nil {
		t.Fatalf("AppendEvent() error = %v", err)
	}

	tests := []struct {
		name string
		rec  EventRecord
	}{
		{name: "duplicate seq", rec: rec},
		{name: "unknown operation", rec: EventRecord{OperationID: "ghost", Seq: 1, Event: rec.Event}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.AppendEvent(ctx, tt.rec)
			if !errors.Is(err, ErrEventRejected) {
				t.Errorf("AppendEvent() error = %v, want ErrEventRejected", err)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		outcome relay.Outcome
		want    Status
	}{
		{relay.OutcomeCompleted, StatusCompleted},
		{relay.OutcomeStopped, StatusStopped},
		{relay.OutcomeFailed, StatusFailed},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.outcome); got != tt.want {
			t.Errorf("StatusFor(%q) = %q, want %q", tt.outcome, got, tt.want)
		}
		if !tt.want.IsTerminal() {
			t.Errorf("%q.IsTerminal() = false", tt.want)
		}
	}
	if StatusRunning.IsTerminal() {
		t.Error("StatusRunning.IsTerminal() = true")
	}
}

// failingRepo rejects every event write.
type failingRepo struct {
	Repository
	mu    sync.Mutex
	calls int
}

func (f *failingRepo) AppendEvent(context.Context, EventRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return errors.New("disk full")
}

func TestRecorder_SequencesAndPersists(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	if err := repo.CreateOperation(ctx, testOperation("op-1", time.Now())); err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}

	var (
		mu   sync.Mutex
		seen []int
	)
	rec := NewRecorder(repo, "op-1", nil, ObserverFunc(func(r EventRecord) {
		mu.Lock()
		seen = append(seen, r.Seq)
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(ch int) {
			defer wg.Done()
			rec.Emit(relay.Event{Kind: relay.EventChannelActivated, Time: time.Now(), Channel: ch})
		}(i)
	}
	wg.Wait()
	rec.Close()

	if rec.LastSeq() != 20 {
		t.Errorf("LastSeq() = %d, want 20", rec.LastSeq())
	}
	if rec.Failures() != 0 {
		t.Errorf("Failures() = %d, want 0", rec.Failures())
	}

	mu.Lock()
	defer mu.Unlock()
	for i, seq := range seen {
		if seq != i+1 {
			t.Fatalf("observer saw seq %d at position %d, want %d", seq, i, i+1)
		}
	}

	stored, err := repo.ListEvents(ctx, "op-1", 0)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(stored) != 20 {
		t.Errorf("stored %d events, want 20", len(stored))
	}
}

func TestRecorder_PersistFailureStillForwards(t *testing.T) {
	repo := &failingRepo{}
	forwarded := 0
	rec := NewRecorder(repo, "op-1", nil, ObserverFunc(func(EventRecord) { forwarded++ }))

	rec.Emit(relay.Event{Kind: relay.EventGroupStarted})
	rec.Emit(relay.Event{Kind: relay.EventGroupFinished})
	rec.Close()

	if forwarded != 2 {
		t.Errorf("forwarded = %d, want 2", forwarded)
	}
	if rec.Failures() != 2 {
		t.Errorf("Failures() = %d, want 2", rec.Failures())
	}
}

func TestRecorder_NilRepository(t *testing.T) {
	var got []EventRecord
	rec := NewRecorder(nil, "op-x", nil, ObserverFunc(func(r EventRecord) { got = append(got, r) }))

	rec.Emit(relay.Event{Kind: relay.EventCleanup})
	rec.Close()

	if len(got) != 1 || got[0].OperationID != "op-x" || got[0].Seq != 1 {
		t.Errorf("got = %+v", got)
	}
}

func TestRecorder_EmitDoesNotWaitForObservers(t *testing.T) {
	release := make(chan struct{})
	var (
		mu   sync.Mutex
		seen []int
	)
	rec := NewRecorder(nil, "op-slow", nil, ObserverFunc(func(r EventRecord) {
		<-release
		mu.Lock()
		seen = append(seen, r.Seq)
		mu.Unlock()
	}))

	start := time.Now()
	for i := 0; i < 5; i++ {
		rec.Emit(relay.Event{Kind: relay.EventChannelActivated, Channel: i})
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Emit blocked for %v behind a stalled observer", elapsed)
	}

	close(release)
	rec.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 5 {
		t.Fatalf("observer saw %d events after Close, want 5", len(seen))
	}
	for i, seq := range seen {
		if seq != i+1 {
			t.Errorf("observer saw seq %d at position %d, want %d", seq, i, i+1)
		}
	}
}

func TestRecorder_EmitAfterCloseDropped(t *testing.T) {
	forwarded := 0
	rec := NewRecorder(nil, "op-1", nil, ObserverFunc(func(EventRecord) { forwarded++ }))

	rec.Emit(relay.Event{Kind: relay.EventGroupStarted})
	rec.Close()
	rec.Emit(relay.Event{Kind: relay.EventGroupFinished})
	rec.Close()

	if forwarded != 1 {
		t.Errorf("forwarded = %d, want 1", forwarded)
	}
	if rec.LastSeq() != 1 {
		t.Errorf("LastSeq() = %d, want 1", rec.LastSeq())
	}
}
