package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/nerrad567/valvectl/internal/relay"
)

// Repository persists operations and their events.
// This abstraction allows a SQLite implementation in production and
// in-memory mocks in handler tests.
type Repository interface {
	CreateOperation(ctx context.Context, op *Operation) error
	FinishOperation(ctx context.Context, id string, status Status, groupsSkipped int, finishedAt time.Time, errMsg string) error
	GetOperation(ctx context.Context, id string) (*Operation, error)
	ListOperations(ctx context.Context, limit int) ([]Operation, error)

	AppendEvent(ctx context.Context, rec EventRecord) error
	// ListEvents returns events with Seq > afterSeq, oldest first.
	ListEvents(ctx context.Context, operationID string, afterSeq int) ([]EventRecord, error)
}

// DefaultListLimit caps ListOperations when limit is not positive.
const DefaultListLimit = 50

// timeLayout keeps sub-second precision so events sort and replay exactly.
const timeLayout = time.RFC3339Nano

const operationColumns = `id, source, status, request, channel_count, group_count,
			groups_skipped, started_at, finished_at, error`

const eventColumns = `operation_id, seq, emitted_at, kind, group_order, channel,
			target_active, duration_ms, held_ms, cancelled, outcome, error`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a SQLite-backed repository.
// The schema comes from the migrations package.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateOperation inserts a new operation.
func (r *SQLiteRepository) CreateOperation(ctx context.Context, op *Operation) error {
	request, err := json.Marshal(op.Request)
	if err != nil {
		return fmt.Errorf("marshalling request: %w", err)
	}

	query := `
		INSERT INTO operations (` + operationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		op.ID,
		string(op.Source),
		string(op.Status),
		string(request),
		op.Channels,
		op.Groups,
		op.GroupsSkipped,
		op.StartedAt.UTC().Format(timeLayout),
		nullableTime(op.FinishedAt),
		nullableString(op.Error),
	)
	if err != nil {
		if isConstraintError(err) {
			return ErrOperationExists
		}
		return fmt.Errorf("inserting operation: %w", err)
	}
	return nil
}

// FinishOperation records the terminal status of an operation.
// An empty errMsg stores NULL.
func (r *SQLiteRepository) FinishOperation(ctx context.Context, id string, status Status, groupsSkipped int, finishedAt time.Time, errMsg string) error {
	var errCol sql.NullString
	if errMsg != "" {
		errCol = sql.NullString{String: errMsg, Valid: true}
	}

	query := `
		UPDATE operations
		SET status = ?, groups_skipped = ?, finished_at = ?, error = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(status),
		groupsSkipped,
		finishedAt.UTC().Format(timeLayout),
		errCol,
		id,
	)
	if err != nil {
		return fmt.Errorf("updating operation: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrOperationNotFound
	}
	return nil
}

// GetOperation retrieves an operation by ID.
func (r *SQLiteRepository) GetOperation(ctx context.Context, id string) (*Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE id = ?`

	op, err := scanOperation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOperationNotFound
		}
		return nil, fmt.Errorf("querying operation: %w", err)
	}
	return op, nil
}

// ListOperations returns the most recent operations, newest first.
func (r *SQLiteRepository) ListOperations(ctx context.Context, limit int) ([]Operation, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + operationColumns + `
		FROM operations
		ORDER BY started_at DESC, id
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying operations: %w", err)
	}
	defer rows.Close()

	var ops []Operation
	for rows.Next() {
		op, scanErr := scanOperation(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning operation: %w", scanErr)
		}
		ops = append(ops, *op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating operations: %w", err)
	}
	return ops, nil
}

// AppendEvent stores one event.
func (r *SQLiteRepository) AppendEvent(ctx context.Context, rec EventRecord) error {
	query := `
		INSERT INTO operation_events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var channel, targetActive, durationMS, heldMS sql.NullInt64
	if isChannelEvent(rec.Kind) {
		channel = sql.NullInt64{Int64: int64(rec.Channel), Valid: true}
		targetActive = sql.NullInt64{Int64: int64(boolToInt(rec.TargetActive)), Valid: true}
		durationMS = sql.NullInt64{Int64: rec.Duration.Milliseconds(), Valid: true}
		if rec.Kind == relay.EventChannelReverted {
			heldMS = sql.NullInt64{Int64: rec.Held.Milliseconds(), Valid: true}
		}
	}

	_, err := r.db.ExecContext(ctx, query,
		rec.OperationID,
		rec.Seq,
		rec.Time.UTC().Format(timeLayout),
		string(rec.Kind),
		rec.Group,
		channel,
		targetActive,
		durationMS,
		heldMS,
		boolToInt(rec.Cancelled),
		nullableOutcome(rec.Outcome),
		nullableText(rec.Err),
	)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("%w: %s seq %d", ErrEventRejected, rec.OperationID, rec.Seq)
		}
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// ListEvents returns events for an operation with Seq greater than afterSeq.
func (r *SQLiteRepository) ListEvents(ctx context.Context, operationID string, afterSeq int) ([]EventRecord, error) {
	query := `SELECT ` + eventColumns + `
		FROM operation_events
		WHERE operation_id = ? AND seq > ?
		ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query, operationID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		rec, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning event: %w", scanErr)
		}
		events = append(events, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(scanner rowScanner) (*Operation, error) {
	var op Operation
	var source, status, request, startedAt string
	var finishedAt, errMsg sql.NullString

	err := scanner.Scan(
		&op.ID,
		&source,
		&status,
		&request,
		&op.Channels,
		&op.Groups,
		&op.GroupsSkipped,
		&startedAt,
		&finishedAt,
		&errMsg,
	)
	if err != nil {
		return nil, err
	}

	op.Source = Source(source)
	op.Status = Status(status)
	if t, parseErr := time.Parse(timeLayout, startedAt); parseErr == nil {
		op.StartedAt = t
	}
	if finishedAt.Valid {
		if t, parseErr := time.Parse(timeLayout, finishedAt.String); parseErr == nil {
			op.FinishedAt = &t
		}
	}
	if errMsg.Valid {
		op.Error = &errMsg.String
	}

	if request != "" && request != "null" {
		if jsonErr := json.Unmarshal([]byte(request), &op.Request); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling request: %w", jsonErr)
		}
	}
	return &op, nil
}

func scanEvent(scanner rowScanner) (EventRecord, error) {
	var rec EventRecord
	var emittedAt, kind string
	var channel, targetActive, durationMS, heldMS sql.NullInt64
	var cancelled int
	var outcome, errMsg sql.NullString

	err := scanner.Scan(
		&rec.OperationID,
		&rec.Seq,
		&emittedAt,
		&kind,
		&rec.Group,
		&channel,
		&targetActive,
		&durationMS,
		&heldMS,
		&cancelled,
		&outcome,
		&errMsg,
	)
	if err != nil {
		return EventRecord{}, err
	}

	rec.Kind = relay.EventKind(kind)
	if t, parseErr := time.Parse(timeLayout, emittedAt); parseErr == nil {
		rec.Time = t
	}
	rec.Channel = int(channel.Int64)
	rec.TargetActive = targetActive.Int64 != 0
	rec.Duration = time.Duration(durationMS.Int64) * time.Millisecond
	rec.Held = time.Duration(heldMS.Int64) * time.Millisecond
	rec.Cancelled = cancelled != 0
	rec.Outcome = relay.Outcome(outcome.String)
	rec.Err = errMsg.String
	return rec, nil
}

func isChannelEvent(kind relay.EventKind) bool {
	return kind == relay.EventChannelActivated || kind == relay.EventChannelReverted
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableText(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableOutcome(o relay.Outcome) sql.NullString {
	return nullableText(string(o))
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isConstraintError reports whether err is a SQLite constraint violation.
func isConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}
