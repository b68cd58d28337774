package history

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/valvectl/internal/relay"
)

// defaultWriteTimeout bounds each event insert.
const defaultWriteTimeout = 2 * time.Second

// Logger is the logging interface used by the recorder.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Observer receives every event after it has been sequenced.
type Observer interface {
	Observe(EventRecord)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(EventRecord)

// Observe calls f(rec).
func (f ObserverFunc) Observe(rec EventRecord) { f(rec) }

// Recorder is a relay.EventSink that numbers events for one operation,
// persists them, and forwards them to observers.
//
// Emit only assigns the sequence number and queues the record; a single
// worker goroutine writes and forwards records in sequence order, so a slow
// disk or broker never delays a channel's hold or revert. Close drains the
// queue and stops the worker.
//
// Persistence failures are logged and never reach the scheduler: a full disk
// must not stop a valve from closing. A nil repository disables persistence
// but still sequences and forwards events.
//
// Thread Safety: Emit may be called from many goroutines. Observers are
// called from the worker, in sequence order, one event at a time.
type Recorder struct {
	repo         Repository
	operationID  string
	logger       Logger
	observers    []Observer
	writeTimeout time.Duration

	mu       sync.Mutex
	seq      int
	failures int
	queue    []EventRecord
	closed   bool

	wake chan struct{}
	done chan struct{}
}

// NewRecorder creates a recorder for operationID and starts its worker.
// Callers must Close it once the operation has finished.
func NewRecorder(repo Repository, operationID string, logger Logger, observers ...Observer) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	r := &Recorder{
		repo:         repo,
		operationID:  operationID,
		logger:       logger,
		observers:    observers,
		writeTimeout: defaultWriteTimeout,
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	go r.loop()
	return r
}

// Emit implements relay.EventSink. It never blocks on I/O.
// Events emitted after Close are dropped.
func (r *Recorder) Emit(e relay.Event) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("event emitted after recorder closed",
			"operation_id", r.operationID,
			"kind", e.Kind,
		)
		return
	}
	r.seq++
	r.queue = append(r.queue, EventRecord{OperationID: r.operationID, Seq: r.seq, Event: e})
	r.mu.Unlock()

	r.signal()
}

// Close waits until every queued record has been written and forwarded,
// then stops the worker. It is safe to call more than once.
func (r *Recorder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.signal()
	<-r.done
}

func (r *Recorder) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// loop writes queued records until the recorder is closed and drained.
func (r *Recorder) loop() {
	defer close(r.done)

	for {
		r.mu.Lock()
		batch := r.queue
		r.queue = nil
		closed := r.closed
		r.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-r.wake
			continue
		}

		for _, rec := range batch {
			r.write(rec)
		}
	}
}

func (r *Recorder) write(rec EventRecord) {
	if r.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
		err := r.repo.AppendEvent(ctx, rec)
		cancel()
		if err != nil {
			r.mu.Lock()
			r.failures++
			r.mu.Unlock()
			r.logger.Error("recording event failed",
				"operation_id", r.operationID,
				"seq", rec.Seq,
				"kind", rec.Kind,
				"error", err,
			)
		}
	}

	for _, o := range r.observers {
		o.Observe(rec)
	}
}

// LastSeq returns the sequence number of the most recent event, or 0.
func (r *Recorder) LastSeq() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// Failures returns how many events could not be persisted.
func (r *Recorder) Failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures
}
