package history

import (
	"time"

	"github.com/nerrad567/valvectl/internal/relay"
)

// Source identifies what started an operation.
type Source string

const (
	SourceCLI Source = "cli"
	SourceAPI Source = "api"
)

// Status is the lifecycle state of an operation.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether the operation has finished.
func (s Status) IsTerminal() bool {
	return s != StatusRunning
}

// StatusFor maps a scheduler outcome to an operation status.
func StatusFor(outcome relay.Outcome) Status {
	switch outcome {
	case relay.OutcomeCompleted:
		return StatusCompleted
	case relay.OutcomeStopped:
		return StatusStopped
	default:
		return StatusFailed
	}
}

// Operation is the persisted record of one scheduler run.
type Operation struct {
	ID            string              `json:"id"`
	Source        Source              `json:"source"`
	Status        Status              `json:"status"`
	Request       []relay.ChannelSpec `json:"request"`
	Channels      int                 `json:"channels"`
	Groups        int                 `json:"groups"`
	GroupsSkipped int                 `json:"groups_skipped"`
	StartedAt     time.Time           `json:"started_at"`
	FinishedAt    *time.Time          `json:"finished_at,omitempty"`
	Error         *string             `json:"error,omitempty"`
}

// EventRecord is a scheduler event stored against an operation.
// Seq starts at 1 and increases by one per event.
type EventRecord struct {
	OperationID string `json:"operation_id"`
	Seq         int    `json:"seq"`
	relay.Event
}
