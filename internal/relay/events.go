package relay

import "time"

// EventKind identifies a scheduler lifecycle event.
type EventKind string

const (
	EventGroupStarted     EventKind = "group_started"
	EventChannelActivated EventKind = "channel_activated"
	EventChannelReverted  EventKind = "channel_reverted"
	EventGroupFinished    EventKind = "group_finished"
	EventCleanup          EventKind = "cleanup"
)

// Event is one observable step of a run.
//
// Each channel produces exactly one EventChannelReverted, each started group
// one EventGroupStarted and one EventGroupFinished, and each run one
// EventCleanup.
type Event struct {
	Kind EventKind `json:"kind"`
	Time time.Time `json:"time"`

	// Group is the order of the group the event belongs to. Unset for EventCleanup.
	Group int `json:"group"`

	// Channel fields, set for channel events only.
	Channel      int           `json:"channel"`
	TargetActive bool          `json:"target_active,omitempty"`
	Duration     time.Duration `json:"duration_ns,omitempty"`
	Held         time.Duration `json:"held_ns,omitempty"`
	Cancelled    bool          `json:"cancelled,omitempty"`

	// Outcome is set on EventGroupFinished and EventCleanup.
	Outcome Outcome `json:"outcome,omitempty"`

	// Err carries the failure message, if any.
	Err string `json:"error,omitempty"`
}

// EventSink receives scheduler events.
//
// Emit is called from channel goroutines and must be safe for concurrent use.
// It must not block for long; the scheduler does not buffer events.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// Emit calls f(e).
func (f EventSinkFunc) Emit(e Event) { f(e) }

type noopSink struct{}

func (noopSink) Emit(Event) {}
