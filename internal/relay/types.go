package relay

import (
	"context"
	"slices"
	"time"
)

// Level is the logical level of an output channel.
// The electrical value behind each level is a driver concern (see gpio.Polarity).
type Level int

const (
	// LevelInactive is the safe level every channel settles to on any exit path.
	LevelInactive Level = iota
	// LevelActive energises the relay.
	LevelActive
)

// String returns "active" or "inactive".
func (l Level) String() string {
	if l == LevelActive {
		return "active"
	}
	return "inactive"
}

// LevelFor returns the level implied by a target state.
func LevelFor(targetActive bool) Level {
	if targetActive {
		return LevelActive
	}
	return LevelInactive
}

// ChannelSpec describes one channel's actuation. It is built once from a
// validated request and never mutated.
type ChannelSpec struct {
	// Channel is the hardware line identifier (BCM pin number for rpio).
	Channel int `json:"channel"`

	// TargetActive drives the channel to the active level for Duration when
	// true, and to the inactive level when false.
	TargetActive bool `json:"target_active"`

	// Duration is how long the target level is held. Zero means revert immediately.
	Duration time.Duration `json:"duration_ns"`

	// Order selects the group. Groups run in ascending order.
	Order int `json:"order"`
}

// Group is the set of channels sharing one Order. Channels in a group run concurrently.
type Group struct {
	Order    int           `json:"order"`
	Channels []ChannelSpec `json:"channels"`
}

// Plan is the full ordered sequence of groups for one run.
type Plan []Group

// Channels returns every distinct channel the plan touches, in ascending order.
func (p Plan) Channels() []int {
	seen := make(map[int]struct{})
	var channels []int
	for _, g := range p {
		for _, c := range g.Channels {
			if _, ok := seen[c.Channel]; ok {
				continue
			}
			seen[c.Channel] = struct{}{}
			channels = append(channels, c.Channel)
		}
	}
	slices.Sort(channels)
	return channels
}

// Size returns the total number of channel actuations in the plan.
func (p Plan) Size() int {
	n := 0
	for _, g := range p {
		n += len(g.Channels)
	}
	return n
}

// Driver is what the scheduler needs from the output hardware.
//
// Set must be safe to call concurrently for different channels.
// Cleanup is the protocol-level reset run once after the last group.
type Driver interface {
	Set(ctx context.Context, channel int, level Level) error
	Cleanup(ctx context.Context, channels []int) error
}

// Outcome is how a group or a whole run ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeStopped   Outcome = "stopped" // stop signal received
	OutcomeFailed    Outcome = "failed"  // hardware write error
)

// GroupReport summarises one group that was started.
type GroupReport struct {
	Order    int           `json:"order"`
	Channels int           `json:"channels"`
	Outcome  Outcome       `json:"outcome"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

// Report summarises a scheduler run.
type Report struct {
	Outcome       Outcome       `json:"outcome"`
	Groups        []GroupReport `json:"groups"`
	GroupsSkipped int           `json:"groups_skipped"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
}

// Logger is the logging interface used by the scheduler.
// Compatible with logging.Logger and slog.Logger.
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
