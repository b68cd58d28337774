package relay

import (
	"errors"
	"fmt"
)

// Domain errors for the relay package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, relay.ErrInvalidPlan) {
//	    // nothing was actuated
//	}
var (
	// ErrInvalidPlan is returned when a plan is rejected before any hardware write.
	ErrInvalidPlan = errors.New("relay: invalid plan")

	// ErrEmptyPlan is returned when a plan has no channels. Matches ErrInvalidPlan.
	ErrEmptyPlan = fmt.Errorf("%w: empty plan", ErrInvalidPlan)

	// ErrDuplicateChannel is returned when one group drives the same channel twice.
	// Matches ErrInvalidPlan.
	ErrDuplicateChannel = fmt.Errorf("%w: duplicate channel in group", ErrInvalidPlan)

	// ErrInvalidRequest is returned when caller input cannot be decoded or validated.
	// Matches ErrInvalidPlan.
	ErrInvalidRequest = fmt.Errorf("%w: invalid request", ErrInvalidPlan)

	// ErrHardwareWrite is matched by every HardwareError.
	ErrHardwareWrite = errors.New("relay: hardware write failed")
)

// Hardware operations reported in HardwareError.Op.
const (
	OpActivate = "activate"
	OpRevert   = "revert"
	OpCleanup  = "cleanup"
)

// HardwareError reports a failed driver call for one channel.
// Cleanup failures use Channel -1.
type HardwareError struct {
	Channel int
	Op      string
	Err     error
}

func (e *HardwareError) Error() string {
	if e.Channel < 0 {
		return fmt.Sprintf("relay: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("relay: %s channel %d: %v", e.Op, e.Channel, e.Err)
}

// Unwrap exposes both ErrHardwareWrite and the driver's cause to errors.Is.
func (e *HardwareError) Unwrap() []error {
	return []error{ErrHardwareWrite, e.Err}
}
