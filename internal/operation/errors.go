package operation

import "errors"

var (
	// ErrBusy is returned by Start while another operation is running.
	ErrBusy = errors.New("operation: another operation is active")

	// ErrNoActiveOperation is returned by Stop when nothing is running.
	ErrNoActiveOperation = errors.New("operation: no active operation")

	// ErrUnknownOperation is returned by Wait for an ID the manager does not track.
	ErrUnknownOperation = errors.New("operation: unknown operation")

	// ErrDriverSetup is returned when the hardware could not be prepared.
	ErrDriverSetup = errors.New("operation: driver setup failed")

	// ErrShuttingDown is returned by Start after the base context is cancelled.
	ErrShuttingDown = errors.New("operation: manager shutting down")
)
