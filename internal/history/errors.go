package history

import "errors"

var (
	// ErrOperationNotFound is returned when an operation ID does not exist.
	ErrOperationNotFound = errors.New("history: operation not found")

	// ErrOperationExists is returned when creating an operation whose ID is taken.
	ErrOperationExists = errors.New("history: operation already exists")

	// ErrEventRejected is returned when an event repeats a sequence number or
	// names an unknown operation.
	ErrEventRejected = errors.New("history: event rejected")
)
