package gpio

import "errors"

// Domain errors for the gpio package.
var (
	// ErrUnknownDriver is returned by Open for an unrecognised driver name.
	ErrUnknownDriver = errors.New("gpio: unknown driver")

	// ErrPublisherRequired is returned by Open when the mqtt driver has no client.
	ErrPublisherRequired = errors.New("gpio: mqtt driver requires an MQTT client")

	// ErrNotOpen is returned when Set or Cleanup runs before Setup or after Close.
	ErrNotOpen = errors.New("gpio: driver not open")

	// ErrInvalidChannel is returned for channel numbers outside the BCM range.
	ErrInvalidChannel = errors.New("gpio: invalid channel")

	// ErrInjected is the default error returned by MemoryDriver failure injection.
	ErrInjected = errors.New("gpio: injected failure")
)
