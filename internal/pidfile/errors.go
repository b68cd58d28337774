package pidfile

import "errors"

var (
	// ErrNotFound is returned when no PID file exists.
	ErrNotFound = errors.New("pidfile: no pid file")

	// ErrInvalidPID is returned when the file does not hold a positive integer.
	ErrInvalidPID = errors.New("pidfile: invalid pid")

	// ErrAlreadyRunning is returned by Write when the file names a live process.
	ErrAlreadyRunning = errors.New("pidfile: already running")

	// ErrNotRunning is returned when the recorded process has exited.
	ErrNotRunning = errors.New("pidfile: process not running")
)
