package pidfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	filePermissions = 0600
	dirPermissions  = 0750

	// pollInterval is how often WaitExit checks the process.
	pollInterval = 50 * time.Millisecond
)

// Write records the current process ID at path.
//
// The file is created exclusively. An existing file is replaced only when it
// is stale: its process has exited or its content is not a valid PID. A file
// already holding this process's PID is left as is.
//
// Returns:
//   - error: ErrAlreadyRunning (with the live PID) if another process owns path
func Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return fmt.Errorf("creating pid file directory: %w", err)
	}

	self := os.Getpid()
	// Two attempts: the second follows removal of a stale file.
	for range 2 {
		err := create(path, self)
		if !errors.Is(err, os.ErrExist) {
			return err
		}

		pid, readErr := Read(path)
		switch {
		case readErr == nil && pid == self:
			return nil
		case readErr == nil && Alive(pid):
			return fmt.Errorf("%w: pid %d", ErrAlreadyRunning, pid)
		case readErr != nil && !errors.Is(readErr, ErrInvalidPID) && !errors.Is(readErr, ErrNotFound):
			return readErr
		}

		if err := Remove(path); err != nil {
			return err
		}
	}
	return fmt.Errorf("writing pid file: %s keeps reappearing", path)
}

// create writes pid to a new file at path. It fails with os.ErrExist if the
// file is already there.
func create(path string, pid int) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePermissions) //nolint:gosec // path comes from operator config
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return err
		}
		return fmt.Errorf("creating pid file: %w", err)
	}

	_, writeErr := f.WriteString(strconv.Itoa(pid) + "\n")
	closeErr := f.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(path) //nolint:errcheck // partial file, best effort
		return fmt.Errorf("writing pid file: %w", err)
	}
	return nil
}

// Read returns the PID stored at path.
//
// Returns:
//   - int: the stored PID
//   - error: ErrNotFound if the file does not exist, ErrInvalidPID if it
//     does not hold a positive integer
func Read(path string) (int, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return 0, fmt.Errorf("reading pid file: %w", err)
	}

	text := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(text)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: %q in %s", ErrInvalidPID, text, path)
	}
	return pid, nil
}

// Remove deletes the PID file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing pid file: %w", err)
	}
	return nil
}

// Alive reports whether a process with pid exists.
// EPERM means the process exists but belongs to another user.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Stop sends SIGTERM to the process recorded at path and removes the file.
//
// A stale file, whose process has already exited, is removed and reported
// as ErrNotRunning.
//
// Returns:
//   - int: the signalled PID
//   - error: ErrNotFound, ErrInvalidPID, ErrNotRunning, or the signal error
func Stop(path string) (int, error) {
	pid, err := Read(path)
	if err != nil {
		return 0, err
	}

	if !Alive(pid) {
		_ = Remove(path) //nolint:errcheck // stale file, best effort
		return pid, fmt.Errorf("%w: pid %d", ErrNotRunning, pid)
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			_ = Remove(path) //nolint:errcheck // exited between checks
			return pid, fmt.Errorf("%w: pid %d", ErrNotRunning, pid)
		}
		return pid, fmt.Errorf("signalling pid %d: %w", pid, err)
	}

	if err := Remove(path); err != nil {
		return pid, err
	}
	return pid, nil
}

// WaitExit blocks until pid has exited or ctx is done.
func WaitExit(ctx context.Context, pid int) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for Alive(pid) {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for pid %d: %w", pid, ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}
