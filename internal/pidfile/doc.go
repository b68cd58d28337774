// Package pidfile tracks the running valve controller so a second process
// can stop it.
//
// `valvectl run` writes its PID on start and removes the file on exit.
// `valvectl stop` reads the file and sends SIGTERM, which the run turns into
// the scheduler's stop signal. Unix only.
package pidfile
