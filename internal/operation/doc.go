// Package operation owns the single valve operation that may run at a time.
//
// Both the CLI and the HTTP service start runs through a Manager:
//
//	m := operation.NewManager(ctx, operation.Options{Driver: drv, Repo: repo})
//	id, err := m.Start(specs, history.SourceCLI)
//	if err != nil {
//	    return err
//	}
//	result, err := m.Wait(context.WithoutCancel(ctx), id)
//
// Start refuses a second run with ErrBusy. Stop cancels the active run and
// waits for its reverts and final cleanup. Cancelling the context given to
// NewManager has the same effect, which is how SIGTERM reaches the scheduler.
package operation
