// Package relay schedules timed, grouped actuation of relay output channels.
//
// A run takes a list of ChannelSpecs, groups them by Order, and executes the
// groups strictly in ascending order. Channels in one group run concurrently,
// each in its own goroutine.
//
// Architecture:
//
//	┌─────────────────────────────────────────────────────┐
//	│                Scheduler (scheduler.go)              │
//	│  ┌──────────────┐                                   │
//	│  │ Build        │  specs → Plan (ascending groups)  │
//	│  │ (plan.go)    │                                   │
//	│  └──────────────┘                                   │
//	│        │                                            │
//	│        ▼                                            │
//	│  ┌─────────────────────────────────────────────┐   │
//	│  │  for each group:                             │   │
//	│  │    runGroup: goroutine per channel + wait    │   │
//	│  │      runChannel: activate, hold, revert      │   │
//	│  │    stop or failure: skip remaining groups    │   │
//	│  │  cleanup: Driver.Cleanup exactly once        │   │
//	│  └─────────────────────────────────────────────┘   │
//	└─────────────────────────────────────────────────────┘
//
// # Stop Signal
//
// The context passed to Scheduler.Run is the stop signal. Cancelling it
// preempts every hold in the running group. Each channel then reverts to
// LevelInactive, the group runner waits for every revert, later groups are
// skipped, and the driver is cleaned up. A stop is not an error.
//
// # Safety
//
// Every channel revert is deferred and uses a context that ignores
// cancellation, so a channel is never left active by a stop, a hardware
// error, or a panic in its goroutine.
//
// # Usage
//
//	records, err := relay.DecodeRequest(os.Args[1])
//	specs, err := relay.Validate(records, relay.DefaultDurationMinutes)
//	plan, err := relay.Build(specs)
//
//	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
//	defer stop()
//
//	sched := relay.NewScheduler(driver, logger, sink)
//	report, err := sched.Run(ctx, plan)
package relay
