// Package rtpriority promotes the calling goroutine's OS thread to a
// realtime scheduling policy, for a stream's receive loop where missed
// wakeups translate directly into dropped GVSP packets (spec.md §5:
// "may be promoted to realtime ... via a platform policy hook").
//
// Go does not let a goroutine own an OS thread across scheduler
// preemption points, so callers must wrap the promoted section in
// runtime.LockOSThread/UnlockOSThread themselves; this package only
// sets the scheduling policy of whichever thread currently runs on.
package rtpriority

// Policy selects a realtime scheduling class.
type Policy int

const (
	// PolicyNone leaves the thread on the default (non-realtime)
	// scheduler.
	PolicyNone Policy = iota
	// PolicyFIFO requests SCHED_FIFO (or the platform's closest
	// equivalent) at the given priority.
	PolicyFIFO
)
