//go:build linux

package rtpriority

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Set applies policy to the calling thread at the given priority
// (1-99 for SCHED_FIFO; ignored for PolicyNone). The caller must have
// already called runtime.LockOSThread, or this affects whichever
// thread happens to run the calling goroutine at the moment.
func Set(policy Policy, priority int) error {
	if policy == PolicyNone {
		return nil
	}
	param := &unix.Sched_param{Priority: int32(priority)}
	if err := unix.SchedSetscheduler(0, unix.SCHED_FIFO, param); err != nil {
		return fmt.Errorf("rtpriority: sched_setscheduler: %w", err)
	}
	return nil
}
