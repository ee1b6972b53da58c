//go:build windows

package rtpriority

// Set is a no-op on windows: there is no portable equivalent of
// SCHED_FIFO reachable without cgo, and spec.md §5 only requires the
// hook to exist, not to promote on every platform.
func Set(policy Policy, priority int) error {
	return nil
}
