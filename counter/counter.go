// Package counter implements shared counters in the four disciplines the
// racelens demos are built around: one deliberately unsynchronized (Racy)
// and three safe remediations — atomic operations (Atomic), a mutex-guarded
// critical section (Locked), and message passing to a single owning
// goroutine (Owned).
//
// Every implementation reports its memory and synchronization operations
// through the hb hooks, so running any of them under the tracker yields a
// verdict: Racy is flagged, the others come out clean. The safe counters are
// also correct without the tracker; the hooks are observation, not
// synchronization.
package counter

// Counter is a concurrency-shared tally.
//
// Inc and Add may be called from any number of goroutines. Whether the final
// Value is well defined depends on the implementation — that difference is
// the whole point of this package.
type Counter interface {
	// Inc adds one.
	Inc()

	// Add adds delta, which may be negative.
	Add(delta int64)

	// Value returns the current tally.
	Value() int64
}
