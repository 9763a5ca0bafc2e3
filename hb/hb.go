package hb

import (
	"fmt"
	"io"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/racelens/racelens/internal/hb/task"
	"github.com/racelens/racelens/internal/hb/track"
)

var (
	enabled atomic.Bool
	tracker atomic.Pointer[track.Tracker]
	tasks   = task.NewRegistry()
)

func init() {
	tracker.Store(track.New())
}

// Boot enables tracking. Safe to call more than once. The rewriter inserts
// a Boot call at the top of the subject program's main.
func Boot() {
	enabled.Store(true)
}

// Shutdown disables tracking and prints a one-line summary to the report
// writer's side (stderr). Typically deferred from main.
func Shutdown() {
	enabled.Store(false)
	n := tracker.Load().Races()
	if n > 0 {
		fmt.Fprintf(writerOrStderr(), "Found %d data race(s)\n", n)
	}
}

func writerOrStderr() io.Writer {
	// Summary goes wherever reports go; the tracker owns that writer.
	return trackWriter{}
}

// trackWriter forwards to the tracker's report writer under its lock.
type trackWriter struct{}

func (trackWriter) Write(p []byte) (int, error) {
	return tracker.Load().WriteReportBytes(p)
}

// Enable turns tracking on without the Boot semantics (no summary pairing).
func Enable() { enabled.Store(true) }

// Disable turns tracking off. Hooks become no-ops until re-enabled.
func Disable() { enabled.Store(false) }

// Enabled reports whether hooks are live.
func Enabled() bool { return enabled.Load() }

// Races returns the number of distinct races reported so far.
func Races() int {
	return tracker.Load().Races()
}

// SetReportWriter redirects race reports, e.g. into a buffer under test.
func SetReportWriter(w io.Writer) {
	tracker.Load().SetWriter(w)
}

// Reset discards all tracking state: shadow cells, synchronization points,
// task registry, dedup history and the race counter. Only meaningful while
// no instrumented goroutines are running.
func Reset() {
	tracker.Load().Reset()
	tasks.Reset()
}

// Configure replaces the tracker with one built from the given options.
// Like Reset, callers must quiesce instrumented goroutines first.
func Configure(opts track.Options) {
	tracker.Store(track.NewWithOptions(opts))
	tasks.Reset()
}

// Write reports a write to the location p.
func Write(p unsafe.Pointer) {
	if !enabled.Load() {
		return
	}
	pc, _, _, _ := runtime.Caller(1)
	tracker.Load().OnWrite(uintptr(p), tasks.Current(), pc)
}

// Read reports a read of the location p.
func Read(p unsafe.Pointer) {
	if !enabled.Load() {
		return
	}
	pc, _, _, _ := runtime.Caller(1)
	tracker.Load().OnRead(uintptr(p), tasks.Current(), pc)
}

// Acquire reports that the caller holds the lock at p. Call after the real
// Lock returns: hooking before it would merge the previous release clock
// while another task is still inside its critical section.
func Acquire(p unsafe.Pointer) {
	if !enabled.Load() {
		return
	}
	tracker.Load().OnAcquire(uintptr(p), tasks.Current())
}

// Release reports that the caller is giving up the lock at p.
// Call before the real Unlock.
func Release(p unsafe.Pointer) {
	if !enabled.Load() {
		return
	}
	tracker.Load().OnRelease(uintptr(p), tasks.Current())
}

// Sync reports an atomic operation on the word at p: the caller is ordered
// after every earlier atomic operation on p and publishes its own clock,
// indivisibly. Atomic accesses count as synchronization, not as data
// accesses, so there is no separate Read or Write to report for them.
func Sync(p unsafe.Pointer) {
	if !enabled.Load() {
		return
	}
	tracker.Load().OnSync(uintptr(p), tasks.Current())
}

// ReleaseMerge reports a shared (read) unlock of the lock at p.
func ReleaseMerge(p unsafe.Pointer) {
	if !enabled.Load() {
		return
	}
	tracker.Load().OnReleaseMerge(uintptr(p), tasks.Current())
}

// ChanSend reports a send on the channel identified by p. Call before the
// real send so the clock is published by the time the receiver observes the
// message.
func ChanSend(p unsafe.Pointer) {
	if !enabled.Load() {
		return
	}
	tracker.Load().OnChanSend(uintptr(p), tasks.Current())
}

// ChanRecv reports a completed receive on the channel identified by p.
// Call after the real receive returns.
func ChanRecv(p unsafe.Pointer) {
	if !enabled.Load() {
		return
	}
	tracker.Load().OnChanRecv(uintptr(p), tasks.Current())
}

// ChanClose reports closure of the channel identified by p.
func ChanClose(p unsafe.Pointer) {
	if !enabled.Load() {
		return
	}
	tracker.Load().OnChanClose(uintptr(p), tasks.Current())
}

// GateAdd reports WaitGroup.Add(delta) on the gate at p.
func GateAdd(p unsafe.Pointer, delta int64) {
	if !enabled.Load() {
		return
	}
	tracker.Load().OnGateAdd(uintptr(p), delta, tasks.Current())
}

// GateDone reports WaitGroup.Done on the gate at p. Call before the real
// Done so the finishing task's clock is published first.
func GateDone(p unsafe.Pointer) {
	if !enabled.Load() {
		return
	}
	tracker.Load().OnGateDone(uintptr(p), tasks.Current())
}

// GateWait reports a returned WaitGroup.Wait on the gate at p. Call after
// the real Wait.
func GateWait(p unsafe.Pointer) {
	if !enabled.Load() {
		return
	}
	tracker.Load().OnGateWait(uintptr(p), tasks.Current())
}

// TaskExit releases the calling goroutine's task state and recycles its ID.
// Deferred at the top of instrumented goroutines.
func TaskExit() {
	tasks.Release()
}
