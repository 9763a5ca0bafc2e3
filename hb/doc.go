// Package hb is the public happens-before tracking API.
//
// It fronts a single process-wide tracker with manual instrumentation hooks.
// A program (or the racelens rewriter, on its behalf) reports its memory
// accesses and synchronization operations; the tracker reconstructs the
// happens-before order and reports every pair of conflicting accesses it
// cannot order.
//
// # Quick start
//
//	func main() {
//		hb.Boot()
//		defer hb.Shutdown()
//
//		var counter int
//		hb.Write(unsafe.Pointer(&counter))
//		counter = 42
//	}
//
// Memory accesses are reported with [Read] and [Write]. Synchronization is
// reported around the real operation, on the side where the clock must
// already be published or freshly observed:
//
//	mu.Lock()
//	hb.Acquire(unsafe.Pointer(&mu))
//	...
//	hb.Release(unsafe.Pointer(&mu))
//	mu.Unlock()
//
// Channels use [ChanSend] (before the send), [ChanRecv] (after the
// receive) and [ChanClose] (before the close); atomics use [Sync];
// WaitGroup-shaped barriers use [GateAdd], [GateDone] (before Done) and
// [GateWait] (after Wait). A goroutine that was instrumented should call
// [TaskExit] before returning so its task ID can be recycled.
//
// When a race is found a report in the style of the Go race detector is
// written (stderr by default, see [SetReportWriter]) and [Races] increments.
// Each distinct race location is reported once.
//
// The tracker is conservative in the safe direction: synchronization it is
// told about is honored exactly, synchronization it is not told about does
// not exist, so an under-instrumented program can produce false reports but
// a fully instrumented one cannot.
package hb
