package track

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/racelens/racelens/internal/hb/shadow"
	"github.com/racelens/racelens/internal/hb/stamp"
)

// Kind classifies a race by the two conflicting access types.
type Kind string

const (
	// KindWriteWrite is two unordered writes.
	KindWriteWrite Kind = "write-write"
	// KindReadWrite is a write unordered with an earlier read.
	KindReadWrite Kind = "read-write"
	// KindWriteRead is a read unordered with an earlier write.
	KindWriteRead Kind = "write-read"
)

// maxFrames bounds captured stack depth. Race bugs are visible near the top
// of the stack; deeper frames only pad the report.
const maxFrames = 32

// Access describes one side of a detected race.
type Access struct {
	// Write is true for a write access, false for a read.
	Write bool

	// Addr is the racing memory location.
	Addr uintptr

	// Task is the tracker task ID that performed the access.
	Task uint16

	// Stamp is the logical time of the access. Zero when the side was
	// recorded as a vector (multiple readers) and no single stamp applies.
	Stamp stamp.Stamp

	// Stack holds program counters for the access site, when available.
	Stack []uintptr
}

// Report is one deduplicated data race.
type Report struct {
	// Current is the access that tripped the detector.
	Current Access
	// Previous is the recorded conflicting access.
	Previous Access
	// Key identifies the race location for deduplication:
	// "kind:0xaddr:taskA:taskB" with task IDs sorted.
	Key string
}

func dedupKey(kind Kind, addr uintptr, a, b uint16) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%s:0x%x:%d:%d", kind, addr, a, b)
}

// captureStack records the caller's stack, skipping the given number of
// frames above runtime.Callers.
func captureStack(skip int) []uintptr {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip, pcs)
	return pcs[:n]
}

// stackFromPC turns a single recorded program counter into a one-frame
// stack. The previous access's full stack is gone by the time the race is
// found; its PC is the one thing the shadow cell keeps.
func stackFromPC(pc uintptr) []uintptr {
	if pc == 0 {
		return nil
	}
	return []uintptr{pc}
}

// formatStack renders program counters in the style of the Go race
// detector's reports, filtering runtime and tracker-internal frames.
func formatStack(pcs []uintptr) string {
	if len(pcs) == 0 {
		return "  [stack unavailable]\n"
	}
	frames := runtime.CallersFrames(pcs)
	var b strings.Builder
	for {
		frame, more := frames.Next()
		if frame.PC == 0 {
			break
		}
		fn := frame.Function
		if strings.HasPrefix(fn, "runtime.") ||
			strings.Contains(fn, "/internal/hb/track.") ||
			strings.Contains(fn, "racelens/hb.") {
			if !more {
				break
			}
			continue
		}
		fmt.Fprintf(&b, "  %s()\n      %s:%d\n", fn, frame.File, frame.Line)
		if !more {
			break
		}
	}
	if b.Len() == 0 {
		return "  [stack unavailable]\n"
	}
	return b.String()
}

func accessVerb(write bool) string {
	if write {
		return "Write"
	}
	return "Read"
}

// Format writes the report in a layout close to the Go race detector's.
func (r *Report) Format(w io.Writer) {
	fmt.Fprintf(w, "==================\n")
	fmt.Fprintf(w, "WARNING: DATA RACE\n")
	fmt.Fprintf(w, "%s at 0x%016x by task %d:\n",
		accessVerb(r.Current.Write), r.Current.Addr, r.Current.Task)
	fmt.Fprint(w, formatStack(r.Current.Stack))
	fmt.Fprintf(w, "  [stamp %s]\n\n", r.Current.Stamp)

	fmt.Fprintf(w, "Previous %s at 0x%016x by task %d:\n",
		strings.ToLower(accessVerb(r.Previous.Write)), r.Previous.Addr, r.Previous.Task)
	fmt.Fprint(w, formatStack(r.Previous.Stack))
	fmt.Fprintf(w, "  [stamp %s]\n", r.Previous.Stamp)
	fmt.Fprintf(w, "==================\n")
}

// String renders the report; test and debug convenience.
func (r *Report) String() string {
	var b strings.Builder
	r.Format(&b)
	return b.String()
}

// newReport assembles a Report for a detected race. The current side's stack
// is captured here — off the access fast path, only when a race actually
// fires. The previous side gets the single PC the shadow cell remembered.
func newReport(kind Kind, addr uintptr, cell *shadow.Cell, prev, curr stamp.Stamp) *Report {
	r := &Report{
		Current: Access{
			Addr:  addr,
			Task:  curr.Task(),
			Stamp: curr,
			// Skip runtime.Callers, captureStack, newReport, report and the
			// On* entry point; frames above those are the subject program.
			Stack: captureStack(5),
		},
		Previous: Access{
			Addr:  addr,
			Task:  prev.Task(),
			Stamp: prev,
		},
	}

	switch kind {
	case KindWriteWrite:
		r.Current.Write, r.Previous.Write = true, true
		r.Previous.Stack = stackFromPC(cell.WritePC())
	case KindReadWrite:
		r.Current.Write, r.Previous.Write = true, false
		r.Previous.Stack = stackFromPC(cell.ReadPC())
	case KindWriteRead:
		r.Current.Write, r.Previous.Write = false, true
		r.Previous.Stack = stackFromPC(cell.WritePC())
	}

	r.Key = dedupKey(kind, addr, r.Previous.Task, r.Current.Task)
	return r
}

// report emits a race once per location. Duplicate locations are dropped
// silently and do not count.
func (t *Tracker) report(kind Kind, addr uintptr, cell *shadow.Cell, prev, curr stamp.Stamp) {
	r := newReport(kind, addr, cell, prev, curr)
	if _, seen := t.reported.LoadOrStore(r.Key, struct{}{}); seen {
		return
	}
	t.races.Add(1)

	t.mu.Lock()
	defer t.mu.Unlock()
	r.Format(t.writer)
}
