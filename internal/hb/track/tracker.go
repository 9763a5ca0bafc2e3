// Package track implements the happens-before race detection engine.
//
// The algorithm is FastTrack-shaped: each task carries a vector clock, each
// tracked variable a shadow cell holding the last write stamp and an adaptive
// read record. An access races with a recorded one when the recorded stamp is
// not visible in the accessing task's clock. Synchronization operations on
// locks, channels and gates publish and merge clocks through syncpoint,
// which is what makes correctly synchronized programs come out clean.
package track

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/racelens/racelens/internal/hb/shadow"
	"github.com/racelens/racelens/internal/hb/syncpoint"
	"github.com/racelens/racelens/internal/hb/task"
)

// Options configures a Tracker.
type Options struct {
	// SampleRate checks one in SampleRate memory accesses. 0 and 1 both
	// mean every access is checked. Sampling trades detection probability
	// for overhead; synchronization edges are never sampled away, so a
	// sampled tracker under-reports but never falsely reports.
	SampleRate uint64

	// Writer receives formatted race reports. Defaults to os.Stderr.
	Writer io.Writer
}

// Tracker is the race detection engine. One instance tracks one program (or
// one test scenario); all methods are safe for concurrent use.
type Tracker struct {
	cells  *shadow.Map
	points *syncpoint.Table

	// reported dedupes race locations: key -> struct{}. A given
	// (kind, address, task pair) is reported once per Tracker lifetime.
	reported sync.Map

	races atomic.Int64

	samplePos  atomic.Uint64
	sampleRate uint64

	mu     sync.Mutex // serializes report output and writer swaps
	writer io.Writer
}

// New returns a tracker with default options: every access checked, reports
// to stderr.
func New() *Tracker {
	return NewWithOptions(Options{})
}

// NewWithOptions returns a tracker with explicit options.
func NewWithOptions(opts Options) *Tracker {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	rate := opts.SampleRate
	if rate == 0 {
		rate = 1
	}
	return &Tracker{
		cells:      shadow.NewMap(),
		points:     syncpoint.NewTable(),
		sampleRate: rate,
		writer:     w,
	}
}

// SetWriter redirects race reports.
func (t *Tracker) SetWriter(w io.Writer) {
	t.mu.Lock()
	t.writer = w
	t.mu.Unlock()
}

// WriteReportBytes writes raw bytes to the report writer, serialized against
// in-flight reports. Used for the shutdown summary line.
func (t *Tracker) WriteReportBytes(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writer.Write(p)
}

// Races returns the number of distinct races reported so far.
func (t *Tracker) Races() int {
	return int(t.races.Load())
}

// sampled reports whether this access should be checked. With rate 1 every
// access passes. The position counter doubles as a cheap uniform selector.
func (t *Tracker) sampled() bool {
	if t.sampleRate <= 1 {
		return true
	}
	return t.samplePos.Add(1)%t.sampleRate == 0
}

// OnWrite checks and records a write to addr by st. pc is the write site for
// reporting, zero when unknown.
//
// Order of checks follows the FastTrack write rule: same-stamp fast path,
// then write-write, then read-write. On a detected race the cell is left
// untouched so one buggy site does not cascade into reports against every
// later access.
func (t *Tracker) OnWrite(addr uintptr, st *task.State, pc uintptr) {
	if !t.sampled() {
		return
	}
	cell := t.cells.GetOrCreate(addr)

	now := st.Now
	if cell.Write.Same(now) {
		// Repeated write in the same logical instant; nothing new to learn.
		return
	}

	if cell.Write != 0 && !cell.Write.Before(st.Clock) {
		t.report(KindWriteWrite, addr, cell, cell.Write, now)
		return
	}

	if !cell.Promoted() {
		if rs := cell.ReadStamp(); rs != 0 && !rs.Before(st.Clock) {
			t.report(KindReadWrite, addr, cell, rs, now)
			return
		}
	} else if rv := cell.ReadVec(); rv != nil && !rv.LessOrEqual(st.Clock) {
		// Concurrent readers recorded; at least one is unordered with this
		// write. The vector has no single stamp to show, so the report
		// carries the write side only.
		t.report(KindReadWrite, addr, cell, 0, now)
		return
	}

	cell.Write = now
	cell.RecordWritePC(pc)
	cell.Demote()
	st.Tick()
}

// OnRead checks and records a read of addr by st.
func (t *Tracker) OnRead(addr uintptr, st *task.State, pc uintptr) {
	if !t.sampled() {
		return
	}
	cell := t.cells.GetOrCreate(addr)

	now := st.Now
	if cell.Write != 0 && !cell.Write.Before(st.Clock) {
		t.report(KindWriteRead, addr, cell, cell.Write, now)
		return
	}

	if cell.Promoted() {
		cell.MergeReaders(st.Clock, pc)
		st.Tick()
		return
	}

	prev := cell.ReadStamp()
	switch {
	case prev.Same(now):
		// Same logical instant; already recorded.
		return
	case prev == 0 || prev.Task() == st.ID || prev.Before(st.Clock):
		// First reader, same reader again, or a reader we are ordered
		// after: the scalar record still covers everyone.
		cell.SetReadStamp(now, pc)
	default:
		// A reader concurrent with us. From here the cell needs the full
		// vector to remember both.
		cell.Promote(st.Clock, pc)
	}
	st.Tick()
}

// OnAcquire orders st after the last release of the lock at addr.
func (t *Tracker) OnAcquire(addr uintptr, st *task.State) {
	t.points.GetOrCreate(addr).AcquireInto(st.Clock)
	st.Tick()
}

// OnRelease publishes st's clock as the lock's release clock.
func (t *Tracker) OnRelease(addr uintptr, st *task.State) {
	t.points.GetOrCreate(addr).Release(st.Clock)
	st.Tick()
}

// OnSync records an atomic operation on addr: one indivisible
// acquire-and-release. Atomic accesses are synchronization events, not data
// accesses; they leave no shadow-cell record to race with.
func (t *Tracker) OnSync(addr uintptr, st *task.State) {
	t.points.GetOrCreate(addr).Sync(st.Clock)
	st.Tick()
}

// OnReleaseMerge merges st's clock into the lock's release clock. Read
// unlocks use this: overlapping read sections must all stay visible to the
// next writer.
func (t *Tracker) OnReleaseMerge(addr uintptr, st *task.State) {
	t.points.GetOrCreate(addr).ReleaseMerge(st.Clock)
	st.Tick()
}

// OnChanSend records a completed send on ch.
func (t *Tracker) OnChanSend(ch uintptr, st *task.State) {
	t.points.GetOrCreate(ch).ChanSend(st.Clock)
	st.Tick()
}

// OnChanRecv orders st after the matching send (and close, if closed).
func (t *Tracker) OnChanRecv(ch uintptr, st *task.State) {
	t.points.GetOrCreate(ch).ChanRecvInto(st.Clock)
	st.Tick()
}

// OnChanClose records closure of ch by st.
func (t *Tracker) OnChanClose(ch uintptr, st *task.State) {
	t.points.GetOrCreate(ch).ChanClose(st.Clock)
	st.Tick()
}

// OnGateAdd records a gate counter adjustment.
func (t *Tracker) OnGateAdd(g uintptr, delta int64, st *task.State) {
	t.points.GetOrCreate(g).GateAdd(delta)
	st.Tick()
}

// OnGateDone merges st's clock into the gate's done clock.
func (t *Tracker) OnGateDone(g uintptr, st *task.State) {
	t.points.GetOrCreate(g).GateDone(st.Clock)
	st.Tick()
}

// OnGateWait orders st after every recorded Done on the gate.
func (t *Tracker) OnGateWait(g uintptr, st *task.State) {
	t.points.GetOrCreate(g).GateWaitInto(st.Clock)
	st.Tick()
}

// Reset clears all shadow state, dedup history and the race counter.
// Not safe against concurrent tracker use; test setup only.
func (t *Tracker) Reset() {
	t.cells.Reset()
	t.points.Reset()
	t.races.Store(0)
	t.samplePos.Store(0)
	t.reported.Range(func(k, _ any) bool {
		t.reported.Delete(k)
		return true
	})
}
