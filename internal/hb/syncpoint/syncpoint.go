// Package syncpoint tracks the happens-before state of synchronization
// objects: locks, channels, and gates (WaitGroup-shaped barriers).
//
// Each object, identified by its address, owns a Point. A Point carries the
// vector clocks that synchronization edges publish: a lock's release clock, a
// channel's send/close clocks, a gate's accumulated done clock. The facets
// are allocated lazily — a Point used only as a lock never pays for channel
// state.
package syncpoint

import (
	"sync"

	"github.com/racelens/racelens/internal/hb/clock"
)

// chanFacet is the channel-shaped state of a Point.
//
// The memory model edges modelled here:
//   - a send happens-before the receive that observes it,
//   - close(ch) happens-before any receive that observes closure.
//
// All channels are treated as unbuffered, which is conservative: it can only
// order more, never less, so no race is missed.
type chanFacet struct {
	send   *clock.Vector // last sender's clock
	recv   *clock.Vector // last receiver's clock, kept for symmetry
	closed *clock.Vector // closer's clock, nil until closed
}

// gateFacet is the barrier-shaped state of a Point (sync.WaitGroup).
// Every Done merges the finishing task's clock into done; Wait merges done
// into the waiter. The counter mirrors Add/Done balance for diagnostics.
type gateFacet struct {
	done    *clock.Vector
	counter int64
}

// Point is the tracked state of one synchronization object.
//
// Points are stored in a Table and mutated under the Point's own lock, so
// concurrent operations on the same object serialize here exactly as they do
// on the real primitive.
type Point struct {
	mu sync.Mutex

	// release is the clock published by the last release (unlock).
	// nil until the object has been released once.
	release *clock.Vector

	ch   *chanFacet
	gate *gateFacet
}

// AcquireInto merges the point's release clock into vc, ordering the caller
// after the last release. No-op when the object was never released.
func (p *Point) AcquireInto(vc *clock.Vector) {
	p.mu.Lock()
	vc.Merge(p.release)
	p.mu.Unlock()
}

// Release publishes vc as the point's release clock, replacing any previous
// one. Subsequent acquires order after this release.
func (p *Point) Release(vc *clock.Vector) {
	p.mu.Lock()
	if p.release == nil {
		p.release = vc.Clone()
	} else {
		p.release.CopyFrom(vc)
	}
	p.mu.Unlock()
}

// Sync is acquire and release in one critical section: vc is ordered after
// the last published clock, then published back merged. Atomic operations
// are modelled with this — splitting them into separate acquire and release
// calls would let two tasks interleave between the halves and manufacture
// an ordering that the operation never had.
func (p *Point) Sync(vc *clock.Vector) {
	p.mu.Lock()
	vc.Merge(p.release)
	if p.release == nil {
		p.release = vc.Clone()
	} else {
		p.release.CopyFrom(vc)
	}
	p.mu.Unlock()
}

// ReleaseMerge folds vc into the release clock instead of replacing it.
// Used for read-unlock, where overlapping critical sections must all remain
// visible to the next writer.
func (p *Point) ReleaseMerge(vc *clock.Vector) {
	p.mu.Lock()
	if p.release == nil {
		p.release = vc.Clone()
	} else {
		p.release.Merge(vc)
	}
	p.mu.Unlock()
}

func (p *Point) chanState() *chanFacet {
	if p.ch == nil {
		p.ch = &chanFacet{}
	}
	return p.ch
}

// ChanSend records a send: the sender's clock becomes visible to receives.
// Send clocks accumulate rather than replace. With several in-flight
// senders the point cannot know which message a receive will observe, and
// merging orders the receiver after all of them — conservative in the
// direction that can only miss races, never invent them.
func (p *Point) ChanSend(vc *clock.Vector) {
	p.mu.Lock()
	ch := p.chanState()
	if ch.send == nil {
		ch.send = vc.Clone()
	} else {
		ch.send.Merge(vc)
	}
	p.mu.Unlock()
}

// ChanRecvInto orders the receiver after the last send, and after close when
// the channel is closed. The receiver's clock is recorded for symmetry.
func (p *Point) ChanRecvInto(vc *clock.Vector) {
	p.mu.Lock()
	ch := p.chanState()
	vc.Merge(ch.send)
	vc.Merge(ch.closed)
	if ch.recv == nil {
		ch.recv = vc.Clone()
	} else {
		ch.recv.CopyFrom(vc)
	}
	p.mu.Unlock()
}

// ChanClose records channel closure. The first close wins; a second close is
// a bug in the subject program and is ignored here (the runtime will panic).
func (p *Point) ChanClose(vc *clock.Vector) {
	p.mu.Lock()
	ch := p.chanState()
	if ch.closed == nil {
		ch.closed = vc.Clone()
	}
	p.mu.Unlock()
}

// ChanClosed reports whether closure has been recorded.
func (p *Point) ChanClosed() bool {
	p.mu.Lock()
	closed := p.ch != nil && p.ch.closed != nil
	p.mu.Unlock()
	return closed
}

func (p *Point) gateState() *gateFacet {
	if p.gate == nil {
		p.gate = &gateFacet{}
	}
	return p.gate
}

// GateAdd adjusts the gate counter by delta.
func (p *Point) GateAdd(delta int64) {
	p.mu.Lock()
	p.gateState().counter += delta
	p.mu.Unlock()
}

// GateDone merges a finishing task's clock into the gate's done clock and
// decrements the counter.
func (p *Point) GateDone(vc *clock.Vector) {
	p.mu.Lock()
	g := p.gateState()
	if g.done == nil {
		g.done = vc.Clone()
	} else {
		g.done.Merge(vc)
	}
	g.counter--
	p.mu.Unlock()
}

// GateWaitInto orders a waiter after every recorded Done.
func (p *Point) GateWaitInto(vc *clock.Vector) {
	p.mu.Lock()
	if p.gate != nil {
		vc.Merge(p.gate.done)
	}
	p.mu.Unlock()
}

// GateCounter returns the current Add/Done balance. Diagnostics only.
func (p *Point) GateCounter() int64 {
	p.mu.Lock()
	var n int64
	if p.gate != nil {
		n = p.gate.counter
	}
	p.mu.Unlock()
	return n
}

// Table maps synchronization-object addresses to their Points.
type Table struct {
	points sync.Map // uintptr -> *Point
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{}
}

// GetOrCreate returns the point for addr, allocating on first use.
func (t *Table) GetOrCreate(addr uintptr) *Point {
	if v, ok := t.points.Load(addr); ok {
		return v.(*Point)
	}
	v, _ := t.points.LoadOrStore(addr, &Point{})
	return v.(*Point)
}

// Lookup returns the point for addr, or nil if never used.
func (t *Table) Lookup(addr uintptr) *Point {
	v, ok := t.points.Load(addr)
	if !ok {
		return nil
	}
	return v.(*Point)
}

// Reset drops every point. Test use only.
func (t *Table) Reset() {
	t.points = sync.Map{}
}
