// Package shadow stores the access history of tracked memory locations.
//
// Every tracked address owns a Cell recording the last write and the read
// state of that location. Read state is adaptive: a single scalar stamp while
// one task (or a happens-before-ordered chain of tasks) is reading, promoted
// to a full vector clock once genuinely concurrent readers appear, and
// demoted back to a stamp by the next write. The scalar representation is the
// common case and keeps a cell at two words.
package shadow

import (
	"sync"

	"github.com/racelens/racelens/internal/hb/clock"
	"github.com/racelens/racelens/internal/hb/stamp"
)

// Cell is the shadow state of one memory location.
type Cell struct {
	// Write is the stamp of the last write. Zero means never written.
	// Only the tracker goroutine-side logic mutates it, under the cell lock
	// held by the caller via the exported accessors where needed; the write
	// stamp itself is read and written inside track's per-call flow.
	Write stamp.Stamp

	mu sync.Mutex

	// readStamp is the last read while the cell is unpromoted. Zero means
	// no read since the last write.
	readStamp stamp.Stamp

	// readVec is non-nil once concurrent readers have been observed.
	// While non-nil it supersedes readStamp.
	readVec *clock.Vector

	// writePC and readPC remember where the recorded accesses happened,
	// for race reports. Best effort; zero when unknown.
	writePC uintptr
	readPC  uintptr
}

// NewCell returns a cell representing a never-accessed location.
func NewCell() *Cell {
	return &Cell{}
}

// Promoted reports whether the cell tracks readers with a full vector.
func (c *Cell) Promoted() bool {
	c.mu.Lock()
	p := c.readVec != nil
	c.mu.Unlock()
	return p
}

// ReadStamp returns the scalar read record. Zero when promoted or unread.
func (c *Cell) ReadStamp() stamp.Stamp {
	c.mu.Lock()
	s := c.readStamp
	c.mu.Unlock()
	return s
}

// SetReadStamp records a scalar read. No-op when the cell is promoted;
// the vector already covers the reader.
func (c *Cell) SetReadStamp(s stamp.Stamp, pc uintptr) {
	c.mu.Lock()
	if c.readVec == nil {
		c.readStamp = s
		c.readPC = pc
	}
	c.mu.Unlock()
}

// ReadVec returns the promoted read vector, or nil while unpromoted.
func (c *Cell) ReadVec() *clock.Vector {
	c.mu.Lock()
	rv := c.readVec
	c.mu.Unlock()
	return rv
}

// Promote switches the cell to vector-tracked reads. The existing scalar
// read (if any) is folded into the new vector along with the promoting
// reader's clock.
func (c *Cell) Promote(reader *clock.Vector, pc uintptr) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rv := clock.New()
	if c.readStamp != 0 {
		id, t := c.readStamp.Split()
		rv.Put(id, t)
	}
	rv.Merge(reader)
	c.readVec = rv
	c.readStamp = 0
	c.readPC = pc
}

// MergeReaders folds another reader's clock into the promoted vector.
// Caller must have observed Promoted() == true.
func (c *Cell) MergeReaders(reader *clock.Vector, pc uintptr) {
	c.mu.Lock()
	if c.readVec != nil {
		c.readVec.Merge(reader)
		c.readPC = pc
	}
	c.mu.Unlock()
}

// Demote clears all read state. Called after a write: the write is ordered
// after every read it did not race with, so prior reads are subsumed.
func (c *Cell) Demote() {
	c.mu.Lock()
	c.readStamp = 0
	c.readVec = nil
	c.readPC = 0
	c.mu.Unlock()
}

// RecordWritePC remembers the site of the last write for reporting.
func (c *Cell) RecordWritePC(pc uintptr) {
	c.mu.Lock()
	c.writePC = pc
	c.mu.Unlock()
}

// WritePC returns the site of the last write, zero when unknown.
func (c *Cell) WritePC() uintptr {
	c.mu.Lock()
	pc := c.writePC
	c.mu.Unlock()
	return pc
}

// ReadPC returns the site of the last recorded read, zero when unknown.
func (c *Cell) ReadPC() uintptr {
	c.mu.Lock()
	pc := c.readPC
	c.mu.Unlock()
	return pc
}

// Reset returns the cell to the never-accessed state.
func (c *Cell) Reset() {
	c.Write = 0
	c.Demote()
}

// String renders the cell for debugging: "W:<stamp> R:<stamp|vector>".
func (c *Cell) String() string {
	out := "W:" + c.Write.String()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readVec != nil {
		return out + " R:" + c.readVec.String() + " [shared]"
	}
	return out + " R:" + c.readStamp.String()
}
