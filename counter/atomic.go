package counter

import (
	"sync/atomic"
	"unsafe"

	"github.com/racelens/racelens/hb"
)

// Atomic is remediation (a): the increment is a single atomic
// read-modify-write, so there is no window for another task to interleave
// and every operation is totally ordered on the counter word.
//
// For the tracker, each atomic operation is one indivisible
// acquire-and-release on the counter word (hb.Sync). Atomic accesses are
// synchronization events, not data accesses, so no read or write is
// reported for the word itself.
type Atomic struct {
	n atomic.Int64
}

// NewAtomic returns a zeroed atomic counter.
func NewAtomic() *Atomic {
	return &Atomic{}
}

// Inc atomically adds one.
func (c *Atomic) Inc() {
	c.Add(1)
}

// Add atomically adds delta.
func (c *Atomic) Add(delta int64) {
	c.n.Add(delta)
	hb.Sync(unsafe.Pointer(&c.n))
}

// Value atomically reads the tally.
func (c *Atomic) Value() int64 {
	v := c.n.Load()
	hb.Sync(unsafe.Pointer(&c.n))
	return v
}
