package counter

import (
	"sync"
	"unsafe"

	"github.com/racelens/racelens/hb"
)

// Locked is remediation (b): a mutex guards every access, so increments are
// mutually exclusive critical sections and each one observes the previous
// one's store.
type Locked struct {
	mu sync.Mutex
	n  int64
}

// NewLocked returns a zeroed mutex-guarded counter.
func NewLocked() *Locked {
	return &Locked{}
}

// Inc adds one under the lock.
func (c *Locked) Inc() {
	c.Add(1)
}

// Add adds delta under the lock.
func (c *Locked) Add(delta int64) {
	c.mu.Lock()
	hb.Acquire(unsafe.Pointer(&c.mu))

	hb.Read(unsafe.Pointer(&c.n))
	hb.Write(unsafe.Pointer(&c.n))
	c.n += delta

	hb.Release(unsafe.Pointer(&c.mu))
	c.mu.Unlock()
}

// Value reads the tally under the lock.
func (c *Locked) Value() int64 {
	c.mu.Lock()
	hb.Acquire(unsafe.Pointer(&c.mu))

	hb.Read(unsafe.Pointer(&c.n))
	v := c.n

	hb.Release(unsafe.Pointer(&c.mu))
	c.mu.Unlock()
	return v
}
