package counter

import (
	"unsafe"

	"github.com/racelens/racelens/hb"
)

// Racy is the bug under study: a shared integer incremented by plain
// read-modify-write with no synchronization whatsoever.
//
// Two goroutines calling Inc once each can leave Value at 1 (both read zero,
// both store one) or 2 (the increments happened to serialize). Under N
// workers doing M increments each, the final value lands anywhere in
// [1, N*M]; asserting any single outcome is flaky by construction. Do not
// use this type for anything but demonstrating that fact.
type Racy struct {
	n int64
}

// NewRacy returns a zeroed racy counter.
func NewRacy() *Racy {
	return &Racy{}
}

// Inc performs an unsynchronized increment.
func (c *Racy) Inc() {
	c.Add(1)
}

// Add performs an unsynchronized read-modify-write. The load and store are
// deliberately split so the interleaving window is real, matching the
// canonical two-thread shared_data++ example.
func (c *Racy) Add(delta int64) {
	hb.Read(unsafe.Pointer(&c.n))
	v := c.n
	hb.Write(unsafe.Pointer(&c.n))
	c.n = v + delta
}

// Value reads the tally without synchronization. Concurrent with writers,
// the result is unspecified.
func (c *Racy) Value() int64 {
	hb.Read(unsafe.Pointer(&c.n))
	return c.n
}
