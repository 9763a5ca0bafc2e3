// Package stamp implements scalar logical timestamps.
//
// A Stamp is a task ID and a clock value packed into one uint64. The tracker
// keeps a stamp (not a vector) as the last-write and last-read record of most
// variables, which makes the common happens-before check a single array index
// and compare against the observer's vector clock.
package stamp

import (
	"strconv"

	"github.com/racelens/racelens/internal/hb/clock"
)

// Stamp packs a task ID and clock value.
// Layout: [task:16][clock:48]. The zero Stamp means "never accessed".
type Stamp uint64

const (
	// taskBits is the width of the task ID field.
	taskBits = 16

	// clockBits is the width of the clock field. 48 bits of logical time is
	// effectively unbounded for a single process.
	clockBits = 48

	// clockMask extracts the clock field.
	clockMask = (1 << clockBits) - 1
)

// Make builds a stamp from a task ID and clock value. Clocks beyond 48 bits
// are truncated.
func Make(id uint16, t uint64) Stamp {
	return Stamp(uint64(id)<<clockBits | (t & clockMask))
}

// Split extracts the task ID and clock value.
func (s Stamp) Split() (id uint16, t uint64) {
	return uint16(s >> clockBits), uint64(s) & clockMask
}

// Task returns only the task ID field.
func (s Stamp) Task() uint16 {
	return uint16(s >> clockBits)
}

// Before reports whether the access stamped s happened before the state
// described by vc: the stamping task's clock at the time of the access must
// be visible in vc. This is the O(1) check the whole tracker leans on.
func (s Stamp) Before(vc *clock.Vector) bool {
	id, t := s.Split()
	return t <= vc.At(id)
}

// Same reports stamp equality (same task, same clock).
func (s Stamp) Same(other Stamp) bool {
	return s == other
}

// String renders "clock@task", e.g. "42@3". Report output only.
func (s Stamp) String() string {
	id, t := s.Split()
	return strconv.FormatUint(t, 10) + "@" + strconv.FormatUint(uint64(id), 10)
}
