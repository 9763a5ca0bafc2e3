// Package clock implements vector clocks for happens-before tracking.
//
// A Vector holds one logical clock per task. Most tracker operations run on
// scalar stamps (package stamp); the full vector is consulted only when a
// variable is read by concurrent tasks or when a synchronization edge is
// established. Merge is the synchronization operation (point-wise maximum),
// LessOrEqual is the partial-order check behind every race decision.
package clock

import "strconv"

// MaxTasks bounds the task ID space. 16-bit IDs are enough for any realistic
// goroutine population once IDs are recycled (see internal/hb/task).
const MaxTasks = 1 << 16

// Vector is logical time across tasks: entry i is the last known clock of
// task i. Vectors grow on demand; an index beyond the current length reads
// as zero.
type Vector struct {
	ticks []uint64
}

// New returns an empty vector. All tasks start at time zero.
func New() *Vector {
	return &Vector{}
}

// grow extends the backing slice so index id is addressable.
func (v *Vector) grow(id uint16) {
	if int(id) < len(v.ticks) {
		return
	}
	ticks := make([]uint64, int(id)+1)
	copy(ticks, v.ticks)
	v.ticks = ticks
}

// At returns the clock for task id. Missing entries are zero.
func (v *Vector) At(id uint16) uint64 {
	if int(id) >= len(v.ticks) {
		return 0
	}
	return v.ticks[id]
}

// Put sets the clock for task id.
func (v *Vector) Put(id uint16, t uint64) {
	v.grow(id)
	v.ticks[id] = t
}

// Tick advances the clock for task id by one.
func (v *Vector) Tick(id uint16) {
	v.grow(id)
	v.ticks[id]++
}

// Merge folds other into v point-wise: v[i] = max(v[i], other[i]).
// This is the join used on every acquire/receive/wait edge.
func (v *Vector) Merge(other *Vector) {
	if other == nil {
		return
	}
	if len(other.ticks) > len(v.ticks) {
		v.grow(uint16(len(other.ticks) - 1))
	}
	for i, t := range other.ticks {
		if t > v.ticks[i] {
			v.ticks[i] = t
		}
	}
}

// LessOrEqual reports whether v ⊑ other, i.e. v[i] <= other[i] for all i.
// This is the happens-before relation on vectors.
func (v *Vector) LessOrEqual(other *Vector) bool {
	for i, t := range v.ticks {
		if t == 0 {
			continue
		}
		if other == nil || i >= len(other.ticks) || t > other.ticks[i] {
			return false
		}
	}
	return true
}

// Dominates reports whether every entry of other is <= the matching entry
// of v. Equivalent to other.LessOrEqual(v) but tolerates a nil receiver
// argument shape used at call sites.
func (v *Vector) Dominates(other *Vector) bool {
	if other == nil {
		return true
	}
	return other.LessOrEqual(v)
}

// CopyFrom overwrites v with the contents of other, reusing the backing
// slice when it is large enough. Used when a release edge republishes a
// task's clock without allocating.
func (v *Vector) CopyFrom(other *Vector) {
	if other == nil {
		return
	}
	if cap(v.ticks) < len(other.ticks) {
		v.ticks = make([]uint64, len(other.ticks))
	}
	v.ticks = v.ticks[:len(other.ticks)]
	copy(v.ticks, other.ticks)
}

// Clone returns an independent copy of v.
func (v *Vector) Clone() *Vector {
	c := &Vector{}
	c.CopyFrom(v)
	return c
}

// String renders non-zero entries as "{id:clock, ...}". Debug and report
// output only, never on the access path.
func (v *Vector) String() string {
	out := "{"
	first := true
	for i, t := range v.ticks {
		if t == 0 {
			continue
		}
		if !first {
			out += ", "
		}
		first = false
		out += strconv.Itoa(i) + ":" + strconv.FormatUint(t, 10)
	}
	return out + "}"
}
