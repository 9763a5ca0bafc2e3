// Package task carries per-goroutine tracking state.
//
// Every goroutine the tracker observes gets a State: a compact task ID, a
// vector clock, and a cached scalar stamp of its own clock entry. The
// Registry maps runtime goroutine IDs to States and recycles task IDs when
// goroutines are released, keeping the ID space dense.
package task

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"

	"github.com/racelens/racelens/internal/hb/clock"
	"github.com/racelens/racelens/internal/hb/stamp"
)

// State is the tracking state of one goroutine.
//
// Invariant: Now always equals stamp.Make(ID, Clock.At(ID)). Tick maintains
// it; nothing else may touch the clock entry for ID.
type State struct {
	// ID is the tracker-assigned task ID, distinct from the runtime
	// goroutine ID.
	ID uint16

	// Clock is this task's view of logical time across all tasks.
	Clock *clock.Vector

	// Now caches stamp.Make(ID, Clock.At(ID)). Every access check reads it;
	// keeping it materialized avoids touching the vector on the fast path.
	Now stamp.Stamp
}

// NewState returns the state of a freshly observed task. Clocks start at 1:
// a task at time zero would stamp its accesses with the zero Stamp, which is
// the shadow cells' never-accessed sentinel.
func NewState(id uint16) *State {
	c := clock.New()
	c.Put(id, 1)
	return &State{
		ID:    id,
		Clock: c,
		Now:   stamp.Make(id, 1),
	}
}

// Tick advances this task's logical time and refreshes the cached stamp.
func (s *State) Tick() {
	s.Clock.Tick(s.ID)
	s.Now = stamp.Make(s.ID, s.Clock.At(s.ID))
}

// Registry maps runtime goroutine IDs to task States.
//
// States are created lazily on a goroutine's first tracked operation and
// live until Release is called for that goroutine (or forever, for
// goroutines that never announce exit — a bounded leak of one State each).
type Registry struct {
	states sync.Map // int64 goroutine id -> *State

	mu     sync.Mutex
	nextID uint16
	free   []uint16 // recycled task IDs, LIFO
}

// NewRegistry returns an empty registry. Task IDs start at zero.
func NewRegistry() *Registry {
	return &Registry{}
}

// Current returns the State for the calling goroutine, creating it on first
// use.
func (r *Registry) Current() *State {
	gid := goroutineID()
	if v, ok := r.states.Load(gid); ok {
		return v.(*State)
	}
	st := NewState(r.allocID())
	if v, loaded := r.states.LoadOrStore(gid, st); loaded {
		// Lost a create race with ourselves via reentrancy; keep the stored
		// one and return the allocated ID to the pool.
		r.freeID(st.ID)
		return v.(*State)
	}
	return st
}

// Release forgets the calling goroutine's State and recycles its task ID.
// Called when an instrumented goroutine exits; safe to call when the
// goroutine was never tracked.
func (r *Registry) Release() {
	gid := goroutineID()
	if v, ok := r.states.LoadAndDelete(gid); ok {
		r.freeID(v.(*State).ID)
	}
}

// Size returns the number of live States. Diagnostics only.
func (r *Registry) Size() int {
	n := 0
	r.states.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Reset drops all states and the ID pool. Test use only.
func (r *Registry) Reset() {
	r.states = sync.Map{}
	r.mu.Lock()
	r.nextID = 0
	r.free = nil
	r.mu.Unlock()
}

func (r *Registry) allocID() uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.free); n > 0 {
		id := r.free[n-1]
		r.free = r.free[:n-1]
		return id
	}
	id := r.nextID
	if int(r.nextID)+1 < clock.MaxTasks {
		r.nextID++
	}
	return id
}

func (r *Registry) freeID(id uint16) {
	r.mu.Lock()
	r.free = append(r.free, id)
	r.mu.Unlock()
}

// goroutineID extracts the runtime goroutine ID by parsing the header of
// runtime.Stack output ("goroutine 18 [running]:"). Slow (~µs) but portable;
// the result is looked up once and the State cached thereafter, so the parse
// cost is paid only on a goroutine's first tracked operation.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	header := buf[:n]

	header = bytes.TrimPrefix(header, []byte("goroutine "))
	if i := bytes.IndexByte(header, ' '); i >= 0 {
		header = header[:i]
	}
	id, err := strconv.ParseInt(string(header), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
