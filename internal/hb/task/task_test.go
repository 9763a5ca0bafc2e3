package task

import (
	"sync"
	"testing"

	"github.com/racelens/racelens/internal/hb/stamp"
)

func TestStateTickInvariant(t *testing.T) {
	s := NewState(3)
	if s.Now != stamp.Make(3, 1) {
		t.Fatalf("fresh state Now = %v, want %v", s.Now, stamp.Make(3, 1))
	}
	for i := 2; i <= 5; i++ {
		s.Tick()
		want := stamp.Make(3, uint64(i))
		if s.Now != want {
			t.Fatalf("at clock %d Now = %v, want %v", i, s.Now, want)
		}
		if s.Clock.At(3) != uint64(i) {
			t.Fatalf("at clock %d Clock.At(3) = %d", i, s.Clock.At(3))
		}
	}
}

func TestFreshStateStampIsNonZero(t *testing.T) {
	// Task 0 at time zero would pack to the zero stamp, the shadow cells'
	// never-accessed sentinel. Fresh states must never produce it.
	if NewState(0).Now == 0 {
		t.Fatal("fresh state for task 0 has the zero stamp")
	}
}

func TestCurrentIsStablePerGoroutine(t *testing.T) {
	r := NewRegistry()
	a := r.Current()
	b := r.Current()
	if a != b {
		t.Error("Current returned distinct states on one goroutine")
	}
	if r.Size() != 1 {
		t.Errorf("Size = %d, want 1", r.Size())
	}
}

func TestCurrentDistinctAcrossGoroutines(t *testing.T) {
	r := NewRegistry()
	mine := r.Current()

	var theirs *State
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		theirs = r.Current()
	}()
	wg.Wait()

	if theirs == nil {
		t.Fatal("no state for second goroutine")
	}
	if theirs == mine || theirs.ID == mine.ID {
		t.Errorf("two goroutines share state: ids %d and %d", mine.ID, theirs.ID)
	}
}

func TestReleaseRecyclesID(t *testing.T) {
	r := NewRegistry()

	var first uint16
	run := func(out *uint16) {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			*out = r.Current().ID
			r.Release()
		}()
		wg.Wait()
	}

	run(&first)
	var second uint16
	run(&second)

	if first != second {
		t.Errorf("released ID not recycled: first %d, second %d", first, second)
	}
	if r.Size() != 0 {
		t.Errorf("Size after releases = %d, want 0", r.Size())
	}
}

func TestReleaseUntrackedIsSafe(t *testing.T) {
	r := NewRegistry()
	r.Release() // never tracked; must not panic
	if r.Size() != 0 {
		t.Errorf("Size = %d, want 0", r.Size())
	}
}

func TestReset(t *testing.T) {
	r := NewRegistry()
	id := r.Current().ID
	r.Reset()
	if r.Size() != 0 {
		t.Fatalf("Size after Reset = %d, want 0", r.Size())
	}
	if got := r.Current().ID; got != id {
		t.Errorf("ID space not reset: got %d, want %d", got, id)
	}
}

func TestGoroutineID(t *testing.T) {
	if goroutineID() <= 0 {
		t.Errorf("goroutineID = %d, want positive", goroutineID())
	}

	var other int64
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		other = goroutineID()
	}()
	wg.Wait()
	if other == goroutineID() {
		t.Error("distinct goroutines reported the same ID")
	}
}
