package counter

import (
	"sync"
	"unsafe"

	"github.com/racelens/racelens/hb"
)

// Owned is remediation (c): no goroutine but the owner ever touches the
// tally. Writers send deltas over a channel to a single aggregator
// goroutine; reads are synchronous query round-trips. Mutual exclusion falls
// out of channel semantics instead of a lock.
//
// Close stops the owner and freezes the tally; Inc and Add after Close panic
// (send on closed channel), matching the usual channel-ownership contract.
type Owned struct {
	deltas  chan int64
	queries chan chan int64

	// idle is closed when the owner goroutine has exited.
	idle chan struct{}

	// final is the frozen tally, written by the owner before exit and
	// readable after idle is closed.
	final int64

	closeOnce sync.Once
}

// NewOwned returns a zeroed counter and starts its owner goroutine.
func NewOwned() *Owned {
	c := &Owned{
		deltas:  make(chan int64),
		queries: make(chan chan int64),
		idle:    make(chan struct{}),
	}
	go c.own()
	return c
}

// own is the aggregator loop. It is the only code that reads or writes the
// running total, which is what the tracker verifies.
func (c *Owned) own() {
	defer hb.TaskExit()

	var total int64
	for {
		select {
		case d, ok := <-c.deltas:
			if !ok {
				// Observing the closed deltas channel orders the owner
				// after Close; closing idle publishes the final tally to
				// whoever observes it.
				hb.ChanRecv(unsafe.Pointer(&c.deltas))
				c.final = total
				hb.ChanClose(unsafe.Pointer(&c.idle))
				close(c.idle)
				return
			}
			hb.ChanRecv(unsafe.Pointer(&c.deltas))
			hb.Read(unsafe.Pointer(&total))
			hb.Write(unsafe.Pointer(&total))
			total += d

		case reply := <-c.queries:
			hb.ChanRecv(unsafe.Pointer(&c.queries))
			hb.Read(unsafe.Pointer(&total))
			hb.ChanSend(unsafe.Pointer(&c.queries))
			reply <- total
		}
	}
}

// Inc sends a delta of one to the owner.
func (c *Owned) Inc() {
	c.Add(1)
}

// Add sends delta to the owner. Blocks until the owner accepts it, so a
// returned Add is already reflected in the tally.
func (c *Owned) Add(delta int64) {
	hb.ChanSend(unsafe.Pointer(&c.deltas))
	c.deltas <- delta
}

// Value asks the owner for the current tally. After Close it returns the
// frozen final value.
func (c *Owned) Value() int64 {
	select {
	case <-c.idle:
		hb.ChanRecv(unsafe.Pointer(&c.idle))
		return c.final
	default:
	}

	reply := make(chan int64, 1)
	select {
	case c.queries <- reply:
		// A select send cannot hook before the case commits; hooking after
		// is fine here, the owner does not depend on the asker's clock.
		hb.ChanSend(unsafe.Pointer(&c.queries))
		v := <-reply
		hb.ChanRecv(unsafe.Pointer(&c.queries))
		return v
	case <-c.idle:
		// Owner shut down between the fast check and the send.
		hb.ChanRecv(unsafe.Pointer(&c.idle))
		return c.final
	}
}

// Close stops the owner goroutine and freezes the tally. Idempotent.
// In-flight Adds that already handed their delta to the owner are counted;
// Adds issued after Close panic.
func (c *Owned) Close() error {
	c.closeOnce.Do(func() {
		hb.ChanClose(unsafe.Pointer(&c.deltas))
		close(c.deltas)
		<-c.idle
		hb.ChanRecv(unsafe.Pointer(&c.idle))
	})
	return nil
}
