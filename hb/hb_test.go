package hb_test

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"unsafe"

	"github.com/racelens/racelens/hb"
)

// begin resets the global tracker and points reports at a buffer. The
// tracker is process-wide, so these tests rely on the package's sequential
// test execution.
func begin(t *testing.T) *bytes.Buffer {
	t.Helper()
	hb.Reset()
	var buf bytes.Buffer
	hb.SetReportWriter(&buf)
	hb.Enable()
	t.Cleanup(func() {
		hb.Disable()
		hb.Reset()
		hb.SetReportWriter(io.Discard)
	})
	return &buf
}

func TestDetectsUnsyncedAccesses(t *testing.T) {
	buf := begin(t)

	// The goroutines are sequenced by a real channel, but that channel is
	// never reported to the tracker, so the two writes are logically
	// concurrent: exactly the situation of a program whose synchronization
	// the author believes in but never established.
	var x int
	done := make(chan struct{})
	go func() {
		defer hb.TaskExit()
		hb.Write(unsafe.Pointer(&x))
		x = 1
		close(done)
	}()
	<-done

	hb.Write(unsafe.Pointer(&x))
	x = 2

	if got := hb.Races(); got != 1 {
		t.Fatalf("Races = %d, want 1", got)
	}
	if !strings.Contains(buf.String(), "WARNING: DATA RACE") {
		t.Errorf("no report emitted:\n%s", buf.String())
	}
}

func TestDisabledHooksAreNoops(t *testing.T) {
	begin(t)
	hb.Disable()

	var x int
	done := make(chan struct{})
	go func() {
		hb.Write(unsafe.Pointer(&x))
		x = 1
		close(done)
	}()
	<-done
	hb.Write(unsafe.Pointer(&x))
	x = 2

	if got := hb.Races(); got != 0 {
		t.Fatalf("Races with tracking disabled = %d, want 0", got)
	}
}

func TestMutexHooksOrderCriticalSections(t *testing.T) {
	buf := begin(t)

	var (
		mu sync.Mutex
		x  int
		wg sync.WaitGroup
	)
	gate := unsafe.Pointer(&wg)
	wg.Add(2)
	hb.GateAdd(gate, 2)
	for i := 0; i < 2; i++ {
		go func() {
			defer hb.TaskExit()
			defer func() {
				hb.GateDone(gate)
				wg.Done()
			}()
			mu.Lock()
			hb.Acquire(unsafe.Pointer(&mu))
			hb.Read(unsafe.Pointer(&x))
			hb.Write(unsafe.Pointer(&x))
			x++
			hb.Release(unsafe.Pointer(&mu))
			mu.Unlock()
		}()
	}
	wg.Wait()
	hb.GateWait(gate)

	hb.Read(unsafe.Pointer(&x))
	if x != 2 {
		t.Fatalf("x = %d, want 2", x)
	}
	if got := hb.Races(); got != 0 {
		t.Fatalf("Races = %d, want 0; output:\n%s", got, buf.String())
	}
}

func TestChannelHooksOrderHandoff(t *testing.T) {
	buf := begin(t)

	var x int
	ch := make(chan struct{})
	go func() {
		defer hb.TaskExit()
		hb.Write(unsafe.Pointer(&x))
		x = 42
		hb.ChanSend(unsafe.Pointer(&ch))
		ch <- struct{}{}
	}()
	<-ch
	hb.ChanRecv(unsafe.Pointer(&ch))

	hb.Read(unsafe.Pointer(&x))
	if x != 42 {
		t.Fatalf("x = %d, want 42", x)
	}
	if got := hb.Races(); got != 0 {
		t.Fatalf("Races = %d, want 0; output:\n%s", got, buf.String())
	}
}

func TestShutdownSummary(t *testing.T) {
	buf := begin(t)

	var x int
	done := make(chan struct{})
	go func() {
		defer hb.TaskExit()
		hb.Write(unsafe.Pointer(&x))
		x = 1
		close(done)
	}()
	<-done
	hb.Write(unsafe.Pointer(&x))
	x = 2

	hb.Shutdown()
	if !strings.Contains(buf.String(), "Found 1 data race(s)") {
		t.Errorf("summary missing:\n%s", buf.String())
	}
	if hb.Enabled() {
		t.Error("Shutdown left tracking enabled")
	}
}

func TestAbout(t *testing.T) {
	info := hb.About()
	if info.Version != hb.Version {
		t.Errorf("About().Version = %q, want %q", info.Version, hb.Version)
	}
	if info.Algorithm == "" {
		t.Error("About().Algorithm is empty")
	}
}
