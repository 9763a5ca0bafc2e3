// Package harness drives counter implementations through concurrent
// increment scenarios and measures what actually happens.
//
// A Scenario is N workers each performing M increments on a fresh counter.
// One Run yields the final tally and the tracker's race verdict for that
// execution; Trials repeats the run and accumulates the distribution of
// final values. For a safe counter the distribution is a single point at
// N*M. For the racy counter it is a spread — which is the observable,
// repeatable fact about a data race, where any single execution's outcome
// is not.
package harness

import (
	"context"
	"fmt"
	"io"
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/racelens/racelens/counter"
	"github.com/racelens/racelens/hb"
)

// log is the package logger. Callers that want harness chatter routed
// elsewhere swap it via SetLogger.
var log = logrus.StandardLogger()

// SetLogger replaces the package logger.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		log = l
	}
}

// Scenario describes one concurrent increment workload.
type Scenario struct {
	// Name labels the scenario in logs and CLI output.
	Name string

	// New constructs a fresh counter for each run.
	New func() counter.Counter

	// Workers is the number of concurrent incrementing goroutines.
	Workers int

	// Increments is how many times each worker calls Inc.
	Increments int
}

// Expected is the tally a correct counter must reach.
func (s Scenario) Expected() int64 {
	return int64(s.Workers) * int64(s.Increments)
}

func (s Scenario) validate() error {
	if s.New == nil {
		return fmt.Errorf("scenario %q: nil counter constructor", s.Name)
	}
	if s.Workers <= 0 {
		return fmt.Errorf("scenario %q: workers must be positive, got %d", s.Name, s.Workers)
	}
	if s.Increments <= 0 {
		return fmt.Errorf("scenario %q: increments must be positive, got %d", s.Name, s.Increments)
	}
	return nil
}

// Result is the outcome of a single run.
type Result struct {
	// Final is the tally observed after all workers finished.
	Final int64

	// Races is the number of distinct races the tracker reported during
	// the run.
	Races int
}

// Run executes one scenario under the tracker and returns its outcome.
//
// The tracker is reset at the start of the run, so Races in the result
// belongs to this run alone. Runs must not overlap; the harness is a
// sequential measuring instrument around concurrent subjects.
func Run(ctx context.Context, s Scenario) (Result, error) {
	if err := s.validate(); err != nil {
		return Result{}, err
	}

	hb.Reset()
	hb.Enable()
	defer hb.Disable()

	c := s.New()

	// The worker join is real synchronization (errgroup.Wait), so it is
	// declared to the tracker as a gate. Without this the final Value read
	// would look unordered with worker writes and every scenario, safe or
	// not, would be flagged.
	var gate struct{}
	gptr := unsafe.Pointer(&gate)
	hb.GateAdd(gptr, int64(s.Workers))

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < s.Workers; w++ {
		g.Go(func() error {
			defer hb.TaskExit()
			defer hb.GateDone(gptr)
			for i := 0; i < s.Increments; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				c.Inc()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("scenario %q: %w", s.Name, err)
	}
	hb.GateWait(gptr)

	// Owner-backed counters are shut down before the final read so the
	// tally is frozen and their goroutine is gone.
	if closer, ok := c.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return Result{}, fmt.Errorf("scenario %q: close counter: %w", s.Name, err)
		}
	}

	res := Result{
		Final: c.Value(),
		Races: hb.Races(),
	}
	log.WithFields(logrus.Fields{
		"scenario": s.Name,
		"final":    res.Final,
		"expected": s.Expected(),
		"races":    res.Races,
	}).Debug("run complete")
	return res, nil
}
