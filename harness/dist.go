package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Distribution is the spread of final tallies over repeated runs of one
// scenario.
type Distribution struct {
	// Trials is the number of runs accumulated.
	Trials int

	// Counts maps a final tally to how many runs produced it.
	Counts map[int64]int

	// RacyRuns is the number of runs in which the tracker reported at
	// least one race.
	RacyRuns int
}

// Min returns the smallest observed tally. Zero-trial distributions
// return 0.
func (d *Distribution) Min() int64 {
	first := true
	var min int64
	for v := range d.Counts {
		if first || v < min {
			min = v
			first = false
		}
	}
	return min
}

// Max returns the largest observed tally.
func (d *Distribution) Max() int64 {
	first := true
	var max int64
	for v := range d.Counts {
		if first || v > max {
			max = v
			first = false
		}
	}
	return max
}

// Always reports whether every run produced tally v. This is the assertion
// that holds for safe counters and is unstatable for racy ones.
func (d *Distribution) Always(v int64) bool {
	return d.Trials > 0 && d.Counts[v] == d.Trials
}

// String renders the distribution sorted by tally, e.g.
// "1:3 2:97 (100 trials, 100 racy)".
func (d *Distribution) String() string {
	values := make([]int64, 0, len(d.Counts))
	for v := range d.Counts {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d:%d", v, d.Counts[v])
	}
	fmt.Fprintf(&b, " (%d trials, %d racy)", d.Trials, d.RacyRuns)
	return b.String()
}

// Trials runs the scenario n times and accumulates the outcome
// distribution. The context aborts the remaining trials.
func Trials(ctx context.Context, s Scenario, n int) (*Distribution, error) {
	if n <= 0 {
		return nil, fmt.Errorf("scenario %q: trials must be positive, got %d", s.Name, n)
	}
	d := &Distribution{Counts: make(map[int64]int)}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scenario %q: trial %d: %w", s.Name, i, err)
		}
		res, err := Run(ctx, s)
		if err != nil {
			return nil, err
		}
		d.Trials++
		d.Counts[res.Final]++
		if res.Races > 0 {
			d.RacyRuns++
		}
	}
	return d, nil
}
