//go:build !race

// These tests execute a real data race on purpose and are excluded under
// the race detector.

package harness_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racelens/racelens/counter"
	"github.com/racelens/racelens/harness"
)

func racyScenario() harness.Scenario {
	return harness.Scenario{
		Name:       "racy",
		New:        func() counter.Counter { return counter.NewRacy() },
		Workers:    2,
		Increments: 1,
	}
}

func TestRunRacyIsFlagged(t *testing.T) {
	// The workers share no happens-before edge, so the tracker's verdict
	// does not depend on how the schedule happened to land.
	res, err := harness.Run(context.Background(), racyScenario())
	require.NoError(t, err)
	assert.Positive(t, res.Races)
	assert.GreaterOrEqual(t, res.Final, int64(1))
	assert.LessOrEqual(t, res.Final, int64(2))
}

func TestTrialsRacyEnvelope(t *testing.T) {
	s := racyScenario()
	d, err := harness.Trials(context.Background(), s, 50)
	require.NoError(t, err)

	assert.Equal(t, 50, d.Trials)
	assert.Equal(t, 50, d.RacyRuns, "every run shares the same missing ordering")
	assert.GreaterOrEqual(t, d.Min(), int64(1))
	assert.LessOrEqual(t, d.Max(), s.Expected())
}
