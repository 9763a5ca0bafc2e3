package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarioFor(t *testing.T) {
	for _, name := range []string{"racy", "atomic", "locked", "owned"} {
		s, err := scenarioFor(name, 2, 1)
		require.NoError(t, err, name)
		assert.Equal(t, name, s.Name)
		assert.NotNil(t, s.New)
		assert.Equal(t, int64(2), s.Expected())
	}

	_, err := scenarioFor("hopeful", 2, 1)
	assert.ErrorContains(t, err, "hopeful")
}

func TestSplitRunArgs(t *testing.T) {
	srcs, args, err := splitRunArgs([]string{"main.go", "util.go", "--flag", "x.go"})
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go", "util.go"}, srcs)
	// Once program args start, even .go-looking strings belong to the program.
	assert.Equal(t, []string{"--flag", "x.go"}, args)

	_, _, err = splitRunArgs([]string{"--flag"})
	assert.Error(t, err)
}

func TestFindRuntimeRootMissing(t *testing.T) {
	_, err := findRuntimeRoot(t.TempDir())
	assert.ErrorContains(t, err, "racelens")
}

func TestFindRuntimeRootFromModule(t *testing.T) {
	// The test binary runs inside the repository, so walking up from the
	// package directory must find the module root.
	root, err := findRuntimeRoot(".")
	require.NoError(t, err)
	assert.NotEmpty(t, root)
}

func TestVersionCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "racelens")
	assert.Contains(t, out.String(), "algorithm:")
}

func TestUnknownCounterFailsCleanly(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"demo", "hopeful"})
	assert.Error(t, root.Execute())
}

func TestDemoLockedCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"demo", "locked", "--workers", "2", "--increments", "3"})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "final:    6 (expected 6)")
	assert.Contains(t, out.String(), "races:    0")
}

func TestTrialsLockedCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"trials", "locked", "-n", "5"})
	require.NoError(t, root.Execute())

	line := out.String()
	assert.Contains(t, line, "locked")
	assert.Contains(t, line, "2:5 (5 trials, 0 racy)")
}

func TestBadLogLevelRejected(t *testing.T) {
	root := newRootCommand()
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"--log-level", "shouting", "version"})
	err := root.Execute()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "shouting") || strings.Contains(err.Error(), "log-level"))
}
