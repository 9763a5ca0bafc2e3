package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racelens/racelens/config"
)

func write(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "racelens.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 1, cfg.Increments)
	assert.Equal(t, 100, cfg.Trials)
	assert.Equal(t, logrus.InfoLevel, cfg.Level())
	assert.Equal(t, uint64(1), cfg.SampleRate())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := write(t, `
log_level: debug
trials: 200
sampling:
  enabled: true
  rate: 10
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, cfg.Level())
	assert.Equal(t, 200, cfg.Trials)
	assert.Equal(t, uint64(10), cfg.SampleRate())
	// Untouched fields keep their defaults.
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 1, cfg.Increments)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadBadYAML(t *testing.T) {
	_, err := config.Load(write(t, "trials: [not a number"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"bad level", func(c *config.Config) { c.LogLevel = "shouting" }},
		{"zero trials", func(c *config.Config) { c.Trials = 0 }},
		{"negative workers", func(c *config.Config) { c.Workers = -1 }},
		{"zero increments", func(c *config.Config) { c.Increments = 0 }},
		{"sampling without rate", func(c *config.Config) {
			c.Sampling.Enabled = true
			c.Sampling.Rate = 0
		}},
		{"bad report sink", func(c *config.Config) { c.Report = "syslog" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	_, err := config.Load(write(t, "workers: 0\n"))
	assert.Error(t, err)
}

func TestDiscardReports(t *testing.T) {
	cfg := config.Default()
	assert.False(t, cfg.DiscardReports())
	cfg.Report = "discard"
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.DiscardReports())
}

func TestSampleRateDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Sampling.Rate = 50 // ignored while disabled
	assert.Equal(t, uint64(1), cfg.SampleRate())

	cfg.Sampling.Enabled = true
	assert.Equal(t, uint64(50), cfg.SampleRate())
}
