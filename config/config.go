// Package config loads racelens CLI configuration from a YAML file.
//
// Everything has a working default; a config file only overrides what it
// names. Example:
//
//	log_level: debug
//	trials: 200
//	workers: 2
//	increments: 1
//	report: discard
//	sampling:
//	  enabled: true
//	  rate: 10
package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Sampling configures access sampling in the tracker.
type Sampling struct {
	// Enabled turns sampling on.
	Enabled bool `yaml:"enabled"`

	// Rate checks one in Rate accesses. Ignored unless Enabled.
	Rate uint64 `yaml:"rate"`
}

// Config is the full CLI configuration.
type Config struct {
	// LogLevel is a logrus level name: trace, debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogJSON switches log output to JSON.
	LogJSON bool `yaml:"log_json"`

	// Trials is the number of runs per scenario for the trials command.
	Trials int `yaml:"trials"`

	// Workers is the number of concurrent incrementing goroutines.
	Workers int `yaml:"workers"`

	// Increments is how many increments each worker performs.
	Increments int `yaml:"increments"`

	// Report selects where race reports go: "stderr" (default) or
	// "discard" to suppress them and keep only the counts.
	Report string `yaml:"report"`

	// Sampling configures tracker access sampling.
	Sampling Sampling `yaml:"sampling"`
}

// Default returns the configuration used when no file is given: the
// canonical two workers × one increment shape, 100 trials, info logging,
// no sampling.
func Default() Config {
	return Config{
		LogLevel:   "info",
		Trials:     100,
		Workers:    2,
		Increments: 1,
		Report:     "stderr",
	}
}

// Load reads path and overlays it on the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.Trials <= 0 {
		return fmt.Errorf("trials: must be positive, got %d", c.Trials)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers: must be positive, got %d", c.Workers)
	}
	if c.Increments <= 0 {
		return fmt.Errorf("increments: must be positive, got %d", c.Increments)
	}
	switch c.Report {
	case "", "stderr", "discard":
	default:
		return fmt.Errorf("report: want stderr or discard, got %q", c.Report)
	}
	if c.Sampling.Enabled && c.Sampling.Rate == 0 {
		return fmt.Errorf("sampling.rate: must be positive when sampling is enabled")
	}
	return nil
}

// DiscardReports reports whether race report output is suppressed.
func (c Config) DiscardReports() bool {
	return c.Report == "discard"
}

// Level returns the parsed logrus level. Call after Validate.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// SampleRate returns the effective tracker sample rate: 1 (check every
// access) unless sampling is enabled.
func (c Config) SampleRate() uint64 {
	if !c.Sampling.Enabled {
		return 1
	}
	return c.Sampling.Rate
}
