// Package config loads the engine's job/algorithm/storage configuration
// (§6.4) from a YAML document, the closest pack-grounded substitute for
// the original TOML format (no TOML library appears anywhere in the
// retrieved example pack).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Job configures how many generations to run and when to stop.
type Job struct {
	NumGenerations       uint16 `yaml:"num_generations"`
	NumParticles         uint32 `yaml:"num_particles"`
	TerminateAtTargetGen bool   `yaml:"terminate_at_target_gen"`
}

// Algorithm configures the tolerance-descent percentile and the
// consecutive-failure budget before the driver gives up.
type Algorithm struct {
	ToleranceDescentPercentile int `yaml:"tolerance_descent_percentile"`
	MaxNumFailures             int `yaml:"max_num_failures"`
}

// Storage configures where the object store is rooted. Bucket supports
// shell-style $VAR / ${VAR} references, expanded against the process
// environment at load time.
type Storage struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// Config is the engine's frozen, validated configuration document.
type Config struct {
	Job       Job       `yaml:"job"`
	Algorithm Algorithm `yaml:"algorithm"`
	Storage   Storage   `yaml:"storage"`
}

// RootDir joins Storage.Bucket and Storage.Prefix into the single path
// a local-filesystem-backed store is rooted at.
func (c Config) RootDir() string {
	return filepath.Join(c.Storage.Bucket, c.Storage.Prefix)
}

// Load reads and validates a Config from path, expanding Storage.Bucket
// against the process environment.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a Config from raw YAML bytes.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Storage.Bucket = os.Expand(cfg.Storage.Bucket, os.Getenv)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Job.NumGenerations == 0 {
		return fmt.Errorf("job.num_generations must be > 0")
	}
	if c.Job.NumParticles == 0 {
		return fmt.Errorf("job.num_particles must be > 0")
	}
	if c.Algorithm.ToleranceDescentPercentile < 0 || c.Algorithm.ToleranceDescentPercentile > 100 {
		return fmt.Errorf("algorithm.tolerance_descent_percentile must be within 0..100, got %d", c.Algorithm.ToleranceDescentPercentile)
	}
	if c.Algorithm.MaxNumFailures <= 0 {
		return fmt.Errorf("algorithm.max_num_failures must be > 0")
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket must be set")
	}
	if c.Storage.Prefix == "" {
		return fmt.Errorf("storage.prefix must be set")
	}
	return nil
}
