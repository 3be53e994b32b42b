// Package config loads server configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/peergrade/peergrade/internal/consensus"
	"github.com/peergrade/peergrade/internal/distribution"
)

// Config holds every tunable of the server.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `env:"PEERGRADE_ADDR" envDefault:":8080"`

	// DBPath is the SQLite database file path.
	DBPath string `env:"PEERGRADE_DB_PATH" envDefault:"data/peergrade.db"`

	// JWTSecret signs and verifies API bearer tokens. Empty disables
	// authentication (local development only).
	JWTSecret string `env:"PEERGRADE_JWT_SECRET"`

	// SweepInterval is how often the patrol sweep runs.
	SweepInterval time.Duration `env:"PEERGRADE_SWEEP_INTERVAL" envDefault:"1m"`

	// Quorum is "majority" or "all".
	Quorum string `env:"PEERGRADE_QUORUM" envDefault:"majority"`

	// TeacherWeight is the teacher share of the merged ranking, in [0,1].
	TeacherWeight float64 `env:"PEERGRADE_TEACHER_WEIGHT" envDefault:"0.3"`

	// Granularity is the participation percentage unit.
	Granularity float64 `env:"PEERGRADE_GRANULARITY" envDefault:"5"`

	// CacheTTL bounds the staleness of group/submission reads.
	CacheTTL time.Duration `env:"PEERGRADE_CACHE_TTL" envDefault:"30s"`
}

// Load parses configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Quorum != consensus.QuorumMajority && c.Quorum != consensus.QuorumAll {
		return fmt.Errorf("invalid quorum %q, want %q or %q", c.Quorum, consensus.QuorumMajority, consensus.QuorumAll)
	}
	if c.TeacherWeight < 0 || c.TeacherWeight > 1 {
		return fmt.Errorf("teacher weight %v out of range [0,1]", c.TeacherWeight)
	}
	if c.Granularity <= 0 || c.Granularity > 100 {
		return fmt.Errorf("granularity %v out of range (0,100]", c.Granularity)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %v", c.SweepInterval)
	}
	return nil
}

// Consensus returns the consensus configuration derived from env values.
func (c *Config) Consensus() consensus.Config {
	return consensus.Config{Quorum: c.Quorum, TeacherWeight: c.TeacherWeight}
}

// GranularityOrDefault returns the configured granularity, falling back to
// the engine default.
func (c *Config) GranularityOrDefault() float64 {
	if c.Granularity == 0 {
		return distribution.DefaultGranularity
	}
	return c.Granularity
}
