package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	EnvEngineConcurrency = "ESCORT_ENGINE_CONCURRENCY"

	maxConcurrency = 64
)

// EngineConfig holds workflow engine parameters.
type EngineConfig struct {
	// Concurrency bounds the fan-out worker pool within a phase.
	Concurrency int `toml:"concurrency"`
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *EngineConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *EngineConfig) Merge(overlay *EngineConfig) {
	if overlay.Concurrency != 0 {
		c.Concurrency = overlay.Concurrency
	}
}

func (c *EngineConfig) loadDefaults() {
	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
}

func (c *EngineConfig) loadEnv() {
	if v := os.Getenv(EnvEngineConcurrency); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency = n
		}
	}
}

func (c *EngineConfig) validate() error {
	if c.Concurrency < 1 || c.Concurrency > maxConcurrency {
		return fmt.Errorf("invalid concurrency: %d", c.Concurrency)
	}
	return nil
}
