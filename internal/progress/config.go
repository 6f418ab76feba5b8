package progress

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds Redis connection and retention parameters for run state.
type Config struct {
	Addr      string `toml:"addr"`
	Password  string `toml:"password"`
	DB        int    `toml:"db"`
	KeyPrefix string `toml:"key_prefix"`
	Channel   string `toml:"channel"`
	StateTTL  string `toml:"state_ttl"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Addr     string
	Password string
	DB       string
	StateTTL string
}

// StateTTLDuration returns StateTTL as a time.Duration.
func (c *Config) StateTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.StateTTL)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Addr != "" {
		c.Addr = overlay.Addr
	}
	if overlay.Password != "" {
		c.Password = overlay.Password
	}
	if overlay.DB != 0 {
		c.DB = overlay.DB
	}
	if overlay.KeyPrefix != "" {
		c.KeyPrefix = overlay.KeyPrefix
	}
	if overlay.Channel != "" {
		c.Channel = overlay.Channel
	}
	if overlay.StateTTL != "" {
		c.StateTTL = overlay.StateTTL
	}
}

func (c *Config) loadDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "escort"
	}
	if c.Channel == "" {
		c.Channel = "escort:events"
	}
	if c.StateTTL == "" {
		c.StateTTL = "24h"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Addr != "" {
		if v := os.Getenv(env.Addr); v != "" {
			c.Addr = v
		}
	}
	if env.Password != "" {
		if v := os.Getenv(env.Password); v != "" {
			c.Password = v
		}
	}
	if env.DB != "" {
		if v := os.Getenv(env.DB); v != "" {
			if db, err := strconv.Atoi(v); err == nil {
				c.DB = db
			}
		}
	}
	if env.StateTTL != "" {
		if v := os.Getenv(env.StateTTL); v != "" {
			c.StateTTL = v
		}
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.StateTTL); err != nil {
		return fmt.Errorf("invalid state_ttl: %w", err)
	}
	return nil
}
