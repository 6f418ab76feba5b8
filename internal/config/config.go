package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/routeworks/escort/internal/progress"
	"github.com/routeworks/escort/internal/tools"
	"github.com/routeworks/escort/pkg/database"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvEscortEnv             = "ESCORT_ENV"
	EnvEscortShutdownTimeout = "ESCORT_SHUTDOWN_TIMEOUT"
	EnvEscortVersion         = "ESCORT_VERSION"
)

var databaseEnv = &database.Env{
	Host:            "ESCORT_DB_HOST",
	Port:            "ESCORT_DB_PORT",
	Name:            "ESCORT_DB_NAME",
	User:            "ESCORT_DB_USER",
	Password:        "ESCORT_DB_PASSWORD",
	SSLMode:         "ESCORT_DB_SSL_MODE",
	MaxOpenConns:    "ESCORT_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "ESCORT_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "ESCORT_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "ESCORT_DB_CONN_TIMEOUT",
}

var progressEnv = &progress.Env{
	Addr:     "ESCORT_REDIS_ADDR",
	Password: "ESCORT_REDIS_PASSWORD",
	DB:       "ESCORT_REDIS_DB",
	StateTTL: "ESCORT_STATE_TTL",
}

var toolsEnv = &tools.Env{
	Token: "ESCORT_TOOLS_TOKEN",
}

// Config is the root configuration for the escort service.
type Config struct {
	Server          ServerConfig    `toml:"server"`
	Database        database.Config `toml:"database"`
	Progress        progress.Config `toml:"progress"`
	Tools           tools.Config    `toml:"tools"`
	Engine          EngineConfig    `toml:"engine"`
	API             APIConfig       `toml:"api"`
	ShutdownTimeout string          `toml:"shutdown_timeout"`
	Version         string          `toml:"version"`
}

// Env returns the ESCORT_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvEscortEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Progress.Merge(&overlay.Progress)
	c.Tools.Merge(&overlay.Tools)
	c.Engine.Merge(&overlay.Engine)
	c.API.Merge(&overlay.API)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Database.Finalize(databaseEnv); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Progress.Finalize(progressEnv); err != nil {
		return fmt.Errorf("progress: %w", err)
	}
	if err := c.Tools.Finalize(toolsEnv); err != nil {
		return fmt.Errorf("tools: %w", err)
	}
	if err := c.Engine.Finalize(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvEscortShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvEscortVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvEscortEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
