package tools

import (
	"fmt"
	"os"
	"time"
)

// ServerConfig describes one remote tool server: its session endpoint and the
// tool names it owns. Tool ownership builds the routing table; each tool name
// must belong to exactly one server.
type ServerConfig struct {
	Name    string   `toml:"name"`
	Address string   `toml:"address"`
	Token   string   `toml:"token"`
	Tools   []string `toml:"tools"`
}

// Config holds the static tool server topology.
type Config struct {
	Servers        []ServerConfig `toml:"servers"`
	CallTimeout    string         `toml:"call_timeout"`
	HealthTimeout  string         `toml:"health_timeout"`
	StartupRetries int            `toml:"startup_retries"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Token string
}

// CallTimeoutDuration returns CallTimeout as a time.Duration.
func (c *Config) CallTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.CallTimeout)
	return d
}

// HealthTimeoutDuration returns HealthTimeout as a time.Duration.
func (c *Config) HealthTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.HealthTimeout)
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

// Merge overwrites non-zero fields from overlay. A non-empty server list
// replaces the base topology wholesale.
func (c *Config) Merge(overlay *Config) {
	if len(overlay.Servers) > 0 {
		c.Servers = overlay.Servers
	}
	if overlay.CallTimeout != "" {
		c.CallTimeout = overlay.CallTimeout
	}
	if overlay.HealthTimeout != "" {
		c.HealthTimeout = overlay.HealthTimeout
	}
	if overlay.StartupRetries != 0 {
		c.StartupRetries = overlay.StartupRetries
	}
}

func (c *Config) loadDefaults() {
	if c.CallTimeout == "" {
		c.CallTimeout = "2m"
	}
	if c.HealthTimeout == "" {
		c.HealthTimeout = "10s"
	}
	if c.StartupRetries == 0 {
		c.StartupRetries = 3
	}
	if len(c.Servers) == 0 {
		c.Servers = []ServerConfig{
			{
				Name:    "intake",
				Address: "http://localhost:9301/mcp",
				Tools:   []string{"fetch_application", "filter_attachments"},
			},
			{
				Name:    "documents",
				Address: "http://localhost:9302/mcp",
				Tools:   []string{"download_document", "ingest_document"},
			},
			{
				Name:    "routing",
				Address: "http://localhost:9303/mcp",
				Tools:   []string{"score_route", "search_policy"},
			},
			{
				Name:    "drafting",
				Address: "http://localhost:9304/mcp",
				Tools:   []string{"generate_packet", "verify_packet"},
			},
		}
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Token != "" {
		if v := os.Getenv(env.Token); v != "" {
			for i := range c.Servers {
				c.Servers[i].Token = v
			}
		}
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.CallTimeout); err != nil {
		return fmt.Errorf("invalid call_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.HealthTimeout); err != nil {
		return fmt.Errorf("invalid health_timeout: %w", err)
	}

	names := make(map[string]bool)
	owned := make(map[string]string)
	for _, s := range c.Servers {
		if s.Name == "" {
			return fmt.Errorf("server with address %s has no name", s.Address)
		}
		if s.Address == "" {
			return fmt.Errorf("server %s has no address", s.Name)
		}
		if names[s.Name] {
			return fmt.Errorf("duplicate server name: %s", s.Name)
		}
		names[s.Name] = true

		for _, tool := range s.Tools {
			if owner, ok := owned[tool]; ok {
				return fmt.Errorf("tool %s owned by both %s and %s", tool, owner, s.Name)
			}
			owned[tool] = s.Name
		}
	}
	return nil
}
