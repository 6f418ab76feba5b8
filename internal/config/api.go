package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/routeworks/escort/pkg/middleware"
	"github.com/routeworks/escort/pkg/pagination"
)

const (
	EnvAPIBasePath = "ESCORT_API_BASE_PATH"
)

var corsEnv = &middleware.CORSEnv{
	Enabled: "ESCORT_API_CORS_ENABLED",
	Origins: "ESCORT_API_CORS_ORIGINS",
}

var paginationEnv = &pagination.ConfigEnv{
	DefaultPageSize: "ESCORT_API_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "ESCORT_API_MAX_PAGE_SIZE",
}

// APIConfig holds API module settings.
type APIConfig struct {
	BasePath   string                `toml:"base_path"`
	CORS       middleware.CORSConfig `toml:"cors"`
	Pagination pagination.Config     `toml:"pagination"`
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *APIConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.CORS.Finalize(corsEnv); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	if err := c.Pagination.Finalize(paginationEnv); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *APIConfig) Merge(overlay *APIConfig) {
	if overlay.BasePath != "" {
		c.BasePath = overlay.BasePath
	}
	c.CORS.Merge(&overlay.CORS)
	c.Pagination.Merge(&overlay.Pagination)
}

func (c *APIConfig) loadDefaults() {
	if c.BasePath == "" {
		c.BasePath = "/api"
	}
}

func (c *APIConfig) loadEnv() {
	if v := os.Getenv(EnvAPIBasePath); v != "" {
		c.BasePath = v
	}
}

func (c *APIConfig) validate() error {
	if !strings.HasPrefix(c.BasePath, "/") {
		return fmt.Errorf("base_path must start with /: %s", c.BasePath)
	}
	return nil
}
