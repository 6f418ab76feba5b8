// Package api assembles the API module with all domain systems and route
// registration.
package api

import (
	"net/http"

	"github.com/routeworks/escort/internal/config"
	"github.com/routeworks/escort/internal/infrastructure"
	"github.com/routeworks/escort/pkg/middleware"
	"github.com/routeworks/escort/pkg/module"
)

// NewModule creates the API module with all domain handlers and middleware.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure) *module.Module {
	runtime := NewRuntime(cfg, infra)
	domain := NewDomain(runtime)

	mux := http.NewServeMux()
	registerRoutes(mux, domain, runtime)

	m := module.New(cfg.API.BasePath, mux)
	m.Use(middleware.CORS(&cfg.API.CORS))
	m.Use(middleware.Logger(runtime.Logger))

	return m
}
