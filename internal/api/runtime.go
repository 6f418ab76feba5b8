package api

import (
	"time"

	"github.com/routeworks/escort/internal/config"
	"github.com/routeworks/escort/internal/infrastructure"
	"github.com/routeworks/escort/pkg/pagination"
)

// Runtime extends Infrastructure with API-specific configuration.
type Runtime struct {
	*infrastructure.Infrastructure
	Pagination  pagination.Config
	Concurrency int
	CallTimeout time.Duration
}

// NewRuntime creates an API runtime with a module-scoped logger.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	return &Runtime{
		Infrastructure: &infrastructure.Infrastructure{
			Lifecycle: infra.Lifecycle,
			Logger:    infra.Logger.With("module", "api"),
			Database:  infra.Database,
			Progress:  infra.Progress,
			Invoker:   infra.Invoker,
		},
		Pagination:  cfg.API.Pagination,
		Concurrency: cfg.Engine.Concurrency,
		CallTimeout: cfg.Tools.CallTimeoutDuration(),
	}
}
