// Package infrastructure provides core service initialization for application
// startup. It assembles the common dependencies (logging, database, progress
// store, tool connections) that domain systems require.
package infrastructure

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/routeworks/escort/internal/config"
	"github.com/routeworks/escort/internal/progress"
	"github.com/routeworks/escort/internal/tools"
	"github.com/routeworks/escort/pkg/database"
	"github.com/routeworks/escort/pkg/lifecycle"
)

// Infrastructure holds the core systems required by all domain modules.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Progress  *progress.Store
	Invoker   *tools.Invoker
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	store := progress.New(&cfg.Progress, logger)

	registry := tools.NewRegistry(&cfg.Tools)
	invoker := tools.NewInvoker(registry, &cfg.Tools, logger)

	return &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Database:  db,
		Progress:  store,
		Invoker:   invoker,
	}, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator.
// Tool server initialization runs as a startup hook: the process comes up as
// long as at least one server is reachable, and an entirely unreachable
// topology is surfaced through the hook's error log and readiness.
func (i *Infrastructure) Start() error {
	if err := i.Database.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("database start failed: %w", err)
	}
	if err := i.Progress.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("progress start failed: %w", err)
	}

	i.Lifecycle.OnStartup(func() {
		if err := i.Invoker.InitializeAll(i.Lifecycle.Context()); err != nil {
			i.Logger.Error("tool server initialization failed", "error", err)
		}
	})

	return nil
}
