package infrastructure_test

import (
	"testing"

	"github.com/routeworks/escort/internal/config"
	"github.com/routeworks/escort/internal/infrastructure"
	"github.com/routeworks/escort/internal/progress"
	"github.com/routeworks/escort/pkg/database"
)

func validConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{
		Database: database.Config{
			Host:            "localhost",
			Port:            5432,
			Name:            "escort",
			User:            "escort",
			Password:        "escort",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: "15m",
			ConnTimeout:     "5s",
		},
		Progress: progress.Config{
			Addr:     "localhost:6379",
			StateTTL: "24h",
		},
		Version: "0.1.0",
	}

	if err := cfg.Progress.Finalize(nil); err != nil {
		t.Fatalf("progress finalize: %v", err)
	}
	if err := cfg.Tools.Finalize(nil); err != nil {
		t.Fatalf("tools finalize: %v", err)
	}

	return cfg
}

func TestNew(t *testing.T) {
	infra, err := infrastructure.New(validConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if infra.Lifecycle == nil {
		t.Error("Lifecycle is nil")
	}
	if infra.Logger == nil {
		t.Error("Logger is nil")
	}
	if infra.Database == nil {
		t.Error("Database is nil")
	}
	if infra.Progress == nil {
		t.Error("Progress is nil")
	}
	if infra.Invoker == nil {
		t.Error("Invoker is nil")
	}
}

func TestNewDatabaseConnection(t *testing.T) {
	infra, err := infrastructure.New(validConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	conn := infra.Database.Connection()
	if conn == nil {
		t.Fatal("Database.Connection() returned nil")
	}
	conn.Close()
}

func TestNewRegistryFromTopology(t *testing.T) {
	infra, err := infrastructure.New(validConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	snapshot := infra.Invoker.Registry().Snapshot()
	if len(snapshot) != 4 {
		t.Errorf("registry servers: got %d, want 4", len(snapshot))
	}
}
