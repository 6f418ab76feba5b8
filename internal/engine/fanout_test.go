package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/routeworks/escort/internal/engine"
	"github.com/routeworks/escort/run"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func items(n int) []engine.Item {
	out := make([]engine.Item, n)
	for i := range out {
		out[i] = engine.Item{ID: string(rune('a' + i))}
	}
	return out
}

// fanOutRun executes a single-interest run whose download phase fans out the
// given items through fn, and returns the terminal result and store.
func fanOutRun(t *testing.T, n int, fn engine.ItemFunc) (*engine.Result, *fakeStore) {
	t.Helper()

	store := newFakeStore()
	handlers := map[run.Phase]engine.Handler{
		run.PhaseDownloadDocuments: func(ctx context.Context, rc *engine.Context) error {
			return rc.FanOut(ctx, run.PhaseDownloadDocuments, items(n), fn)
		},
	}

	result := newEngine(uuid.New(), store, handlers).Execute(context.Background())
	return result, store
}

func TestFanOutAllSucceed(t *testing.T) {
	result, _ := fanOutRun(t, 4, func(ctx context.Context, item engine.Item) error {
		return nil
	})

	if result.Status != run.StatusCompleted {
		t.Fatalf("status: got %s, want %s", result.Status, run.StatusCompleted)
	}
	if result.ItemsProcessed != 4 || result.ItemsTotal != 4 {
		t.Errorf("items: got %d/%d, want 4/4", result.ItemsProcessed, result.ItemsTotal)
	}
}

func TestFanOutPartialFailureDoesNotAbort(t *testing.T) {
	result, _ := fanOutRun(t, 3, func(ctx context.Context, item engine.Item) error {
		if item.ID == "b" {
			return errors.New("download failed")
		}
		return nil
	})

	if result.Status != run.StatusCompleted {
		t.Fatalf("status: got %s, want %s", result.Status, run.StatusCompleted)
	}
	if result.ItemsProcessed != 2 {
		t.Errorf("items processed: got %d, want 2", result.ItemsProcessed)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("recorded errors: got %d, want 1", len(result.Errors))
	}
	if result.Errors[0].Item != "b" {
		t.Errorf("error item: got %q, want b", result.Errors[0].Item)
	}
}

func TestFanOutZeroSuccessesIsFatal(t *testing.T) {
	result, _ := fanOutRun(t, 3, func(ctx context.Context, item engine.Item) error {
		return errors.New("download failed")
	})

	if result.Status != run.StatusFailed {
		t.Fatalf("status: got %s, want %s", result.Status, run.StatusFailed)
	}
	// Three item errors plus the phase-level zero-success error.
	if len(result.Errors) != 4 {
		t.Errorf("recorded errors: got %d, want 4", len(result.Errors))
	}
}

func TestFanOutSkippedItemsCountNeither(t *testing.T) {
	result, _ := fanOutRun(t, 3, func(ctx context.Context, item engine.Item) error {
		if item.ID == "a" {
			return engine.ErrSkipItem
		}
		return nil
	})

	if result.Status != run.StatusCompleted {
		t.Fatalf("status: got %s, want %s", result.Status, run.StatusCompleted)
	}
	if result.ItemsProcessed != 2 {
		t.Errorf("items processed: got %d, want 2", result.ItemsProcessed)
	}
	if len(result.Errors) != 0 {
		t.Errorf("skipped items must not record errors, got %d", len(result.Errors))
	}
}

func TestFanOutAllSkippedIsFatal(t *testing.T) {
	result, _ := fanOutRun(t, 2, func(ctx context.Context, item engine.Item) error {
		return engine.ErrSkipItem
	})

	if result.Status != run.StatusFailed {
		t.Fatalf("status: got %s, want %s", result.Status, run.StatusFailed)
	}
}

func TestFanOutEmptyItemsSucceeds(t *testing.T) {
	result, _ := fanOutRun(t, 0, func(ctx context.Context, item engine.Item) error {
		t.Error("item func must not run with no items")
		return nil
	})

	if result.Status != run.StatusCompleted {
		t.Fatalf("status: got %s, want %s", result.Status, run.StatusCompleted)
	}
	if result.ItemsTotal != 0 {
		t.Errorf("items total: got %d, want 0", result.ItemsTotal)
	}
}

func TestFanOutRespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	var mu sync.Mutex

	store := newFakeStore()
	handlers := map[run.Phase]engine.Handler{
		run.PhaseIngestDocuments: func(ctx context.Context, rc *engine.Context) error {
			return rc.FanOut(ctx, run.PhaseIngestDocuments, items(8), func(ctx context.Context, item engine.Item) error {
				n := inFlight.Add(1)
				mu.Lock()
				if n > peak.Load() {
					peak.Store(n)
				}
				mu.Unlock()
				defer inFlight.Add(-1)
				return nil
			})
		},
	}

	// Engine constructed with concurrency 2.
	result := newEngine(uuid.New(), store, handlers).Execute(context.Background())

	if result.Status != run.StatusCompleted {
		t.Fatalf("status: got %s, want %s", result.Status, run.StatusCompleted)
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency: got %d, want <= 2", got)
	}
}

func TestFanOutPublishesSubProgress(t *testing.T) {
	result, store := fanOutRun(t, 3, func(ctx context.Context, item engine.Item) error {
		return nil
	})

	if result.Status != run.StatusCompleted {
		t.Fatalf("status: got %s, want %s", result.Status, run.StatusCompleted)
	}

	ticks := 0
	for _, ev := range store.events {
		if ev.ItemsTotal == 3 && ev.ItemsProcessed > 0 {
			ticks++
			if ev.PercentComplete >= 100 {
				t.Errorf("sub-progress percent reached %d before completion", ev.PercentComplete)
			}
		}
	}
	if ticks != 3 {
		t.Errorf("sub-progress events: got %d, want 3", ticks)
	}
}
