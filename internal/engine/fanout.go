package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/routeworks/escort/internal/progress"
	"github.com/routeworks/escort/run"
)

// ErrSkipItem signals that a fan-out item was deliberately skipped. Skipped
// items count toward neither successes nor errors.
var ErrSkipItem = errors.New("item skipped")

// Item is one unit of independent fan-out work.
type Item struct {
	ID   string
	Data map[string]any
}

// ItemFunc processes a single fan-out item. Returning ErrSkipItem marks the
// item skipped; any other error is recorded as an item-level failure.
type ItemFunc func(ctx context.Context, item Item) error

// fanTracker aggregates worker outcomes behind a single mutex. Workers never
// touch the run state; the engine merges counts after the pool joins.
type fanTracker struct {
	mu        sync.Mutex
	succeeded int
	failed    int
	skipped   int
	errors    []run.Error
}

// FanOut processes items through a fixed-size worker pool so that at most the
// engine's concurrency limit of remote calls is in flight at once. Per-item
// failures are recorded individually and never abort the fan-out: the phase
// fails fatally only when zero items succeed. Sub-progress is reported on the
// event channel only, not persisted per tick.
func (c *Context) FanOut(ctx context.Context, phase run.Phase, items []Item, fn ItemFunc) error {
	state := c.state
	state.ItemsTotal = len(items)
	state.ItemsProcessed = 0

	if len(items) == 0 {
		return nil
	}

	tracker := &fanTracker{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.engine.concurrency)

	for _, item := range items {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			err := fn(gctx, item)

			tracker.mu.Lock()
			switch {
			case err == nil:
				tracker.succeeded++
			case errors.Is(err, ErrSkipItem):
				tracker.skipped++
			default:
				tracker.failed++
				tracker.errors = append(tracker.errors, run.Error{
					Phase:   phase,
					Message: itemErrorMessage(err),
					Item:    item.ID,
				})
			}
			done := tracker.succeeded + tracker.failed + tracker.skipped
			tracker.mu.Unlock()

			c.engine.store.PublishEvent(gctx, progress.Event{
				Event:           progress.EventRunProgress,
				RunID:           state.RunID,
				ApplicationID:   state.ApplicationID,
				Phase:           phase,
				ItemsProcessed:  done,
				ItemsTotal:      len(items),
				PercentComplete: c.engine.store.Percent(state, done, len(items)),
			})
			return nil
		})
	}

	// Workers swallow item errors into the tracker; Wait only surfaces
	// context cancellation.
	if err := g.Wait(); err != nil {
		return run.Fatal(phase, err)
	}

	state.ItemsProcessed = tracker.succeeded
	for _, itemErr := range tracker.errors {
		state.RecordItemError(phase, itemErr.Item, itemErr.Message)
	}

	c.engine.logger.Info(
		"fan-out complete",
		"phase", phase,
		"succeeded", tracker.succeeded,
		"failed", tracker.failed,
		"skipped", tracker.skipped,
	)

	if tracker.succeeded == 0 {
		return run.Fatal(phase, fmt.Errorf(
			"no items succeeded: %d failed, %d skipped of %d",
			tracker.failed, tracker.skipped, len(items),
		))
	}
	return nil
}
