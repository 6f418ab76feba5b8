// Package engine implements the workflow engine that drives the fixed phase
// sequence to completion, handling resume after restart, cooperative
// cancellation between phases, and fatal/recoverable failure classification.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/routeworks/escort/internal/progress"
	"github.com/routeworks/escort/run"
)

// Store is the durable state and progress reporting capability the engine
// requires. *progress.Store satisfies it; tests use in-memory fakes.
type Store interface {
	LoadState(ctx context.Context, runID uuid.UUID) (*run.State, error)
	SaveState(ctx context.Context, state *run.State) error
	DeleteState(ctx context.Context, runID uuid.UUID) error
	PublishEvent(ctx context.Context, event progress.Event)
	Percent(state *run.State, subCurrent, subTotal int) int
	CheckCancellation(ctx context.Context, state *run.State) (bool, error)
}

// Handler executes one phase against the engine's accumulated run context.
// It returns nil on success (possibly after recording non-fatal item errors)
// or a *run.PhaseError carrying the fatal/recoverable classification.
type Handler func(ctx context.Context, rc *Context) error

// PhaseDescriptor binds a phase to its progress weight and handler. The
// descriptor table is compiled in: the phase sequence is fixed, not
// user-configurable.
type PhaseDescriptor struct {
	Phase   run.Phase
	Weight  int
	Handler Handler
}

// DefaultConcurrency bounds fan-out worker pools when no limit is configured.
const DefaultConcurrency = 4

// Engine executes one pipeline run. It exclusively owns the in-memory run
// state; fan-out workers report back through guarded counters and never
// touch the state directly.
type Engine struct {
	runID         uuid.UUID
	applicationID string
	phases        []PhaseDescriptor
	store         Store
	logger        *slog.Logger
	concurrency   int
}

// New creates an Engine for a single run.
func New(
	runID uuid.UUID,
	applicationID string,
	phases []PhaseDescriptor,
	store Store,
	logger *slog.Logger,
	concurrency int,
) *Engine {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Engine{
		runID:         runID,
		applicationID: applicationID,
		phases:        phases,
		store:         store,
		logger:        logger.With("system", "engine", "run_id", runID),
		concurrency:   concurrency,
	}
}

// Execute drives the run to a terminal state. It never panics or propagates
// handler failures to its caller: the outcome is always a typed Result with
// a completed, failed, or cancelled status.
func (e *Engine) Execute(ctx context.Context) *Result {
	state, resumed := e.loadOrCreate(ctx)
	resumeIndex := 0
	if resumed {
		resumeIndex = state.ResumeIndex()
		e.logger.Info(
			"resuming run",
			"completed_phases", len(state.CompletedPhases),
			"resume_index", resumeIndex,
		)
	}

	e.publish(ctx, state, progress.Event{
		Event:       progress.EventRunStarted,
		PhaseDetail: startDetail(resumed),
	})

	rc := &Context{engine: e, state: state, values: make(map[string]any)}

	for i, pd := range e.phases {
		// Resume skips only the strict prefix; from here on, phases run
		// unconditionally even if a stale completed entry names them.
		if i < resumeIndex {
			continue
		}

		if done := e.checkCancelled(ctx, state); done != nil {
			return done
		}

		result := e.executePhase(ctx, rc, pd)
		if result != nil {
			return result
		}
	}

	return e.complete(ctx, state)
}

func (e *Engine) loadOrCreate(ctx context.Context) (*run.State, bool) {
	state, err := e.store.LoadState(ctx, e.runID)
	if err == nil && state != nil {
		return state, len(state.CompletedPhases) > 0
	}

	if err != nil && !errors.Is(err, progress.ErrNotFound) {
		// Resume is an optimization, not a correctness requirement.
		e.logger.Warn("state recovery failed, starting fresh", "error", err)
	}

	return run.NewState(e.runID, e.applicationID), false
}

// executePhase runs one phase. A nil return means the engine advances;
// a non-nil Result is the run's terminal outcome.
func (e *Engine) executePhase(ctx context.Context, rc *Context, pd PhaseDescriptor) *Result {
	state := rc.state
	started := time.Now().UTC()
	state.CurrentPhase = pd.Phase
	info := state.Info(pd.Phase)
	info.StartedAt = &started

	e.save(ctx, state)
	e.publish(ctx, state, progress.Event{
		Event: progress.EventRunProgress,
		Phase: pd.Phase,
	})

	e.logger.Info("phase started", "phase", pd.Phase)

	err := pd.Handler(ctx, rc)

	completed := time.Now().UTC()
	info.CompletedAt = &completed
	info.DurationSeconds = completed.Sub(started).Seconds()

	if err != nil {
		var pe *run.PhaseError
		if errors.As(err, &pe) && pe.Recoverable {
			// Attempted, not fully succeeded: record and continue degraded.
			e.logger.Warn("phase degraded", "phase", pd.Phase, "error", pe.Err)
			info.Error = pe.Err.Error()
			state.RecordError(pd.Phase, pe.Err.Error())
			state.MarkCompleted(pd.Phase)
			e.save(ctx, state)
			e.publish(ctx, state, progress.Event{
				Event:       progress.EventRunProgress,
				Phase:       pd.Phase,
				PhaseDetail: "completed",
			})
			return nil
		}

		info.Error = err.Error()
		state.RecordError(pd.Phase, err.Error())
		return e.fail(ctx, state, pd.Phase, err)
	}

	state.MarkCompleted(pd.Phase)
	e.save(ctx, state)
	e.publish(ctx, state, progress.Event{
		Event:       progress.EventRunProgress,
		Phase:       pd.Phase,
		PhaseDetail: "completed",
	})

	e.logger.Info(
		"phase completed",
		"phase", pd.Phase,
		"duration", completed.Sub(started),
	)
	return nil
}

// checkCancelled polls the cancellation signal between phases. Cancellation
// is cooperative: a request issued mid-phase takes effect only once the
// current handler returns. Context cancellation terminates the run the same
// way.
func (e *Engine) checkCancelled(ctx context.Context, state *run.State) *Result {
	if ctx.Err() != nil {
		state.Cancelled = true
		return e.cancelled(ctx, state)
	}

	cancelled, err := e.store.CheckCancellation(ctx, state)
	if err != nil {
		e.logger.Warn("cancellation check failed", "error", err)
		return nil
	}
	if cancelled {
		return e.cancelled(ctx, state)
	}
	return nil
}

func (e *Engine) complete(ctx context.Context, state *run.State) *Result {
	state.CurrentPhase = ""
	result := newResult(state, run.StatusCompleted, "")

	e.store.PublishEvent(ctx, progress.Event{
		Event:           progress.EventRunCompleted,
		RunID:           state.RunID,
		ApplicationID:   state.ApplicationID,
		PercentComplete: 100,
		ItemsProcessed:  state.ItemsProcessed,
		ItemsTotal:      state.ItemsTotal,
	})

	// Success does not need to remain resumable.
	if err := e.store.DeleteState(ctx, state.RunID); err != nil {
		e.logger.Warn("delete completed state failed", "error", err)
	}

	e.logger.Info(
		"run completed",
		"duration", result.Duration,
		"errors", len(state.Errors),
	)
	return result
}

// fail halts the run and retains its durable state so the failure and
// partial progress remain inspectable.
func (e *Engine) fail(ctx context.Context, state *run.State, phase run.Phase, err error) *Result {
	e.save(ctx, state)
	e.publish(ctx, state, progress.Event{
		Event: progress.EventRunFailed,
		Phase: phase,
		Error: err.Error(),
	})

	e.logger.Error("run failed", "phase", phase, "error", err)
	return newResult(state, run.StatusFailed, fmt.Sprintf("%s: %v", phase, err))
}

func (e *Engine) cancelled(ctx context.Context, state *run.State) *Result {
	e.save(ctx, state)
	e.publish(ctx, state, progress.Event{
		Event: progress.EventRunCancelled,
	})

	e.logger.Info("run cancelled", "current_phase", state.CurrentPhase)
	return newResult(state, run.StatusCancelled, "run cancelled")
}

func (e *Engine) save(ctx context.Context, state *run.State) {
	if err := e.store.SaveState(ctx, state); err != nil {
		e.logger.Warn("save state failed", "error", err)
	}
}

func (e *Engine) publish(ctx context.Context, state *run.State, event progress.Event) {
	event.RunID = state.RunID
	event.ApplicationID = state.ApplicationID
	if event.PercentComplete == 0 {
		event.PercentComplete = e.store.Percent(state, 0, 0)
	}
	e.store.PublishEvent(ctx, event)
}

func startDetail(resumed bool) string {
	if resumed {
		return "resumed"
	}
	return ""
}
