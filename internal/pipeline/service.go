package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/routeworks/escort/internal/engine"
	"github.com/routeworks/escort/internal/progress"
	"github.com/routeworks/escort/internal/runs"
	"github.com/routeworks/escort/run"
)

// Service errors surfaced to the HTTP layer.
var (
	ErrRunActive   = errors.New("run is already executing in this process")
	ErrRunNotFound = errors.New("run not found")
)

// Store is the durable progress backend runs execute against.
// *progress.Store satisfies it.
type Store interface {
	engine.Store
	RequestCancel(ctx context.Context, runID uuid.UUID) error
}

// Service launches and tracks pipeline runs. Each run executes on its own
// goroutine under the service's base context so runs outlive the HTTP
// requests that start them but still stop on shutdown.
type Service struct {
	base        context.Context
	runtime     *Runtime
	store       Store
	archive     runs.System
	logger      *slog.Logger
	concurrency int

	mu     sync.Mutex
	active map[uuid.UUID]struct{}
}

// NewService creates a Service. base should be the lifecycle root context.
func NewService(
	base context.Context,
	runtime *Runtime,
	store Store,
	archive runs.System,
	logger *slog.Logger,
	concurrency int,
) *Service {
	return &Service{
		base:        base,
		runtime:     runtime,
		store:       store,
		archive:     archive,
		logger:      logger.With("system", "pipeline"),
		concurrency: concurrency,
		active:      make(map[uuid.UUID]struct{}),
	}
}

// Launch starts a run for the given application on a background goroutine
// and returns its ID immediately. Passing the ID of a previously interrupted
// run resumes it from its completed phase prefix; a zero ID starts a fresh
// run. Launching an ID that is already executing in this process fails with
// ErrRunActive.
func (s *Service) Launch(applicationID string, runID uuid.UUID) (uuid.UUID, error) {
	if runID == uuid.Nil {
		runID = uuid.New()
	}

	s.mu.Lock()
	if _, ok := s.active[runID]; ok {
		s.mu.Unlock()
		return uuid.Nil, ErrRunActive
	}
	s.active[runID] = struct{}{}
	s.mu.Unlock()

	go s.execute(runID, applicationID)

	s.logger.Info("run launched", "run_id", runID, "application_id", applicationID)
	return runID, nil
}

func (s *Service) execute(runID uuid.UUID, applicationID string) {
	defer func() {
		s.mu.Lock()
		delete(s.active, runID)
		s.mu.Unlock()
	}()

	eng := engine.New(runID, applicationID, Descriptors(s.runtime), s.store, s.logger, s.concurrency)
	result := eng.Execute(s.base)

	if _, err := s.archive.Archive(context.WithoutCancel(s.base), result); err != nil {
		s.logger.Error(
			"run archive failed",
			"run_id", runID,
			"status", result.Status,
			"error", err,
		)
	}
}

// LiveStatus is a point-in-time view of an executing or interrupted run.
type LiveStatus struct {
	RunID           uuid.UUID   `json:"run_id"`
	ApplicationID   string      `json:"application_id"`
	CurrentPhase    run.Phase   `json:"current_phase,omitempty"`
	CompletedPhases []run.Phase `json:"completed_phases"`
	PercentComplete int         `json:"percent_complete"`
	ItemsProcessed  int         `json:"items_processed"`
	ItemsTotal      int         `json:"items_total"`
	Errors          []run.Error `json:"errors"`
	Cancelled       bool        `json:"cancelled"`
}

// Status describes a run from whichever store still knows it: live Redis
// state while the run executes or awaits resume, the Postgres archive once
// it reached a terminal outcome.
type Status struct {
	Source   string       `json:"source"`
	Live     *LiveStatus  `json:"live,omitempty"`
	Archived *runs.Record `json:"archived,omitempty"`
}

// Status reports the current state of a run, falling back to the archive
// when no live state exists. Returns ErrRunNotFound when neither store
// knows the ID.
func (s *Service) Status(ctx context.Context, runID uuid.UUID) (*Status, error) {
	state, err := s.store.LoadState(ctx, runID)
	if err == nil {
		return &Status{
			Source: "live",
			Live: &LiveStatus{
				RunID:           state.RunID,
				ApplicationID:   state.ApplicationID,
				CurrentPhase:    state.CurrentPhase,
				CompletedPhases: state.CompletedPhases,
				PercentComplete: s.store.Percent(state, 0, 0),
				ItemsProcessed:  state.ItemsProcessed,
				ItemsTotal:      state.ItemsTotal,
				Errors:          state.Errors,
				Cancelled:       state.Cancelled,
			},
		}, nil
	}
	if !errors.Is(err, progress.ErrNotFound) {
		return nil, err
	}

	rec, err := s.archive.Find(ctx, runID)
	if err != nil {
		if errors.Is(err, runs.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	return &Status{Source: "archive", Archived: rec}, nil
}

// Cancel requests cooperative cancellation of a run. The engine honors the
// request at its next between-phase check; a phase already executing runs to
// completion first. Cancelling a run with no live state returns
// ErrRunNotFound.
func (s *Service) Cancel(ctx context.Context, runID uuid.UUID) error {
	if _, err := s.store.LoadState(ctx, runID); err != nil {
		if errors.Is(err, progress.ErrNotFound) {
			return ErrRunNotFound
		}
		return err
	}

	if err := s.store.RequestCancel(ctx, runID); err != nil {
		return err
	}

	s.logger.Info("cancellation requested", "run_id", runID)
	return nil
}
