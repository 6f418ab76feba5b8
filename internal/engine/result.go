package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/routeworks/escort/run"
)

// Result is the typed terminal outcome of a run. The engine always returns
// one; a failed run is distinguishable from a cancelled run by Status.
type Result struct {
	RunID          uuid.UUID                    `json:"run_id"`
	ApplicationID  string                       `json:"application_id"`
	Status         run.Status                   `json:"status"`
	StartedAt      time.Time                    `json:"started_at"`
	CompletedAt    time.Time                    `json:"completed_at"`
	Duration       time.Duration                `json:"duration"`
	Phases         map[run.Phase]*run.PhaseInfo `json:"phases"`
	Errors         []run.Error                  `json:"errors"`
	ItemsProcessed int                          `json:"items_processed"`
	ItemsTotal     int                          `json:"items_total"`
	FailureReason  string                       `json:"failure_reason,omitempty"`
}

func newResult(state *run.State, status run.Status, reason string) *Result {
	completed := time.Now().UTC()
	started := completed
	if state.StartedAt != nil {
		started = *state.StartedAt
	}

	result := &Result{
		RunID:          state.RunID,
		ApplicationID:  state.ApplicationID,
		Status:         status,
		StartedAt:      started,
		CompletedAt:    completed,
		Duration:       completed.Sub(started),
		Phases:         state.PhaseInfo,
		Errors:         state.Errors,
		ItemsProcessed: state.ItemsProcessed,
		ItemsTotal:     state.ItemsTotal,
	}
	if status != run.StatusCompleted {
		result.FailureReason = reason
	}
	return result
}
