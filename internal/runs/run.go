// Package runs implements the run archive domain. Terminal run outcomes are
// persisted to Postgres so completed, failed, and cancelled runs remain
// queryable after their live Redis state expires or is deleted.
package runs

import (
	"time"

	"github.com/google/uuid"

	"github.com/routeworks/escort/run"
)

// Record is an archived terminal run outcome.
type Record struct {
	ID              uuid.UUID                    `json:"id"`
	ApplicationID   string                       `json:"application_id"`
	Status          run.Status                   `json:"status"`
	StartedAt       time.Time                    `json:"started_at"`
	CompletedAt     time.Time                    `json:"completed_at"`
	DurationSeconds float64                      `json:"duration_seconds"`
	ItemsProcessed  int                          `json:"items_processed"`
	ItemsTotal      int                          `json:"items_total"`
	FailureReason   *string                      `json:"failure_reason,omitempty"`
	Phases          map[run.Phase]*run.PhaseInfo `json:"phases"`
	Errors          []run.Error                  `json:"errors"`
	ArchivedAt      time.Time                    `json:"archived_at"`
}
