package progress

import (
	"time"

	"github.com/google/uuid"

	"github.com/routeworks/escort/run"
)

// Event types published on the progress channel.
const (
	EventRunStarted   = "run.started"
	EventRunProgress  = "run.progress"
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
	EventRunCancelled = "run.cancelled"
)

// Event is one progress message published on the pub/sub channel. Events are
// emitted on every phase transition, every sub-progress update, and at run
// completion or failure.
type Event struct {
	Event           string    `json:"event"`
	RunID           uuid.UUID `json:"run_id"`
	ApplicationID   string    `json:"application_id"`
	Phase           run.Phase `json:"phase,omitempty"`
	PhaseDetail     string    `json:"phase_detail,omitempty"`
	PercentComplete int       `json:"percent_complete"`
	ItemsProcessed  int       `json:"items_processed,omitempty"`
	ItemsTotal      int       `json:"items_total,omitempty"`
	Error           string    `json:"error,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
