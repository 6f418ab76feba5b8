package run

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// PhaseInfo records execution metadata for a single phase attempt.
type PhaseInfo struct {
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds float64    `json:"duration_seconds,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// Error is one recorded failure, either phase-level or item-level.
type Error struct {
	Phase     Phase     `json:"phase"`
	Message   string    `json:"message"`
	Item      string    `json:"item,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the unit of durability and recovery for one pipeline run.
// It is mutated only by the engine executing the run; the progress store
// persists it on phase transitions and error recordings.
//
// CompletedPhases records phases whose handler has returned, successfully or
// with recorded non-fatal errors. CurrentPhase is never a member of
// CompletedPhases while its handler is in flight.
type State struct {
	RunID           uuid.UUID            `json:"run_id"`
	ApplicationID   string               `json:"application_id"`
	CurrentPhase    Phase                `json:"current_phase,omitempty"`
	CompletedPhases []Phase              `json:"completed_phases"`
	PhaseInfo       map[Phase]*PhaseInfo `json:"phase_info"`
	ItemsProcessed  int                  `json:"items_processed"`
	ItemsTotal      int                  `json:"items_total"`
	Errors          []Error              `json:"errors"`
	StartedAt       *time.Time           `json:"started_at,omitempty"`
	Cancelled       bool                 `json:"cancelled"`
}

// NewState creates an empty State for a fresh run.
func NewState(runID uuid.UUID, applicationID string) *State {
	now := time.Now().UTC()
	return &State{
		RunID:           runID,
		ApplicationID:   applicationID,
		CompletedPhases: []Phase{},
		PhaseInfo:       make(map[Phase]*PhaseInfo),
		Errors:          []Error{},
		StartedAt:       &now,
	}
}

// Completed reports whether the given phase appears in CompletedPhases.
func (s *State) Completed(p Phase) bool {
	return slices.Contains(s.CompletedPhases, p)
}

// MarkCompleted appends the phase to CompletedPhases if not already present.
func (s *State) MarkCompleted(p Phase) {
	if !s.Completed(p) {
		s.CompletedPhases = append(s.CompletedPhases, p)
	}
}

// Info returns the PhaseInfo for a phase, creating it on first access.
func (s *State) Info(p Phase) *PhaseInfo {
	if s.PhaseInfo == nil {
		s.PhaseInfo = make(map[Phase]*PhaseInfo)
	}
	info, ok := s.PhaseInfo[p]
	if !ok {
		info = &PhaseInfo{}
		s.PhaseInfo[p] = info
	}
	return info
}

// RecordError appends a phase-level error to the run's error log.
func (s *State) RecordError(p Phase, message string) {
	s.Errors = append(s.Errors, Error{
		Phase:     p,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// RecordItemError appends an item-level error to the run's error log.
func (s *State) RecordItemError(p Phase, item, message string) {
	s.Errors = append(s.Errors, Error{
		Phase:     p,
		Message:   message,
		Item:      item,
		Timestamp: time.Now().UTC(),
	})
}

// ResumeIndex returns the index in Order of the first phase not covered by
// the completed prefix. Resume skips only a strict prefix: once the first
// non-completed phase is reached, all later phases run unconditionally even
// if a stale CompletedPhases entry names them. This matches membership
// semantics only as long as the phase list is never reordered across
// deployments.
func (s *State) ResumeIndex() int {
	for i, p := range Order {
		if !s.Completed(p) {
			return i
		}
	}
	return len(Order)
}
