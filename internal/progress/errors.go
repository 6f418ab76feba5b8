package progress

import "errors"

// Sentinel errors for run state persistence.
var (
	// ErrNotFound indicates no persisted state exists for the run.
	ErrNotFound = errors.New("run state not found")

	// ErrStateRecovery indicates persisted state exists but could not be
	// decoded. Resume is a recovery optimization, not a correctness
	// requirement: callers log this and start fresh.
	ErrStateRecovery = errors.New("run state recovery failed")
)
