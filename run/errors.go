package run

import "fmt"

// PhaseError classifies a phase handler failure. Recoverable failures are
// recorded and the engine advances to the next phase in degraded mode;
// fatal failures halt the run.
type PhaseError struct {
	Phase       Phase
	Recoverable bool
	Err         error
}

func (e *PhaseError) Error() string {
	if e.Recoverable {
		return fmt.Sprintf("%s: recoverable: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("%s: fatal: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Fatal wraps err as a failure that halts the run.
func Fatal(p Phase, err error) *PhaseError {
	return &PhaseError{Phase: p, Err: err}
}

// Recoverable wraps err as a failure the run survives in degraded mode.
func Recoverable(p Phase, err error) *PhaseError {
	return &PhaseError{Phase: p, Recoverable: true, Err: err}
}
