package progress

import "github.com/routeworks/escort/run"

// Percent computes weighted percent-complete: the sum of weights for every
// completed phase, plus the in-flight phase's weight scaled by sub-progress
// when available. The result is clamped to 99 while the run is live; 100 is
// reserved for the terminal completed event, so an observer can never see
// 100% before the run has actually finished.
func Percent(state *run.State, subCurrent, subTotal int) int {
	total := 0
	seen := make(map[run.Phase]bool)
	for _, p := range state.CompletedPhases {
		if seen[p] {
			continue
		}
		seen[p] = true
		total += run.Weight(p)
	}

	if state.CurrentPhase != "" && !seen[state.CurrentPhase] && subTotal > 0 {
		if subCurrent > subTotal {
			subCurrent = subTotal
		}
		total += run.Weight(state.CurrentPhase) * subCurrent / subTotal
	}

	if total > 99 {
		total = 99
	}
	if total < 0 {
		total = 0
	}
	return total
}
