// Package run defines the foundational types for pipeline runs: the fixed
// phase sequence, durable run state, and the classified errors that phase
// handlers raise toward the engine.
package run

// Phase is one named step in the fixed review pipeline.
type Phase string

// Pipeline phases, in execution order.
const (
	PhaseFetchApplication  Phase = "fetch_application"
	PhaseFilterAttachments Phase = "filter_attachments"
	PhaseDownloadDocuments Phase = "download_documents"
	PhaseIngestDocuments   Phase = "ingest_documents"
	PhaseAnalyzeRoute      Phase = "analyze_route"
	PhaseGeneratePacket    Phase = "generate_packet"
	PhaseVerifyPacket      Phase = "verify_packet"
)

// Order is the fixed phase sequence. The engine executes phases strictly in
// this order; resume skips only a completed prefix of it.
var Order = []Phase{
	PhaseFetchApplication,
	PhaseFilterAttachments,
	PhaseDownloadDocuments,
	PhaseIngestDocuments,
	PhaseAnalyzeRoute,
	PhaseGeneratePacket,
	PhaseVerifyPacket,
}

// weights sum to 100. Percent-complete is the sum of completed phase weights
// plus the weighted fraction of the in-flight phase.
var weights = map[Phase]int{
	PhaseFetchApplication:  5,
	PhaseFilterAttachments: 5,
	PhaseDownloadDocuments: 15,
	PhaseIngestDocuments:   25,
	PhaseAnalyzeRoute:      20,
	PhaseGeneratePacket:    20,
	PhaseVerifyPacket:      10,
}

// Weight returns the progress weight for a phase, 0 for unknown phases.
func Weight(p Phase) int {
	return weights[p]
}

// TotalWeight returns the sum of all phase weights.
func TotalWeight() int {
	total := 0
	for _, w := range weights {
		total += w
	}
	return total
}

// Status is the terminal outcome of a run.
type Status string

// Terminal run statuses. Cancelled is a recognized terminal state distinct
// from failure so operators can tell deliberate cancellation from faults.
const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)
