// Package pipeline provides the compiled-in phase handlers for the permit
// application review pipeline. Handlers reach all remote functionality
// through the tool invoker; content interpretation stays thin.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/routeworks/escort/internal/engine"
	"github.com/routeworks/escort/internal/tools"
	"github.com/routeworks/escort/run"
)

// Bag keys for intermediate results shared between phases. The bag is
// process-local; handlers re-derive missing inputs after a resume.
const (
	keyApplication = "application"
	keyAttachments = "attachments"
	keyRouteScore  = "route_score"
)

// Invoker is the remote call capability handlers require.
// *tools.Invoker satisfies it; tests use fakes.
type Invoker interface {
	Invoke(ctx context.Context, tool string, args map[string]any, timeout time.Duration) (tools.Result, error)
}

// Runtime bundles the dependencies phase handlers require. It is constructed
// by higher-level composition code from infrastructure systems.
type Runtime struct {
	Invoker     Invoker
	Logger      *slog.Logger
	CallTimeout time.Duration
}

// Descriptors returns the compiled phase table in execution order. Weights
// come from the shared weight table so progress math and the engine agree.
func Descriptors(rt *Runtime) []engine.PhaseDescriptor {
	return []engine.PhaseDescriptor{
		{Phase: run.PhaseFetchApplication, Weight: run.Weight(run.PhaseFetchApplication), Handler: FetchApplication(rt)},
		{Phase: run.PhaseFilterAttachments, Weight: run.Weight(run.PhaseFilterAttachments), Handler: FilterAttachments(rt)},
		{Phase: run.PhaseDownloadDocuments, Weight: run.Weight(run.PhaseDownloadDocuments), Handler: DownloadDocuments(rt)},
		{Phase: run.PhaseIngestDocuments, Weight: run.Weight(run.PhaseIngestDocuments), Handler: IngestDocuments(rt)},
		{Phase: run.PhaseAnalyzeRoute, Weight: run.Weight(run.PhaseAnalyzeRoute), Handler: AnalyzeRoute(rt)},
		{Phase: run.PhaseGeneratePacket, Weight: run.Weight(run.PhaseGeneratePacket), Handler: GeneratePacket(rt)},
		{Phase: run.PhaseVerifyPacket, Weight: run.Weight(run.PhaseVerifyPacket), Handler: VerifyPacket(rt)},
	}
}

// attachments returns the run's attachment work items, re-deriving them from
// the intake server when the bag is empty (the resume case).
func attachments(ctx context.Context, rt *Runtime, rc *engine.Context) ([]engine.Item, error) {
	if v, ok := rc.Get(keyAttachments); ok {
		if items, ok := v.([]engine.Item); ok {
			return items, nil
		}
	}

	result, err := rt.Invoker.Invoke(ctx, "filter_attachments", map[string]any{
		"application_id": rc.State().ApplicationID,
	}, rt.CallTimeout)
	if err != nil {
		return nil, err
	}

	items := attachmentItems(result.Fields())
	rc.Set(keyAttachments, items)
	return items, nil
}

// attachmentItems converts a filter_attachments payload into fan-out items.
func attachmentItems(fields map[string]any) []engine.Item {
	raw, ok := fields["attachments"].([]any)
	if !ok {
		return nil
	}

	items := make([]engine.Item, 0, len(raw))
	for i, entry := range raw {
		data, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		items = append(items, engine.Item{
			ID:   itemID(data, i),
			Data: data,
		})
	}
	return items
}

func itemID(data map[string]any, index int) string {
	for _, key := range []string{"id", "attachment_id"} {
		if v, ok := data[key].(string); ok && v != "" {
			return v
		}
	}
	return fmt.Sprintf("attachment-%d", index+1)
}
