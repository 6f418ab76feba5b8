package pipeline

import (
	"context"

	"github.com/routeworks/escort/internal/engine"
	"github.com/routeworks/escort/run"
)

// DownloadDocuments fans out over the attachment list, pulling each document
// through the document server. Per-item failures are recorded and the phase
// succeeds as long as at least one document downloads.
func DownloadDocuments(rt *Runtime) engine.Handler {
	return func(ctx context.Context, rc *engine.Context) error {
		items, err := attachments(ctx, rt, rc)
		if err != nil {
			return run.Fatal(run.PhaseDownloadDocuments, err)
		}

		return rc.FanOut(ctx, run.PhaseDownloadDocuments, items, func(ctx context.Context, item engine.Item) error {
			args := map[string]any{"attachment_id": item.ID}
			if url, ok := item.Data["url"].(string); ok && url != "" {
				args["url"] = url
			}

			_, err := rt.Invoker.Invoke(ctx, "download_document", args, rt.CallTimeout)
			return err
		})
	}
}

// IngestDocuments fans out over the attachment list, ingesting each
// downloaded document into the search index. "2 of 3 ingested" is a
// successful phase with recorded errors; zero ingested is fatal.
func IngestDocuments(rt *Runtime) engine.Handler {
	return func(ctx context.Context, rc *engine.Context) error {
		items, err := attachments(ctx, rt, rc)
		if err != nil {
			return run.Fatal(run.PhaseIngestDocuments, err)
		}

		return rc.FanOut(ctx, run.PhaseIngestDocuments, items, func(ctx context.Context, item engine.Item) error {
			_, err := rt.Invoker.Invoke(ctx, "ingest_document", map[string]any{
				"attachment_id": item.ID,
			}, rt.CallTimeout)
			return err
		})
	}
}
