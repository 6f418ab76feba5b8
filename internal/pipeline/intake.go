package pipeline

import (
	"context"
	"fmt"

	"github.com/routeworks/escort/internal/engine"
	"github.com/routeworks/escort/run"
)

// FetchApplication retrieves the application record from the intake server.
// Metadata fetch has no fallback: any failure here is fatal.
func FetchApplication(rt *Runtime) engine.Handler {
	return func(ctx context.Context, rc *engine.Context) error {
		result, err := rt.Invoker.Invoke(ctx, "fetch_application", map[string]any{
			"application_id": rc.State().ApplicationID,
		}, rt.CallTimeout)
		if err != nil {
			return run.Fatal(run.PhaseFetchApplication, err)
		}

		fields := result.Fields()
		rc.Set(keyApplication, fields)

		rc.Logger().Info(
			"application fetched",
			"application_id", rc.State().ApplicationID,
			"fields", len(fields),
		)
		return nil
	}
}

// FilterAttachments asks the intake server which attachments are relevant for
// review. An application with no reviewable attachments cannot proceed.
func FilterAttachments(rt *Runtime) engine.Handler {
	return func(ctx context.Context, rc *engine.Context) error {
		result, err := rt.Invoker.Invoke(ctx, "filter_attachments", map[string]any{
			"application_id": rc.State().ApplicationID,
		}, rt.CallTimeout)
		if err != nil {
			return run.Fatal(run.PhaseFilterAttachments, err)
		}

		items := attachmentItems(result.Fields())
		if len(items) == 0 {
			return run.Fatal(run.PhaseFilterAttachments, fmt.Errorf(
				"no reviewable attachments for application %s", rc.State().ApplicationID,
			))
		}

		rc.Set(keyAttachments, items)
		rc.Logger().Info("attachments filtered", "count", len(items))
		return nil
	}
}
