package pipeline

import (
	"context"
	"fmt"

	"github.com/routeworks/escort/internal/engine"
	"github.com/routeworks/escort/run"
)

// AnalyzeRoute scores the proposed haul route and gathers applicable policy.
// Both lookups degrade gracefully: a packet can still be generated without
// route analysis, so failures here are recoverable.
func AnalyzeRoute(rt *Runtime) engine.Handler {
	return func(ctx context.Context, rc *engine.Context) error {
		score, err := rt.Invoker.Invoke(ctx, "score_route", map[string]any{
			"application_id": rc.State().ApplicationID,
		}, rt.CallTimeout)
		if err != nil {
			return run.Recoverable(run.PhaseAnalyzeRoute, err)
		}
		rc.Set(keyRouteScore, score.Fields())

		policy, err := rt.Invoker.Invoke(ctx, "search_policy", map[string]any{
			"application_id": rc.State().ApplicationID,
		}, rt.CallTimeout)
		if err != nil {
			// Route score stands; missing policy context is degraded, not fatal.
			return run.Recoverable(run.PhaseAnalyzeRoute, err)
		}

		rc.Logger().Info(
			"route analyzed",
			"score_fields", len(score.Fields()),
			"policy_fields", len(policy.Fields()),
		)
		return nil
	}
}

// GeneratePacket produces the review packet. There is nothing to deliver
// without it, so any failure is fatal.
func GeneratePacket(rt *Runtime) engine.Handler {
	return func(ctx context.Context, rc *engine.Context) error {
		args := map[string]any{"application_id": rc.State().ApplicationID}
		if v, ok := rc.Get(keyRouteScore); ok {
			args["route_score"] = v
		}

		_, err := rt.Invoker.Invoke(ctx, "generate_packet", args, rt.CallTimeout)
		if err != nil {
			return run.Fatal(run.PhaseGeneratePacket, err)
		}
		return nil
	}
}

// VerifyPacket checks the generated packet. A verification call that cannot
// complete is fatal (the packet cannot be attested); reported issues are
// recorded and the run completes degraded.
func VerifyPacket(rt *Runtime) engine.Handler {
	return func(ctx context.Context, rc *engine.Context) error {
		result, err := rt.Invoker.Invoke(ctx, "verify_packet", map[string]any{
			"application_id": rc.State().ApplicationID,
		}, rt.CallTimeout)
		if err != nil {
			return run.Fatal(run.PhaseVerifyPacket, err)
		}

		if issues, ok := result.Fields()["issues"].([]any); ok && len(issues) > 0 {
			return run.Recoverable(run.PhaseVerifyPacket, fmt.Errorf(
				"verification reported %d issues: %v", len(issues), issues,
			))
		}
		return nil
	}
}
