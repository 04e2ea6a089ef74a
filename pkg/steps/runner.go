// Package steps provides the durable step runner: memoized, replay-safe
// execution of named side-effecting steps within a workflow run.
package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/loomhq/loom/pkg/protocol"
)

// Runner executes named steps at most once per run. Completed step results
// are stored in the ledger keyed by (runID, qualified step name); when the
// enclosing run is retried after a crash, completed steps short-circuit to
// their stored result without re-invoking fn.
//
// Results always round-trip through JSON, fresh runs included, so callers
// see the same JSON types (maps, slices, float64, string, bool) on every
// attempt.
type Runner struct {
	ledger protocol.StepLedger
	runID  string
	scope  string
	logger *slog.Logger
}

func NewRunner(ledger protocol.StepLedger, runID string, logger *slog.Logger) *Runner {
	return &Runner{
		ledger: ledger,
		runID:  runID,
		logger: logger,
	}
}

// Scoped returns a runner whose step names are qualified by nodeID. Step
// names only need to be unique within one node's executor invocation; the
// scope keeps two nodes that both run a "http-request" step from colliding
// in the ledger.
func (r *Runner) Scoped(nodeID string) *Runner {
	return &Runner{
		ledger: r.ledger,
		runID:  r.runID,
		scope:  nodeID,
		logger: r.logger,
	}
}

var _ protocol.StepRunner = (*Runner)(nil)

func (r *Runner) Run(ctx context.Context, name string, fn func(ctx context.Context) (any, error)) (any, error) {
	key := name
	if r.scope != "" {
		key = r.scope + ":" + name
	}

	stored, found, err := r.ledger.GetStepResult(ctx, r.runID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to consult step ledger for %q: %w", key, err)
	}

	if found {
		r.logger.DebugContext(ctx, "Step already completed, returning memoized result",
			"run_id", r.runID, "step", key)

		var result any
		if err := json.Unmarshal(stored, &result); err != nil {
			return nil, fmt.Errorf("failed to decode memoized result for %q: %w", key, err)
		}

		return result, nil
	}

	result, err := fn(ctx)
	if err != nil {
		// Failures are the step's failure and are never memoized.
		return nil, err
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result of step %q: %w", key, err)
	}

	if err := r.ledger.PutStepResult(ctx, r.runID, key, encoded); err != nil {
		return nil, fmt.Errorf("failed to record step %q: %w", key, err)
	}

	// Decode what was stored so the first attempt and a replay observe the
	// exact same value.
	var canonical any
	if err := json.Unmarshal(encoded, &canonical); err != nil {
		return nil, fmt.Errorf("failed to decode result of step %q: %w", key, err)
	}

	return canonical, nil
}
