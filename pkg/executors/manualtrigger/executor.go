// Package manualtrigger implements the manual trigger node: the synthetic
// root of a graph started directly by a user.
package manualtrigger

import (
	"context"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/protocol"
)

type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

func (e *Executor) Kind() models.NodeKind {
	return models.NodeKindManualTrigger
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

// Execute passes the trigger-seeded context through unchanged. The step keeps
// the pass-through replay-safe so retried runs observe the same seed.
func (e *Executor) Execute(ctx context.Context, input protocol.ExecutorInput) (models.Context, error) {
	input.Status.Publish(ctx, e.Kind(), input.Node.ID, models.NodeStatusLoading)

	result, err := input.Steps.Run(ctx, "manual-trigger", func(ctx context.Context) (any, error) {
		return input.Context, nil
	})
	if err != nil {
		input.Status.Publish(ctx, e.Kind(), input.Node.ID, models.NodeStatusError)

		return nil, err
	}

	next, err := protocol.StepContext(result)
	if err != nil {
		input.Status.Publish(ctx, e.Kind(), input.Node.ID, models.NodeStatusError)

		return nil, err
	}

	input.Status.Publish(ctx, e.Kind(), input.Node.ID, models.NodeStatusSuccess)

	return next, nil
}
